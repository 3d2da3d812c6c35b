package console

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Tailer follows a log file and hands every new complete line to Publish.
// It survives the file being truncated, rotated or not existing yet.
type Tailer struct {
	Poll    time.Duration
	Publish func(line string)

	mu   sync.Mutex
	path string
}

func NewTailer(path string, publish func(line string)) *Tailer {
	return &Tailer{path: path, Poll: time.Second, Publish: publish}
}

// SetPath switches to another file. The new file is followed from its end.
func (t *Tailer) SetPath(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.path = path
}

func (t *Tailer) currentPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

// Run follows the file until ctx is cancelled. Lines present when Run starts
// are skipped.
func (t *Tailer) Run(ctx context.Context) {
	path := t.currentPath()

	var wake <-chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[Console] File watcher unavailable, polling %s: %v", path, err)
	} else {
		defer watcher.Close()
		watchDir(watcher, path)
		wake = watcher.Events
	}

	poll := t.Poll
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	f := &follower{path: path}
	defer func() { f.close() }()
	f.open(true)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(f.path) {
				continue
			}
		case <-ticker.C:
		}

		if next := t.currentPath(); next != f.path {
			log.Printf("[Console] Following %s", next)
			if watcher != nil {
				watcher.Remove(filepath.Dir(f.path))
				watchDir(watcher, next)
			}
			f.close()
			f = &follower{path: next}
			f.open(true)
			continue
		}
		for _, line := range f.poll() {
			t.Publish(line)
		}
	}
}

func watchDir(watcher *fsnotify.Watcher, path string) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	if err := watcher.Add(dir); err != nil {
		log.Printf("[Console] Failed to watch %s, polling: %v", dir, err)
	}
}

type follower struct {
	path    string
	file    *os.File
	info    os.FileInfo
	reader  *bufio.Reader
	offset  int64
	partial []byte
}

func (f *follower) open(seekEnd bool) {
	file, err := os.Open(f.path)
	if err != nil {
		return
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return
	}
	f.offset = 0
	if seekEnd {
		f.offset = info.Size()
		if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
			file.Close()
			return
		}
	}
	f.file = file
	f.info = info
	f.reader = bufio.NewReader(file)
	f.partial = nil
}

func (f *follower) close() {
	if f.file != nil {
		f.file.Close()
		f.file = nil
	}
}

func (f *follower) poll() []string {
	if f.file == nil {
		f.open(false)
		if f.file == nil {
			return nil
		}
	}

	if current, err := os.Stat(f.path); err == nil {
		if !os.SameFile(current, f.info) || current.Size() < f.offset {
			// rotated or truncated; drain nothing from the old handle
			f.close()
			f.open(false)
			if f.file == nil {
				return nil
			}
		}
	}

	var lines []string
	for {
		chunk, err := f.reader.ReadBytes('\n')
		f.offset += int64(len(chunk))
		if len(chunk) > 0 {
			if chunk[len(chunk)-1] != '\n' {
				f.partial = append(f.partial, chunk...)
			} else {
				line := append(f.partial, chunk[:len(chunk)-1]...)
				f.partial = nil
				lines = append(lines, trimCR(string(line)))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[Console] Read error on %s: %v", f.path, err)
				f.close()
			}
			return lines
		}
	}
}

func trimCR(line string) string {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}
