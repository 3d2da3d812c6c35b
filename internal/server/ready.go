package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"regexp"
	"time"

	"github.com/fsnotify/fsnotify"
)

var errProcessExited = errors.New("process exited")

// waitUntil blocks until cond holds, the process exits or ctx ends. The
// condition is checked on every change in dir and on every poll tick, so a
// missing or unwatchable dir only costs latency.
func waitUntil(ctx context.Context, proc Process, dir string, poll time.Duration, cond func() bool) error {
	if poll <= 0 {
		poll = time.Second
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[Supervisor] File watcher unavailable, polling: %v", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(dir); err == nil {
			events = watcher.Events
			errs = watcher.Errors
		}
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		if cond() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-proc.Done():
			if cond() {
				return nil
			}
			return errProcessExited
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("[Supervisor] File watcher error: %v", err)
		case <-ticker.C:
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// logMark remembers where the log ended before a spawn so that lines written
// by earlier runs never satisfy the ready pattern. The game rotates its log
// on boot, in which case the whole new file is scanned.
type logMark struct {
	path string
	info os.FileInfo
}

func markLog(path string) logMark {
	info, _ := os.Stat(path)
	return logMark{path: path, info: info}
}

func (m logMark) matches(pattern *regexp.Regexp) bool {
	f, err := os.Open(m.path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false
	}
	if m.info != nil && os.SameFile(m.info, info) && info.Size() >= m.info.Size() {
		if _, err := f.Seek(m.info.Size(), io.SeekStart); err != nil {
			return false
		}
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if pattern.Match(scanner.Bytes()) {
			return true
		}
	}
	return false
}
