package console

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourusername/mc-server-panel/internal/config"
)

// LogPath returns the server's current log file. Relative paths are resolved
// against the install directory.
func LogPath(game config.GameConfig) string {
	name := game.LatestLog
	if name == "" {
		name = filepath.Join("logs", "latest.log")
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(game.Path, name)
}

// maxLineLength bounds a single log line, stack traces included
const maxLineLength = 1024 * 1024

// ReadTail returns the last n lines of path, or every line if n <= 0
func ReadTail(path string, n int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer file.Close()

	var (
		ring  []string
		start int
	)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	for scanner.Scan() {
		line := scanner.Text()
		if n <= 0 || len(ring) < n {
			ring = append(ring, line)
			continue
		}
		ring[start] = line
		start = (start + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}

	lines := make([]string, 0, len(ring))
	lines = append(lines, ring[start:]...)
	lines = append(lines, ring[:start]...)
	return lines, nil
}
