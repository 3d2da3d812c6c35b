package console

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yourusername/mc-server-panel/internal/config"
)

func writeLog(t *testing.T, lines int) string {
	t.Helper()
	path := LogPath(config.GameConfig{Path: t.TempDir()})
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	var b strings.Builder
	for i := 1; i <= lines; i++ {
		fmt.Fprintf(&b, "[10:00:%02d] [Server thread/INFO]: line %d\n", i%60, i)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

func TestReadTail(t *testing.T) {
	path := writeLog(t, 10)

	lines, err := ReadTail(path, 3)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, want := range []string{"line 8", "line 9", "line 10"} {
		if !strings.HasSuffix(lines[i], want) {
			t.Fatalf("line %d = %q, want suffix %q", i, lines[i], want)
		}
	}
}

func TestReadTailAll(t *testing.T) {
	path := writeLog(t, 4)

	lines, err := ReadTail(path, 0)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(lines) != 4 || !strings.HasSuffix(lines[0], "line 1") {
		t.Fatalf("unexpected lines %v", lines)
	}

	lines, err = ReadTail(path, 100)
	if err != nil || len(lines) != 4 {
		t.Fatalf("expected every line when n exceeds the file, got %v %v", lines, err)
	}
}

func TestReadTailMissing(t *testing.T) {
	if _, err := ReadTail(filepath.Join(t.TempDir(), "latest.log"), 10); err == nil {
		t.Fatalf("expected error for missing log")
	}
}

func TestLogPath(t *testing.T) {
	if got := LogPath(config.GameConfig{Path: "/srv/mc"}); got != filepath.Join("/srv/mc", "logs", "latest.log") {
		t.Fatalf("unexpected default path %s", got)
	}
	if got := LogPath(config.GameConfig{Path: "/srv/mc", LatestLog: "/var/log/mc.log"}); got != "/var/log/mc.log" {
		t.Fatalf("absolute path not kept: %s", got)
	}
}
