package server

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestExecSpawnerLifecycle(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	var output bytes.Buffer
	spawner := &ExecSpawner{Output: &output}
	proc, err := spawner.Spawn(ProcessSpec{Executable: "cat", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if !proc.Alive() || proc.PID() <= 0 {
		t.Fatalf("expected live process")
	}

	if err := proc.SendLine("say hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := proc.Kill(); err != nil {
		t.Fatalf("kill failed: %v", err)
	}

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("process was not reaped")
	}
	if proc.Alive() {
		t.Fatalf("expected dead process")
	}
	if err := proc.Kill(); err != nil {
		t.Fatalf("killing an exited process must be a no-op, got %v", err)
	}
	if err := proc.SendLine("list"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestExecSpawnerCapturesOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	var output bytes.Buffer
	spawner := &ExecSpawner{Output: &output}
	proc, err := spawner.Spawn(ProcessSpec{Executable: "sh", Args: []string{"-c", "read line; echo got $line"}})
	if err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	if err := proc.SendLine("ping"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		proc.Kill()
		t.Fatalf("process did not exit")
	}
	if !strings.Contains(output.String(), "got ping") {
		t.Fatalf("unexpected output %q", output.String())
	}
}

func TestExecSpawnerMissingExecutable(t *testing.T) {
	spawner := &ExecSpawner{}
	_, err := spawner.Spawn(ProcessSpec{Executable: "definitely-not-a-real-binary-xyz"})

	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
}

func TestStdinChannelWithoutProcess(t *testing.T) {
	ch := &StdinChannel{}
	if _, err := ch.Send(context.Background(), "list"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}
