package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// ProcessSpec describes how to launch the game server
type ProcessSpec struct {
	Executable string
	Args       []string
	Dir        string
}

// CommandLine renders the spec for logs
func (p ProcessSpec) CommandLine() string {
	return strings.Join(append([]string{p.Executable}, p.Args...), " ")
}

// Process is an owned child process
type Process interface {
	// PID returns the OS process ID
	PID() int

	// Alive reports whether the process has not exited yet
	Alive() bool

	// SendLine writes text and a newline to the process input
	SendLine(text string) error

	// Terminate asks the process to exit
	Terminate() error

	// Kill forces the process to exit. Killing an exited process is a no-op.
	Kill() error

	// Done is closed once the process has exited and been reaped
	Done() <-chan struct{}
}

// Spawner launches processes
type Spawner interface {
	Spawn(spec ProcessSpec) (Process, error)
}

// ExecSpawner starts real OS processes. Child stdout and stderr go to Output.
type ExecSpawner struct {
	Output io.Writer
}

// Spawn starts the process and a goroutine that reaps it
func (s *ExecSpawner) Spawn(spec ProcessSpec) (Process, error) {
	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = spec.Dir
	output := s.Output
	if output == nil {
		output = io.Discard
	}
	cmd.Stdout = output
	cmd.Stderr = output

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Command: spec.CommandLine(), Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Command: spec.CommandLine(), Err: err}
	}

	p := &execProcess{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}

	mutex   sync.Mutex
	exitErr error
}

func (p *execProcess) reap() {
	err := p.cmd.Wait()
	p.mutex.Lock()
	p.exitErr = err
	p.mutex.Unlock()
	close(p.done)
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *execProcess) SendLine(text string) error {
	if !p.Alive() {
		return ErrNotRunning
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if _, err := io.WriteString(p.stdin, text+"\n"); err != nil {
		return fmt.Errorf("failed to write to server input: %w", err)
	}
	return nil
}

func (p *execProcess) Terminate() error {
	if !p.Alive() {
		return nil
	}
	return ignoreDone(p.cmd.Process.Signal(syscall.SIGTERM))
}

func (p *execProcess) Kill() error {
	if !p.Alive() {
		return nil
	}
	return ignoreDone(p.cmd.Process.Kill())
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the wait error once the process has exited
func (p *execProcess) ExitErr() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.exitErr
}

func ignoreDone(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
