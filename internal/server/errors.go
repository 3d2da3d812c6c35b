package server

import (
	"errors"
	"fmt"
)

// Lifecycle errors. Callers classify them with errors.Is.
var (
	ErrAlreadyRunning    = errors.New("server is running")
	ErrNotRunning        = errors.New("server is not running")
	ErrBootstrapTimeout  = errors.New("server did not finish its first boot in time")
	ErrBootstrapFailed   = errors.New("server bootstrap failed")
	ErrRemoteUnavailable = errors.New("remote console unavailable")
	ErrUnresponsive      = errors.New("server did not respond")
	ErrBusy              = errors.New("another lifecycle operation is in progress")
	ErrStopTimeout       = errors.New("server did not stop in time")
	ErrPropertiesIO      = errors.New("server.properties could not be updated")
)

// SpawnError reports a process that could not be launched.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
