package server

import (
	"context"
	"fmt"
)

// StdinAck is the reply of the stdin channel. It does not mean the command
// succeeded, only that it was written.
const StdinAck = "Ok"

// CommandChannel sends one console command and returns its reply
type CommandChannel interface {
	Send(ctx context.Context, command string) (string, error)
}

// StdinChannel writes commands to the process input
type StdinChannel struct {
	Process Process
}

func (c *StdinChannel) Send(ctx context.Context, command string) (string, error) {
	if c.Process == nil || !c.Process.Alive() {
		return "", ErrNotRunning
	}
	if err := c.Process.SendLine(command); err != nil {
		return "", err
	}
	return StdinAck, nil
}

// RemoteSession is one authenticated remote console connection
type RemoteSession interface {
	Execute(command string) (string, error)
	Close() error
}

// DialFunc opens a new remote console session
type DialFunc func(ctx context.Context) (RemoteSession, error)

// RemoteChannel opens a fresh session for every command and always closes it.
type RemoteChannel struct {
	Dial DialFunc
}

func (c *RemoteChannel) Send(ctx context.Context, command string) (string, error) {
	if c.Dial == nil {
		return "", fmt.Errorf("%w: remote console is not configured", ErrRemoteUnavailable)
	}

	session, err := c.Dial(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer session.Close()

	reply, err := session.Execute(command)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return reply, nil
}
