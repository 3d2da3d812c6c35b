package server

import (
	"context"
	"time"
)

// Event kinds
const (
	EventTransition       = "transition"
	EventOperation        = "operation"
	EventBootstrapRestart = "bootstrap_restart"
	EventChannelFailure   = "channel_failure"
)

// Operation names carried by operation events
const (
	OpStart   = "start"
	OpStop    = "stop"
	OpKill    = "kill"
	OpRestart = "restart"
	OpCommand = "command"
	OpStatus  = "status"
)

// Event describes something the supervisor did
type Event struct {
	Kind     string
	Op       string
	From     string
	To       string
	Channel  string
	Command  string
	Actor    string
	PID      int
	Err      error
	Duration time.Duration
	Time     time.Time
}

// Observer receives supervisor events. Observers run on the caller's
// goroutine while the lifecycle lock is held and must not call back into the
// supervisor.
type Observer func(Event)

// Snapshot is the last known lifecycle state, readable without the lock
type Snapshot struct {
	State   string    `json:"state"`
	PID     int       `json:"pid,omitempty"`
	Since   time.Time `json:"since"`
	Channel string    `json:"channel"`
}

type actorKey struct{}

// WithActor tags ctx with the user performing an operation
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the user set by WithActor, or "system"
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}
