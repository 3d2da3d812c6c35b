package models

import "time"

// CommandRequest represents a console command request
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
	Channel string `json:"channel,omitempty"` // "stdin" or "rcon"; empty uses the configured default
}

// CommandResponse represents the response to a command
type CommandResponse struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Channel string `json:"channel,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OperationResponse acknowledges a lifecycle operation
type OperationResponse struct {
	Operation string `json:"operation"`
	Accepted  bool   `json:"accepted"`
	Message   string `json:"message"`
	Reply     string `json:"reply,omitempty"`
}

// LogsResponse is a slice of the server log
type LogsResponse struct {
	Path  string   `json:"path"`
	Lines []string `json:"lines"`
	Count int      `json:"count"`
}

// HealthResponse reports liveness of the panel itself
type HealthResponse struct {
	Status        string    `json:"status"`
	ServerState   string    `json:"server_state"`
	ServerPID     int       `json:"server_pid,omitempty"`
	StateSince    time.Time `json:"state_since"`
	SchemaVersion string    `json:"schema_version,omitempty"`
	Time          time.Time `json:"time"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
