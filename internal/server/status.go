package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StatusOffline  = "offline"
	StatusStarting = "starting"
	StatusOnline   = "online"
	StatusStopping = "stopping"
)

// OfflineMessage is reported when no process is alive
const OfflineMessage = "Server is offline"

// ProbeStatus is the answer of a status query
type ProbeStatus struct {
	Online  int
	Max     int
	Latency time.Duration
	MOTD    string
	Version string
	// Players is set when the status answer already lists names
	Players []string
}

// StatusProbe queries a running server over its status protocol
type StatusProbe interface {
	Status(ctx context.Context) (*ProbeStatus, error)
	Players(ctx context.Context) ([]string, error)
}

// StatusReport is the result of Supervisor.Status
type StatusReport struct {
	State       string    `json:"state"`
	PID         int       `json:"pid,omitempty"`
	Players     int       `json:"players"`
	MaxPlayers  int       `json:"max_players"`
	LatencyMS   float64   `json:"latency_ms"`
	PlayerNames []string  `json:"player_names"`
	MOTD        string    `json:"motd,omitempty"`
	Version     string    `json:"version,omitempty"`
	Message     string    `json:"message"`
	CheckedAt   time.Time `json:"checked_at"`
}

// probeReport fills the report from the status probe. Any probe failure is
// ErrUnresponsive and leaves the lifecycle state alone.
func probeReport(ctx context.Context, probe StatusProbe, report *StatusReport) error {
	if probe == nil {
		return fmt.Errorf("%w: status query is not configured", ErrUnresponsive)
	}

	status, err := probe.Status(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnresponsive, err)
	}
	names := status.Players
	if names == nil {
		names, err = probe.Players(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnresponsive, err)
		}
	}

	report.Players = status.Online
	report.MaxPlayers = status.Max
	report.LatencyMS = float64(status.Latency.Microseconds()) / 1000
	report.MOTD = status.MOTD
	report.Version = status.Version
	report.PlayerNames = names
	report.Message = statusMessage(status.Online, report.LatencyMS, names)
	return nil
}

func statusMessage(players int, latencyMS float64, names []string) string {
	return fmt.Sprintf("The server has %d players and replied in %.1f ms\n Online players: %s",
		players, latencyMS, strings.Join(names, ", "))
}

// updateStatus persists the lifecycle state so a restarted panel knows what
// it left behind
func updateStatus(db *sql.DB, status, errorMsg string, pid int) error {
	if db == nil {
		return nil
	}

	query := `
		INSERT INTO server_status (id, status, pid, error_message, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			pid = excluded.pid,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`

	_, err := db.Exec(query, status, pid, errorMsg, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update server status: %w", err)
	}
	return nil
}

// LastKnownStatus returns the last persisted state and PID
func LastKnownStatus(db *sql.DB) (string, int, error) {
	if db == nil {
		return StatusOffline, 0, nil
	}

	var status string
	var pid int
	err := db.QueryRow("SELECT status, pid FROM server_status WHERE id = 1").Scan(&status, &pid)
	if errors.Is(err, sql.ErrNoRows) {
		return StatusOffline, 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to read server status: %w", err)
	}
	return status, pid, nil
}
