package scheduler

import (
	"database/sql"
	"fmt"
	"time"
)

// Run statuses stored in schedule_runs
const (
	RunSuccess = "success"
	RunSkipped = "skipped"
	RunFailed  = "failed"
)

// RunRecord is the persisted outcome of the last run of a schedule
type RunRecord struct {
	Name       string     `json:"name"`
	Command    string     `json:"command"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	LastStatus string     `json:"last_status"`
	LastError  string     `json:"last_error,omitempty"`
}

// RunStore persists schedule outcomes
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Record upserts the outcome of run
func (s *RunStore) Record(run Run, next time.Time) error {
	status := RunSuccess
	errMsg := ""
	switch {
	case run.Skipped:
		status = RunSkipped
	case run.Err != nil:
		status = RunFailed
		errMsg = run.Err.Error()
	}

	_, err := s.db.Exec(`
		INSERT INTO schedule_runs (name, command, last_run, next_run, last_status, last_error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			command = excluded.command,
			last_run = excluded.last_run,
			next_run = excluded.next_run,
			last_status = excluded.last_status,
			last_error = excluded.last_error
	`, run.Name, run.Command, run.At, next, status, errMsg)
	if err != nil {
		return fmt.Errorf("failed to record schedule run: %w", err)
	}
	return nil
}

// List returns every recorded schedule ordered by name
func (s *RunStore) List() ([]*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT name, command, last_run, next_run, last_status, last_error
		FROM schedule_runs
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule runs: %w", err)
	}
	defer rows.Close()

	records := make([]*RunRecord, 0)
	for rows.Next() {
		record := &RunRecord{}
		var lastRun, nextRun sql.NullTime
		if err := rows.Scan(&record.Name, &record.Command, &lastRun, &nextRun, &record.LastStatus, &record.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan schedule run: %w", err)
		}
		if lastRun.Valid {
			t := lastRun.Time
			record.LastRun = &t
		}
		if nextRun.Valid {
			t := nextRun.Time
			record.NextRun = &t
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
