package logging

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/mc-server-panel/internal/server"
)

// ActivityLogger records panel and server activity to the database and to a
// daily JSON lines file
type ActivityLogger struct {
	db          *sql.DB
	logDir      string
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
}

// Activity represents a logged activity
type Activity struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	Username     string                 `json:"username,omitempty"`
	ActivityType string                 `json:"activity_type"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// Activity type constants
const (
	ActivityServerStart        = "server.start"
	ActivityServerStop         = "server.stop"
	ActivityServerKill         = "server.kill"
	ActivityServerRestart      = "server.restart"
	ActivityServerStatusChange = "server.status_change"
	ActivityBootstrapRestart   = "server.bootstrap_restart"
	ActivityCommandExecute     = "command.execute"
	ActivityConfigUpdate       = "config.update"
	ActivityScheduleRun        = "schedule.run"
	ActivityBackup             = "backup"
	ActivityError              = "error"
)

const maxOutputLength = 1000

// NewActivityLogger creates a new activity logger
func NewActivityLogger(db *sql.DB, logDir string) (*ActivityLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logger := &ActivityLogger{
		db:     db,
		logDir: logDir,
	}

	log.Printf("[ActivityLogger] Initialized (log directory: %s)", logDir)

	return logger, nil
}

// LogActivity logs an activity to both database and file
func (al *ActivityLogger) LogActivity(activity *Activity) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now()
	}

	// A database failure still leaves the file record
	if err := al.logToDatabase(activity); err != nil {
		log.Printf("[ActivityLogger] Error logging to database: %v", err)
	}

	if err := al.logToFile(activity); err != nil {
		log.Printf("[ActivityLogger] Error logging to file: %v", err)
		return err
	}

	return nil
}

// LogServerStart logs a server start attempt
func (al *ActivityLogger) LogServerStart(username string, err error) error {
	return al.LogActivity(outcome(&Activity{
		Username:     username,
		ActivityType: ActivityServerStart,
		Description:  "Server start",
	}, err))
}

// LogServerStop logs a stop command
func (al *ActivityLogger) LogServerStop(username string, err error) error {
	return al.LogActivity(outcome(&Activity{
		Username:     username,
		ActivityType: ActivityServerStop,
		Description:  "Server stop requested",
	}, err))
}

// LogServerKill logs a forced kill
func (al *ActivityLogger) LogServerKill(username string, err error) error {
	return al.LogActivity(outcome(&Activity{
		Username:     username,
		ActivityType: ActivityServerKill,
		Description:  "Server killed",
	}, err))
}

// LogServerRestart logs a restart
func (al *ActivityLogger) LogServerRestart(username string, err error) error {
	return al.LogActivity(outcome(&Activity{
		Username:     username,
		ActivityType: ActivityServerRestart,
		Description:  "Server restart",
	}, err))
}

// LogCommandExecute logs a console command and its reply
func (al *ActivityLogger) LogCommandExecute(username, channel, command, output string, err error) error {
	metadata := map[string]interface{}{
		"command": command,
		"channel": channel,
	}
	if output != "" {
		if len(output) > maxOutputLength {
			metadata["output"] = output[:maxOutputLength] + "... (truncated)"
		} else {
			metadata["output"] = output
		}
	}

	return al.LogActivity(outcome(&Activity{
		Username:     username,
		ActivityType: ActivityCommandExecute,
		Description:  fmt.Sprintf("Command executed: %s", command),
		Metadata:     metadata,
	}, err))
}

// LogStatusChange logs a lifecycle state change
func (al *ActivityLogger) LogStatusChange(oldStatus, newStatus string, pid int) error {
	metadata := map[string]interface{}{
		"old_status": oldStatus,
		"new_status": newStatus,
	}
	if pid > 0 {
		metadata["pid"] = pid
	}

	return al.LogActivity(&Activity{
		ActivityType: ActivityServerStatusChange,
		Description:  fmt.Sprintf("Status changed: %s -> %s", oldStatus, newStatus),
		Metadata:     metadata,
		Success:      true,
	})
}

// LogConfigUpdate logs a change of the game configuration
func (al *ActivityLogger) LogConfigUpdate(username string, fields []string, err error) error {
	return al.LogActivity(outcome(&Activity{
		Username:     username,
		ActivityType: ActivityConfigUpdate,
		Description:  "Game configuration updated",
		Metadata:     map[string]interface{}{"fields": fields},
	}, err))
}

// LogScheduleRun logs a scheduled console command
func (al *ActivityLogger) LogScheduleRun(name, command string, skipped bool, err error) error {
	description := fmt.Sprintf("Scheduled command %s ran: %s", name, command)
	if skipped {
		description = fmt.Sprintf("Scheduled command %s skipped: server offline", name)
	}

	return al.LogActivity(outcome(&Activity{
		Username:     "scheduler",
		ActivityType: ActivityScheduleRun,
		Description:  description,
		Metadata: map[string]interface{}{
			"schedule": name,
			"command":  command,
			"skipped":  skipped,
		},
	}, err))
}

// LogBackup logs a backup create, restore or delete
func (al *ActivityLogger) LogBackup(username, action, backupID string, metadata map[string]interface{}, err error) error {
	description := fmt.Sprintf("Backup %s: %s", action, backupID)
	if backupID == "" {
		description = fmt.Sprintf("Backup %s", action)
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["action"] = action
	metadata["backup_id"] = backupID

	return al.LogActivity(outcome(&Activity{
		Username:     username,
		ActivityType: ActivityBackup,
		Description:  description,
		Metadata:     metadata,
	}, err))
}

// LogError logs a general error
func (al *ActivityLogger) LogError(errorType string, errorMsg string, metadata map[string]interface{}) error {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata["error_type"] = errorType

	return al.LogActivity(&Activity{
		ActivityType: ActivityError,
		Description:  errorType,
		Metadata:     metadata,
		Success:      false,
		ErrorMessage: errorMsg,
	})
}

// ObserveServer records supervisor events. Status polls are not recorded.
func (al *ActivityLogger) ObserveServer(event server.Event) {
	var err error
	switch event.Kind {
	case server.EventTransition:
		err = al.LogStatusChange(event.From, event.To, event.PID)
	case server.EventBootstrapRestart:
		err = al.LogActivity(&Activity{
			Username:     event.Actor,
			ActivityType: ActivityBootstrapRestart,
			Description:  "First boot created server.properties; restarting",
			Metadata:     map[string]interface{}{"pid": event.PID},
			Success:      true,
		})
	case server.EventOperation:
		switch event.Op {
		case server.OpStart:
			err = al.LogServerStart(event.Actor, event.Err)
		case server.OpStop:
			err = al.LogServerStop(event.Actor, event.Err)
		case server.OpKill:
			err = al.LogServerKill(event.Actor, event.Err)
		case server.OpRestart:
			err = al.LogServerRestart(event.Actor, event.Err)
		}
	}
	if err != nil {
		log.Printf("[ActivityLogger] Failed to record %s event: %v", event.Kind, err)
	}
}

// GetActivities retrieves activities from the database
func (al *ActivityLogger) GetActivities(activityType string, since time.Time, limit int) ([]*Activity, error) {
	if al.db == nil {
		return nil, fmt.Errorf("database not available")
	}

	query := `
		SELECT id, timestamp, username, activity_type, description, metadata, success, error_message
		FROM activity_log
		WHERE 1=1
	`
	args := make([]interface{}, 0)

	if activityType != "" {
		query += " AND activity_type = ?"
		args = append(args, activityType)
	}

	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since)
	}

	query += " ORDER BY timestamp DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := al.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	activities := make([]*Activity, 0)

	for rows.Next() {
		activity := &Activity{}
		var username sql.NullString
		var metadataJSON sql.NullString

		err := rows.Scan(
			&activity.ID,
			&activity.Timestamp,
			&username,
			&activity.ActivityType,
			&activity.Description,
			&metadataJSON,
			&activity.Success,
			&activity.ErrorMessage,
		)
		if err != nil {
			log.Printf("[ActivityLogger] Error scanning row: %v", err)
			continue
		}

		activity.Username = username.String
		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &activity.Metadata); err != nil {
				log.Printf("[ActivityLogger] Error unmarshaling metadata: %v", err)
			}
		}

		activities = append(activities, activity)
	}

	return activities, rows.Err()
}

// GetRecentActivities retrieves the most recent activities
func (al *ActivityLogger) GetRecentActivities(limit int) ([]*Activity, error) {
	return al.GetActivities("", time.Time{}, limit)
}

func (al *ActivityLogger) logToDatabase(activity *Activity) error {
	if al.db == nil {
		return nil
	}

	metadataJSON, err := json.Marshal(activity.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO activity_log (
			id, timestamp, username, activity_type,
			description, metadata, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = al.db.Exec(
		query,
		activity.ID,
		activity.Timestamp,
		activity.Username,
		activity.ActivityType,
		activity.Description,
		string(metadataJSON),
		activity.Success,
		activity.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	return nil
}

func (al *ActivityLogger) logToFile(activity *Activity) error {
	currentDate := time.Now().Format("2006-01-02")

	if al.currentFile == nil || al.currentDate != currentDate {
		if err := al.rotateLogFile(currentDate); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	line, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	if _, err := fmt.Fprintf(al.currentFile, "%s\n", line); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}

	// Lifecycle events survive a crash of the panel
	switch activity.ActivityType {
	case ActivityServerStart, ActivityServerStop, ActivityServerKill, ActivityError:
		al.currentFile.Sync()
	}

	return nil
}

func (al *ActivityLogger) rotateLogFile(date string) error {
	if al.currentFile != nil {
		al.currentFile.Close()
		al.currentFile = nil
	}

	logPath := filepath.Join(al.logDir, fmt.Sprintf("activity-%s.jsonl", date))

	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	al.currentFile = file
	al.currentDate = date

	log.Printf("[ActivityLogger] Rotated log file to: %s", logPath)

	go al.compressOldLogs(date)

	return nil
}

// compressOldLogs gzips activity files of previous days
func (al *ActivityLogger) compressOldLogs(currentDate string) {
	matches, err := filepath.Glob(filepath.Join(al.logDir, "activity-*.jsonl"))
	if err != nil {
		return
	}

	current := fmt.Sprintf("activity-%s.jsonl", currentDate)
	for _, path := range matches {
		if filepath.Base(path) == current {
			continue
		}
		if err := gzipFile(path); err != nil {
			log.Printf("[ActivityLogger] Failed to compress %s: %v", path, err)
			continue
		}
		log.Printf("[ActivityLogger] Compressed old log: %s", path)
	}
}

func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	target := path + ".gz"
	dst, err := os.Create(target)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(dst)
	zw.Name = strings.TrimSuffix(filepath.Base(path), ".gz")
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		dst.Close()
		os.Remove(target)
		return err
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		os.Remove(target)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(target)
		return err
	}
	return os.Remove(path)
}

// Close closes the activity logger
func (al *ActivityLogger) Close() error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.currentFile != nil {
		err := al.currentFile.Close()
		al.currentFile = nil
		return err
	}

	return nil
}

// CleanupOldActivities removes activities older than a specified duration
func (al *ActivityLogger) CleanupOldActivities(olderThan time.Duration) error {
	if al.db == nil {
		return fmt.Errorf("database not available")
	}

	cutoff := time.Now().Add(-olderThan)

	result, err := al.db.Exec(`
		DELETE FROM activity_log
		WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old activities: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	log.Printf("[ActivityLogger] Cleaned up %d activities older than %v", rowsAffected, olderThan)

	return nil
}

// GetActivityStats counts activities per type
func (al *ActivityLogger) GetActivityStats(since time.Time) (map[string]int, error) {
	if al.db == nil {
		return nil, fmt.Errorf("database not available")
	}

	query := `
		SELECT activity_type, COUNT(*) as count
		FROM activity_log
		WHERE 1=1
	`
	args := make([]interface{}, 0)

	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since)
	}

	query += " GROUP BY activity_type"

	rows, err := al.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var activityType string
		var count int
		if err := rows.Scan(&activityType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan activity stats: %w", err)
		}
		stats[activityType] = count
	}

	return stats, rows.Err()
}

func outcome(activity *Activity, err error) *Activity {
	activity.Success = err == nil
	if err != nil {
		activity.ErrorMessage = err.Error()
	}
	return activity
}
