package backup

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// Backup record statuses
const (
	StatusCreating  = "creating"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusDeleted   = "deleted"
)

// ErrNotFound is returned for unknown backup IDs
var ErrNotFound = errors.New("backup not found")

// BackupRecord represents a backup record in the database
type BackupRecord struct {
	ID              string                 `json:"id"`
	Filename        string                 `json:"filename"`
	SizeBytes       int64                  `json:"size_bytes"`
	CreatedAt       time.Time              `json:"created_at"`
	DestinationType string                 `json:"destination_type"`
	DestinationPath string                 `json:"destination_path"`
	Status          string                 `json:"status"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedBy       string                 `json:"created_by"`
}

// Store persists backup records
type Store struct {
	db *sql.DB
}

// NewStore creates a record store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const recordColumns = `id, filename, size_bytes, created_at, destination_type,
	destination_path, status, error_message, metadata, created_by`

// Save inserts or replaces a record
func (s *Store) Save(record *BackupRecord) error {
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO backups (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Filename,
		record.SizeBytes,
		record.CreatedAt.UTC(),
		record.DestinationType,
		record.DestinationPath,
		record.Status,
		record.ErrorMessage,
		string(metadataJSON),
		record.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to save backup record: %w", err)
	}
	return nil
}

// Get retrieves a specific backup
func (s *Store) Get(id string) (*BackupRecord, error) {
	row := s.db.QueryRow(`SELECT `+recordColumns+` FROM backups WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query backup: %w", err)
	}
	return record, nil
}

// List returns every backup that was not deleted, newest first
func (s *Store) List() ([]*BackupRecord, error) {
	rows, err := s.db.Query(`SELECT ` + recordColumns + ` FROM backups
		WHERE status != 'deleted'
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query backups: %w", err)
	}
	defer rows.Close()

	var records []*BackupRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*BackupRecord, error) {
	record := &BackupRecord{}
	var metadataJSON sql.NullString

	err := row.Scan(
		&record.ID,
		&record.Filename,
		&record.SizeBytes,
		&record.CreatedAt,
		&record.DestinationType,
		&record.DestinationPath,
		&record.Status,
		&record.ErrorMessage,
		&metadataJSON,
		&record.CreatedBy,
	)
	if err != nil {
		return nil, err
	}

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			log.Printf("[Backup] Warning: Failed to parse metadata of %s: %v", record.ID, err)
		}
	}
	return record, nil
}
