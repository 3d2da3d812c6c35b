package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// pragmas applied on every connection. The panel writes from the supervisor,
// the scheduler and the API concurrently, so writers wait instead of failing.
var pragmas = []string{
	"foreign_keys(ON)",
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// DB is the panel's SQLite database
type DB struct {
	*sql.DB
}

// NewDB opens the database at dbPath, creating its directory
func NewDB(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn, err := sqliteDSN(dbPath)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single game server produces little traffic
	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{conn}, nil
}

func sqliteDSN(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}
	absPath = filepath.ToSlash(absPath)

	params := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	return "file:" + absPath + "?" + strings.Join(params, "&"), nil
}

// Migrate applies every pending migration in order, each in its own
// transaction
func (db *DB) Migrate() error {
	pending, err := db.pending()
	if err != nil {
		return err
	}
	for _, m := range pending {
		if err := db.apply(m.Version, m.Up, "INSERT INTO migrations (version, applied_at) VALUES (?, datetime('now'))"); err != nil {
			return err
		}
		log.Printf("[Database] Applied migration: %s", m.Version)
	}
	return nil
}

// Pending lists the versions Migrate would apply
func (db *DB) Pending() ([]string, error) {
	pending, err := db.pending()
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(pending))
	for _, m := range pending {
		versions = append(versions, m.Version)
	}
	return versions, nil
}

// Rollback reverts the most recently applied migration and returns its
// version. It returns "" when nothing is applied.
func (db *DB) Rollback() (string, error) {
	version, err := db.SchemaVersion()
	if err != nil || version == "" {
		return "", err
	}
	for _, m := range migrations {
		if m.Version != version {
			continue
		}
		if strings.TrimSpace(m.Down) == "" {
			return "", fmt.Errorf("migration %s cannot be reverted", version)
		}
		if err := db.apply(version, m.Down, "DELETE FROM migrations WHERE version = ?"); err != nil {
			return "", err
		}
		log.Printf("[Database] Reverted migration: %s", version)
		return version, nil
	}
	return "", fmt.Errorf("unknown migration %s is applied", version)
}

func (db *DB) apply(version, script, record string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(script); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", version, err)
	}
	if _, err := tx.Exec(record, version); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", version, err)
	}
	return nil
}

func (db *DB) ensureMigrationsTable() error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (db *DB) pending() ([]Migration, error) {
	if err := db.ensureMigrationsTable(); err != nil {
		return nil, err
	}

	rows, err := db.Query("SELECT version FROM migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var pending []Migration
	for _, m := range migrations {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// SchemaVersion returns the most recently applied migration
func (db *DB) SchemaVersion() (string, error) {
	if err := db.ensureMigrationsTable(); err != nil {
		return "", err
	}
	var version string
	err := db.QueryRow("SELECT version FROM migrations ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return version, err
}
