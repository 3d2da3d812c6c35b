package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/mc-server-panel/internal/config"
	"github.com/yourusername/mc-server-panel/internal/properties"
	"github.com/yourusername/mc-server-panel/internal/server"
)

// ErrInProgress is returned while another backup or restore runs
var ErrInProgress = errors.New("a backup operation is already running")

// ErrNotRestorable is returned for backups that did not complete
var ErrNotRestorable = errors.New("backup is not in completed state")

// Backup actions reported to observers
const (
	ActionCreate  = "create"
	ActionRestore = "restore"
	ActionDelete  = "delete"
)

// Controller is the part of the supervisor backups rely on
type Controller interface {
	Snapshot() server.Snapshot
	Game(ctx context.Context) (config.GameConfig, error)
	SendCommand(ctx context.Context, channel, command string) (string, error)
	Offline(ctx context.Context, fn func(game config.GameConfig) error) error
}

// Event describes a finished backup operation
type Event struct {
	Action   string
	ID       string
	Record   *BackupRecord
	Actor    string
	Duration time.Duration
	Err      error
}

// Manager orchestrates backup operations. One operation runs at a time.
type Manager struct {
	cfg            config.BackupConfig
	controller     Controller
	store          *Store
	newDestination func(config.DestinationConfig) (Destination, error)

	mu        sync.Mutex
	observers []func(Event)
}

// NewManager creates a new backup manager
func NewManager(cfg config.BackupConfig, controller Controller, store *Store) *Manager {
	return &Manager{
		cfg:            cfg,
		controller:     controller,
		store:          store,
		newDestination: NewDestination,
	}
}

// Observe registers a callback invoked after every operation
func (m *Manager) Observe(fn func(Event)) {
	m.observers = append(m.observers, fn)
}

func (m *Manager) emit(event Event) {
	for _, fn := range m.observers {
		fn(event)
	}
}

// Busy reports whether an operation is running
func (m *Manager) Busy() bool {
	if !m.mu.TryLock() {
		return true
	}
	m.mu.Unlock()
	return false
}

// List returns the recorded backups, newest first
func (m *Manager) List() ([]*BackupRecord, error) {
	return m.store.List()
}

// Get returns a single backup record
func (m *Manager) Get(id string) (*BackupRecord, error) {
	return m.store.Get(id)
}

// CreateBackup archives the world and stores it at the configured
// destination. A running server has autosave switched off while the files
// are read.
func (m *Manager) CreateBackup(ctx context.Context) (record *BackupRecord, err error) {
	if !m.mu.TryLock() {
		return nil, ErrInProgress
	}
	defer m.mu.Unlock()

	started := time.Now()
	actor := server.ActorFromContext(ctx)
	defer func() {
		event := Event{Action: ActionCreate, Record: record, Actor: actor, Duration: time.Since(started), Err: err}
		if record != nil {
			event.ID = record.ID
		}
		m.emit(event)
	}()

	game, err := m.controller.Game(ctx)
	if err != nil {
		return nil, err
	}
	paths := m.cfg.Paths
	if len(paths) == 0 {
		if paths, err = worldPaths(game.Path); err != nil {
			return nil, err
		}
	}

	record = &BackupRecord{
		ID:              "backup-" + uuid.New().String()[:8],
		CreatedAt:       started,
		DestinationType: m.cfg.Destination.Type,
		DestinationPath: m.cfg.Destination.Path,
		Status:          StatusCreating,
		CreatedBy:       actor,
	}
	log.Printf("[Backup] Creating backup %s of %v", record.ID, paths)
	if err := m.store.Save(record); err != nil {
		return nil, err
	}

	name := record.ID + "_" + started.Format("2006-01-02_15-04-05")
	info, err := m.archive(ctx, game, paths, name)
	if err != nil {
		return record, m.fail(record, fmt.Errorf("failed to create archive: %w", err))
	}
	defer os.Remove(info.Path)

	record.Filename = info.Filename
	record.SizeBytes = info.SizeBytes
	record.Metadata = map[string]interface{}{
		"paths":       info.Paths,
		"exclude":     m.cfg.Exclude,
		"file_count":  info.FileCount,
		"compression": info.Compression,
	}

	if err := m.upload(info); err != nil {
		return record, m.fail(record, fmt.Errorf("failed to transfer backup: %w", err))
	}

	record.Status = StatusCompleted
	if err := m.store.Save(record); err != nil {
		log.Printf("[Backup] Warning: Failed to update backup status: %v", err)
	}
	log.Printf("[Backup] Backup %s created successfully: %s (%d bytes)", record.ID, record.Filename, record.SizeBytes)

	if _, err := m.EnforceRetention(); err != nil {
		log.Printf("[Backup] Retention failed: %v", err)
	}
	return record, nil
}

func (m *Manager) archive(ctx context.Context, game config.GameConfig, paths []string, name string) (*ArchiveInfo, error) {
	if m.controller.Snapshot().State == server.StatusOnline {
		if _, err := m.controller.SendCommand(ctx, "", "save-off"); err != nil && !errors.Is(err, server.ErrNotRunning) {
			return nil, fmt.Errorf("failed to disable autosave: %w", err)
		}
		defer func() {
			// resume even when the request was cancelled
			resumeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if _, err := m.controller.SendCommand(resumeCtx, "", "save-on"); err != nil && !errors.Is(err, server.ErrNotRunning) {
				log.Printf("[Backup] Warning: Failed to re-enable autosave: %v", err)
			}
		}()
		if _, err := m.controller.SendCommand(ctx, "", "save-all flush"); err != nil && !errors.Is(err, server.ErrNotRunning) {
			return nil, fmt.Errorf("failed to flush the world: %w", err)
		}
	}

	return CreateArchive(game.Path, paths, m.cfg.Exclude, m.cfg.StagingDir, name, CompressionConfig{
		Type:  m.cfg.Compression,
		Level: m.cfg.Level,
	})
}

func (m *Manager) upload(info *ArchiveInfo) error {
	dest, err := m.newDestination(m.cfg.Destination)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	defer closeDestination(dest)

	file, err := os.Open(info.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	return dest.Upload(info.Filename, file, info.SizeBytes)
}

func (m *Manager) fail(record *BackupRecord, err error) error {
	record.Status = StatusFailed
	record.ErrorMessage = err.Error()
	if saveErr := m.store.Save(record); saveErr != nil {
		log.Printf("[Backup] Warning: Failed to record failure of %s: %v", record.ID, saveErr)
	}
	log.Printf("[Backup] Backup %s failed: %v", record.ID, err)
	return err
}

// RestoreBackup replaces the archived paths in the game directory with the
// backup's content. The server must be offline and cannot be started until
// the restore finishes. Replaced files are kept in a .pre-restore directory
// inside the game directory.
func (m *Manager) RestoreBackup(ctx context.Context, id string) (err error) {
	if !m.mu.TryLock() {
		return ErrInProgress
	}
	defer m.mu.Unlock()

	started := time.Now()
	defer func() {
		m.emit(Event{Action: ActionRestore, ID: id, Actor: server.ActorFromContext(ctx), Duration: time.Since(started), Err: err})
	}()

	record, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if record.Status != StatusCompleted {
		return fmt.Errorf("%w: %s", ErrNotRestorable, record.Status)
	}

	return m.controller.Offline(ctx, func(game config.GameConfig) error {
		return m.restore(record, game.Path)
	})
}

func (m *Manager) restore(record *BackupRecord, gamePath string) error {
	log.Printf("[Backup] Restoring backup %s into %s", record.ID, gamePath)

	if err := os.MkdirAll(m.cfg.StagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	archivePath := filepath.Join(m.cfg.StagingDir, "restore_"+record.Filename)
	if err := m.download(record, archivePath); err != nil {
		return fmt.Errorf("failed to download backup: %w", err)
	}
	defer os.Remove(archivePath)

	asideDir := filepath.Join(gamePath, fmt.Sprintf(".pre-restore-%s-%d", record.ID, time.Now().Unix()))
	moved, err := moveAside(gamePath, metadataPaths(record), asideDir)
	if err != nil {
		putBack(gamePath, moved, asideDir)
		return err
	}

	if err := ExtractArchive(archivePath, gamePath); err != nil {
		for _, p := range moved {
			os.RemoveAll(filepath.Join(gamePath, filepath.FromSlash(p)))
		}
		putBack(gamePath, moved, asideDir)
		return fmt.Errorf("failed to extract archive: %w", err)
	}

	if len(moved) > 0 {
		log.Printf("[Backup] Previous files kept in %s", asideDir)
	}
	log.Printf("[Backup] Backup %s restored successfully", record.ID)
	return nil
}

func (m *Manager) download(record *BackupRecord, target string) error {
	dest, err := m.destinationFor(record)
	if err != nil {
		return err
	}
	defer closeDestination(dest)

	file, err := os.Create(target)
	if err != nil {
		return err
	}
	err = dest.Download(record.Filename, file)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(target)
	}
	return err
}

// destinationFor opens the destination a record was written to. Records made
// under an earlier configuration only resolve while the type still matches.
func (m *Manager) destinationFor(record *BackupRecord) (Destination, error) {
	cfg := m.cfg.Destination
	if record.DestinationType != cfg.Type {
		return nil, fmt.Errorf("backup %s is stored at a %s destination, current destination is %s",
			record.ID, record.DestinationType, cfg.Type)
	}
	cfg.Path = record.DestinationPath
	return m.newDestination(cfg)
}

// DeleteBackup removes the archive from its destination and marks the record
// deleted
func (m *Manager) DeleteBackup(ctx context.Context, id string) (err error) {
	if !m.mu.TryLock() {
		return ErrInProgress
	}
	defer m.mu.Unlock()

	defer func() {
		m.emit(Event{Action: ActionDelete, ID: id, Actor: server.ActorFromContext(ctx), Err: err})
	}()

	record, err := m.store.Get(id)
	if err != nil {
		return err
	}
	if record.Status == StatusDeleted {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.delete(record)
}

func (m *Manager) delete(record *BackupRecord) error {
	if record.Filename != "" {
		dest, err := m.destinationFor(record)
		if err != nil {
			return err
		}
		defer closeDestination(dest)

		if err := dest.Delete(record.Filename); err != nil {
			log.Printf("[Backup] Warning: Failed to delete from destination: %v", err)
		}
	}

	record.Status = StatusDeleted
	if err := m.store.Save(record); err != nil {
		return fmt.Errorf("failed to update backup record: %w", err)
	}
	log.Printf("[Backup] Backup %s deleted", record.ID)
	return nil
}

// worldPaths returns the dimension directories of the level named in
// server.properties
func worldPaths(gamePath string) ([]string, error) {
	level := "world"
	if data, err := os.ReadFile(filepath.Join(gamePath, properties.FileName)); err == nil {
		if name, ok := properties.Parse(data).Get("level-name"); ok && name != "" {
			level = name
		}
	}

	var paths []string
	for _, candidate := range []string{level, level + "_nether", level + "_the_end"} {
		if info, err := os.Stat(filepath.Join(gamePath, candidate)); err == nil && info.IsDir() {
			paths = append(paths, candidate)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no world directory %q found in %s", level, gamePath)
	}
	return paths, nil
}

func metadataPaths(record *BackupRecord) []string {
	if paths, ok := record.Metadata["paths"].([]string); ok {
		return paths
	}
	raw, ok := record.Metadata["paths"].([]interface{})
	if !ok {
		return nil
	}
	var paths []string
	for _, value := range raw {
		if p, ok := value.(string); ok && p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func moveAside(root string, paths []string, asideDir string) ([]string, error) {
	var moved []string
	for _, p := range paths {
		src := filepath.Join(root, filepath.FromSlash(p))
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		dst := filepath.Join(asideDir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return moved, err
		}
		if err := os.Rename(src, dst); err != nil {
			return moved, fmt.Errorf("failed to move %s aside: %w", p, err)
		}
		moved = append(moved, p)
	}
	return moved, nil
}

func putBack(root string, moved []string, asideDir string) {
	for _, p := range moved {
		if err := os.Rename(filepath.Join(asideDir, filepath.FromSlash(p)), filepath.Join(root, filepath.FromSlash(p))); err != nil {
			log.Printf("[Backup] Warning: Failed to restore %s from %s: %v", p, asideDir, err)
		}
	}
}
