package backup

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/mc-server-panel/internal/config"
)

// LocalDestination stores backups on the local filesystem
type LocalDestination struct {
	basePath string
}

// NewLocalDestination creates a new local destination
func NewLocalDestination(basePath string) *LocalDestination {
	return &LocalDestination{
		basePath: basePath,
	}
}

// Upload writes a backup file through a temp file, so List never reports a
// partial archive
func (ld *LocalDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	if err := os.MkdirAll(ld.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	destPath, err := ld.resolve(filename)
	if err != nil {
		return err
	}
	log.Printf("[LocalDest] Uploading %s to %s (%d bytes)", filename, destPath, sizeBytes)

	tmp, err := os.CreateTemp(ld.basePath, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	if written != sizeBytes {
		os.Remove(tmpName)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", sizeBytes, written)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to store backup file: %w", err)
	}

	log.Printf("[LocalDest] Upload complete: %s", filename)
	return nil
}

// Download reads a backup file from the local destination
func (ld *LocalDestination) Download(filename string, writer io.Writer) error {
	srcPath, err := ld.resolve(filename)
	if err != nil {
		return err
	}

	file, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}
	return nil
}

// Delete removes a backup file from the local destination. A file that is
// already gone is not an error.
func (ld *LocalDestination) Delete(filename string) error {
	destPath, err := ld.resolve(filename)
	if err != nil {
		return err
	}
	log.Printf("[LocalDest] Deleting %s", destPath)

	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete backup file: %w", err)
	}
	return nil
}

// List returns all backup files in the local destination
func (ld *LocalDestination) List() ([]BackupFile, error) {
	if err := os.MkdirAll(ld.basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to access backup directory: %w", err)
	}

	entries, err := os.ReadDir(ld.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var files []BackupFile
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Printf("[LocalDest] Warning: Failed to get info for %s: %v", entry.Name(), err)
			continue
		}

		files = append(files, BackupFile{
			Filename:  entry.Name(),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime().Unix(),
		})
	}

	return files, nil
}

// GetType returns the destination type
func (ld *LocalDestination) GetType() string {
	return config.DestinationLocal
}

// Exists checks if a backup file exists
func (ld *LocalDestination) Exists(filename string) bool {
	destPath, err := ld.resolve(filename)
	if err != nil {
		return false
	}
	_, err = os.Stat(destPath)
	return err == nil
}

func (ld *LocalDestination) resolve(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("invalid backup filename %q", filename)
	}
	return filepath.Join(ld.basePath, filename), nil
}
