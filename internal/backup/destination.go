package backup

import (
	"fmt"
	"io"

	"github.com/yourusername/mc-server-panel/internal/config"
)

// Destination represents a backup storage destination
type Destination interface {
	// Upload uploads a file from the source reader to the destination
	Upload(filename string, reader io.Reader, sizeBytes int64) error

	// Download downloads a file from the destination to the writer
	Download(filename string, writer io.Writer) error

	// Delete removes a file from the destination
	Delete(filename string) error

	// List returns all backup files at the destination
	List() ([]BackupFile, error)

	// GetType returns the destination type identifier
	GetType() string
}

// BackupFile represents a file in a backup destination
type BackupFile struct {
	Filename  string
	SizeBytes int64
	CreatedAt int64 // Unix timestamp
}

// NewDestination creates a new backup destination based on config. Callers
// close the result when it implements io.Closer.
func NewDestination(cfg config.DestinationConfig) (Destination, error) {
	switch cfg.Type {
	case config.DestinationLocal:
		return NewLocalDestination(cfg.Path), nil
	case config.DestinationSFTP:
		return NewSFTPDestination(cfg)
	case config.DestinationS3:
		return NewS3Destination(cfg)
	default:
		return nil, fmt.Errorf("unsupported destination type: %s", cfg.Type)
	}
}

func closeDestination(dest Destination) {
	if closer, ok := dest.(io.Closer); ok {
		closer.Close()
	}
}
