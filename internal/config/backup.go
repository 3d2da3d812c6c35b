package config

import (
	"fmt"
	"path"
	"strings"
)

// Backup destination types
const (
	DestinationLocal = "local"
	DestinationSFTP  = "sftp"
	DestinationS3    = "s3"
)

// BackupConfig controls world backups. Paths are relative to the game
// directory; when empty the worlds named by level-name are archived.
type BackupConfig struct {
	Paths       []string          `yaml:"paths" json:"paths"`
	Exclude     []string          `yaml:"exclude" json:"exclude"`
	Compression string            `yaml:"compression" json:"compression"`
	Level       int               `yaml:"level" json:"level"`
	Retention   int               `yaml:"retention" json:"retention"`
	StagingDir  string            `yaml:"staging_dir" json:"staging_dir"`
	Destination DestinationConfig `yaml:"destination" json:"destination"`
}

// DestinationConfig describes where finished archives are stored
type DestinationConfig struct {
	Type string `yaml:"type" json:"type"`
	Path string `yaml:"path" json:"path"`

	SFTPHost        string `yaml:"sftp_host" json:"sftp_host,omitempty"`
	SFTPPort        int    `yaml:"sftp_port" json:"sftp_port,omitempty"`
	SFTPUsername    string `yaml:"sftp_username" json:"sftp_username,omitempty"`
	SFTPPassword    string `yaml:"sftp_password" json:"-"`
	SFTPKeyPath     string `yaml:"sftp_key_path" json:"sftp_key_path,omitempty"`
	KnownHostsPath  string `yaml:"known_hosts_path" json:"known_hosts_path,omitempty"`
	TrustOnFirstUse bool   `yaml:"trust_on_first_use" json:"trust_on_first_use"`

	S3Bucket    string `yaml:"s3_bucket" json:"s3_bucket,omitempty"`
	S3Region    string `yaml:"s3_region" json:"s3_region,omitempty"`
	S3AccessKey string `yaml:"s3_access_key" json:"-"`
	S3SecretKey string `yaml:"s3_secret_key" json:"-"`
	S3Endpoint  string `yaml:"s3_endpoint" json:"s3_endpoint,omitempty"`
}

// DefaultBackup keeps ten gzip archives on local disk
func DefaultBackup() BackupConfig {
	return BackupConfig{
		Compression: "gzip",
		Level:       6,
		Retention:   10,
		Destination: DestinationConfig{Type: DestinationLocal},
	}
}

// Validate checks the backup section
func (b *BackupConfig) Validate() error {
	switch strings.ToLower(b.Compression) {
	case "", "gzip", "none":
	default:
		return fmt.Errorf("compression must be gzip or none")
	}
	if b.Level < 0 || b.Level > 9 {
		return fmt.Errorf("level must be between 0 and 9")
	}
	if b.Retention < 0 {
		return fmt.Errorf("retention must not be negative")
	}
	for _, p := range b.Paths {
		clean := path.Clean(strings.TrimSpace(p))
		if clean == "." || clean == "" || path.IsAbs(clean) || strings.HasPrefix(clean, "../") || clean == ".." {
			return fmt.Errorf("backup path %q must stay inside the game directory", p)
		}
	}
	for _, pattern := range b.Exclude {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	d := b.Destination
	switch d.Type {
	case DestinationLocal:
	case DestinationSFTP:
		if d.SFTPHost == "" || d.SFTPUsername == "" {
			return fmt.Errorf("sftp destination needs sftp_host and sftp_username")
		}
		if d.SFTPPassword == "" && d.SFTPKeyPath == "" {
			return fmt.Errorf("sftp destination needs sftp_password or sftp_key_path")
		}
		if d.SFTPPort < 0 || d.SFTPPort > 65535 {
			return fmt.Errorf("sftp_port must be between 1 and 65535")
		}
	case DestinationS3:
		if d.S3Bucket == "" || d.S3Region == "" {
			return fmt.Errorf("s3 destination needs s3_bucket and s3_region")
		}
	default:
		return fmt.Errorf("unsupported destination type %q", d.Type)
	}
	return nil
}
