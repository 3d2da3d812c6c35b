package backup

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"

	"github.com/yourusername/mc-server-panel/internal/config"
)

// SFTPDestination stores backups on a remote SFTP server
type SFTPDestination struct {
	basePath   string
	sshClient  *xssh.Client
	sftpClient *sftp.Client
}

// NewSFTPDestination connects to the configured host
func NewSFTPDestination(cfg config.DestinationConfig) (*SFTPDestination, error) {
	hostKeyCallback, err := NewHostKeyCallback(cfg.KnownHostsPath, cfg.TrustOnFirstUse)
	if err != nil {
		return nil, fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &xssh.ClientConfig{
		User:            cfg.SFTPUsername,
		HostKeyCallback: hostKeyCallback,
		Timeout:         30 * time.Second,
	}

	if cfg.SFTPKeyPath != "" {
		keyData, err := os.ReadFile(cfg.SFTPKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := xssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, xssh.PublicKeys(signer))
	}
	if cfg.SFTPPassword != "" {
		sshConfig.Auth = append(sshConfig.Auth, xssh.Password(cfg.SFTPPassword))
	}
	if len(sshConfig.Auth) == 0 {
		return nil, fmt.Errorf("no authentication method provided for SFTP")
	}

	port := cfg.SFTPPort
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.SFTPHost, strconv.Itoa(port))
	log.Printf("[SFTPDest] Connecting to %s...", addr)

	sshClient, err := xssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH server: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshClient,
		sftp.MaxPacketUnchecked(131072),
		sftp.UseConcurrentWrites(true),
		sftp.MaxConcurrentRequestsPerFile(64),
	)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	dest, err := newSFTPDestination(sftpClient, cfg.Path)
	if err != nil {
		sftpClient.Close()
		sshClient.Close()
		return nil, err
	}
	dest.sshClient = sshClient

	log.Printf("[SFTPDest] Connected successfully")
	return dest, nil
}

func newSFTPDestination(client *sftp.Client, basePath string) (*SFTPDestination, error) {
	if basePath == "" {
		basePath = "."
	}
	if err := client.MkdirAll(basePath); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &SFTPDestination{basePath: basePath, sftpClient: client}, nil
}

// Close closes the SFTP and SSH connections
func (sd *SFTPDestination) Close() error {
	if sd.sftpClient != nil {
		sd.sftpClient.Close()
	}
	if sd.sshClient != nil {
		sd.sshClient.Close()
	}
	return nil
}

func (sd *SFTPDestination) remotePath(filename string) (string, error) {
	if filename == "" || strings.ContainsAny(filename, "/\\") || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("invalid backup filename %q", filename)
	}
	return path.Join(sd.basePath, filename), nil
}

// Upload writes to a temporary name and renames it once complete
func (sd *SFTPDestination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	destPath, err := sd.remotePath(filename)
	if err != nil {
		return err
	}
	tmpPath := path.Join(sd.basePath, ".upload-"+filename)
	log.Printf("[SFTPDest] Uploading %s to %s (%d bytes)", filename, destPath, sizeBytes)

	file, err := sd.sftpClient.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}

	written, err := io.Copy(file, reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		sd.sftpClient.Remove(tmpPath)
		return fmt.Errorf("failed to write remote file: %w", err)
	}
	if written != sizeBytes {
		sd.sftpClient.Remove(tmpPath)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", sizeBytes, written)
	}
	if err := sd.sftpClient.PosixRename(tmpPath, destPath); err != nil {
		if err := sd.sftpClient.Rename(tmpPath, destPath); err != nil {
			sd.sftpClient.Remove(tmpPath)
			return fmt.Errorf("failed to store remote file: %w", err)
		}
	}

	log.Printf("[SFTPDest] Upload complete: %s", filename)
	return nil
}

// Download downloads a backup file from the SFTP destination
func (sd *SFTPDestination) Download(filename string, writer io.Writer) error {
	srcPath, err := sd.remotePath(filename)
	if err != nil {
		return err
	}

	file, err := sd.sftpClient.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("failed to read remote file: %w", err)
	}
	return nil
}

// Delete removes a backup file from the SFTP destination
func (sd *SFTPDestination) Delete(filename string) error {
	destPath, err := sd.remotePath(filename)
	if err != nil {
		return err
	}
	log.Printf("[SFTPDest] Deleting %s", destPath)

	if err := sd.sftpClient.Remove(destPath); err != nil {
		return fmt.Errorf("failed to delete remote file: %w", err)
	}
	return nil
}

// List returns all backup files in the SFTP destination
func (sd *SFTPDestination) List() ([]BackupFile, error) {
	entries, err := sd.sftpClient.ReadDir(sd.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote directory: %w", err)
	}

	var files []BackupFile
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		files = append(files, BackupFile{
			Filename:  entry.Name(),
			SizeBytes: entry.Size(),
			CreatedAt: entry.ModTime().Unix(),
		})
	}

	return files, nil
}

// GetType returns the destination type
func (sd *SFTPDestination) GetType() string {
	return config.DestinationSFTP
}
