package backup

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/yourusername/mc-server-panel/internal/logging"
)

// NewHostKeyCallback verifies SFTP hosts against a known_hosts file. Unknown
// hosts are recorded when trustOnFirstUse is set and rejected otherwise; a
// changed key is always rejected.
func NewHostKeyCallback(knownHostsPath string, trustOnFirstUse bool) (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(knownHostsPath) == "" {
		return nil, fmt.Errorf("known_hosts path is required")
	}

	if err := ensureKnownHostsFile(knownHostsPath); err != nil {
		return nil, err
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		// re-read so hosts recorded earlier in this process are seen
		baseCallback, err := knownhosts.New(knownHostsPath)
		if err != nil {
			return fmt.Errorf("failed to read known_hosts: %w", err)
		}

		err = baseCallback(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}

		if len(keyErr.Want) == 0 {
			if !trustOnFirstUse {
				return fmt.Errorf("unknown SSH host key for %s", hostname)
			}

			if err := appendKnownHost(knownHostsPath, hostname, remote, key); err != nil {
				return err
			}

			logging.L().Info("ssh_host_key_accepted",
				"host", hostname,
				"fingerprint", ssh.FingerprintSHA256(key),
			)
			return nil
		}

		logging.L().Warn("ssh_host_key_changed",
			"host", hostname,
			"fingerprint", ssh.FingerprintSHA256(key),
		)
		return fmt.Errorf("SSH host key changed for %s", hostname)
	}, nil
}

func ensureKnownHostsFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create known_hosts directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create known_hosts file: %w", err)
	}
	return file.Close()
}

func appendKnownHost(path, hostname string, remote net.Addr, key ssh.PublicKey) error {
	line := knownhosts.Line(knownHostsEntries(hostname, remote), key)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write known_hosts entry: %w", err)
	}
	return nil
}

// knownHostsEntries lists the dialed name and, when different, the remote IP
func knownHostsEntries(hostname string, remote net.Addr) []string {
	var entries []string
	if hostname != "" {
		entries = append(entries, knownhosts.Normalize(hostname))
	}
	if remote != nil {
		if addr := knownhosts.Normalize(remote.String()); addr != "" && (len(entries) == 0 || addr != entries[0]) {
			entries = append(entries, addr)
		}
	}
	return entries
}
