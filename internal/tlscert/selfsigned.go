// Package tlscert issues the panel's self-signed HTTPS certificate.
package tlscert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourusername/mc-server-panel/internal/logging"
)

const defaultTTL = 365 * 24 * time.Hour

// Certificate describes an issued certificate
type Certificate struct {
	CertPEM     []byte
	KeyPEM      []byte
	Serial      string
	NotAfter    time.Time
	Fingerprint string
}

// IssueSelfSigned creates a self-signed server certificate valid for hosts.
// Empty and wildcard listen addresses are replaced by localhost.
func IssueSelfSigned(hosts []string, ttl time.Duration) (*Certificate, error) {
	if ttl == 0 {
		ttl = defaultTTL
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName:   "mc-panel",
			Organization: []string{"Minecraft Server Panel"},
		},
		NotBefore:             time.Now().Add(-5 * time.Minute),
		NotAfter:              time.Now().Add(ttl),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	for _, host := range certHosts(hosts) {
		if ip := net.ParseIP(host); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create cert: %w", err)
	}

	h := sha256.Sum256(der)
	return &Certificate{
		CertPEM:     pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:      pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
		Serial:      fmt.Sprintf("%x", serialNumber),
		NotAfter:    tmpl.NotAfter,
		Fingerprint: fmt.Sprintf("%x", h[:]),
	}, nil
}

func certHosts(hosts []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(host string) {
		if host != "" && !seen[host] {
			seen[host] = true
			out = append(out, host)
		}
	}
	for _, host := range hosts {
		host = strings.TrimSpace(host)
		if host == "" || host == "0.0.0.0" || host == "::" {
			add("localhost")
			add("127.0.0.1")
			continue
		}
		add(host)
	}
	if len(out) == 0 {
		add("localhost")
		add("127.0.0.1")
	}
	return out
}

// EnsureSelfSigned writes a self-signed certificate to certFile and keyFile
// unless both already exist. It reports whether a certificate was created.
func EnsureSelfSigned(certFile, keyFile string, hosts []string) (bool, error) {
	certExists := fileExists(certFile)
	keyExists := fileExists(keyFile)
	if certExists && keyExists {
		return false, nil
	}
	if certExists != keyExists {
		return false, errors.New("only one of cert_file and key_file exists")
	}

	cert, err := IssueSelfSigned(hosts, 0)
	if err != nil {
		return false, err
	}

	for _, dir := range []string{filepath.Dir(certFile), filepath.Dir(keyFile)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return false, fmt.Errorf("failed to create certificate directory: %w", err)
		}
	}
	if err := os.WriteFile(keyFile, cert.KeyPEM, 0600); err != nil {
		return false, fmt.Errorf("failed to write key: %w", err)
	}
	if err := os.WriteFile(certFile, cert.CertPEM, 0644); err != nil {
		return false, fmt.Errorf("failed to write certificate: %w", err)
	}

	logging.L().Info("self_signed_certificate_created",
		"cert_file", certFile,
		"serial", cert.Serial,
		"fingerprint", cert.Fingerprint,
		"expires_at", cert.NotAfter,
	)
	return true, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
