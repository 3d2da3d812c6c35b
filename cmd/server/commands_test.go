package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yourusername/mc-server-panel/internal/auth"
	"github.com/yourusername/mc-server-panel/internal/config"
)

func TestReadPassword(t *testing.T) {
	password, err := readPassword(strings.NewReader("hunter2\r\n"))
	if err != nil || password != "hunter2" {
		t.Fatalf("unexpected result %q, %v", password, err)
	}
	if _, err := readPassword(strings.NewReader("\n")); err == nil {
		t.Fatalf("expected error for empty password")
	}
}

func TestHashPasswordCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("secret-pass\n"))
	cmd.SetArgs([]string{"hash-password", "--cost", "10"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("hash-password failed: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if err := auth.VerifyPassword("secret-pass", hash); err != nil {
		t.Fatalf("printed hash does not verify: %q", hash)
	}
}

func TestAddUserAndMigrateCommands(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "config.yaml")
	t.Setenv("JWT_SECRET", "test-secret-value")
	t.Setenv("DATA_DIR", filepath.Join(root, "data"))
	t.Setenv("DATABASE_PATH", filepath.Join(root, "data", "panel.db"))

	cfg := config.Default()
	cfg.Auth.BcryptCost = 10
	cfg.Game.Path = root
	if err := config.Save(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("operator-pass\n"))
	cmd.SetArgs([]string{"--config", path, "add-user", "operator"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add-user failed: %v", err)
	}
	configPath = ""

	loaded, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if err := auth.VerifyPassword("operator-pass", loaded.Auth.Users["operator"]); err != nil {
		t.Fatalf("stored hash does not verify")
	}

	cmd = newRootCommand()
	cmd.SetArgs([]string{"--config", path, "migrate"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	configPath = ""
	if _, err := os.Stat(filepath.Join(root, "data", "panel.db")); err != nil {
		t.Fatalf("expected database file: %v", err)
	}

	var out bytes.Buffer
	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "migrate", "--status"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("migrate --status failed: %v", err)
	}
	configPath = ""
	if !strings.Contains(out.String(), "schema: 003_backups") || strings.Contains(out.String(), "pending:") {
		t.Fatalf("unexpected status output %q", out.String())
	}
}
