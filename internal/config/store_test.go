package config

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := Default()
	cfg.Auth.JWTSecret = "test-secret"
	return NewStore(cfg, filepath.Join(t.TempDir(), "config.yaml"))
}

func TestStoreUpdateGamePersistsAndNotifies(t *testing.T) {
	store := newTestStore(t)

	var notified []GameConfig
	store.Subscribe(func(g GameConfig) {
		notified = append(notified, g)
	})

	port := 26000
	channel := ChannelRcon
	updated, err := store.UpdateGame(GamePatch{RconPort: &port, CommandChannel: &channel})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.RconPort != 26000 || updated.CommandChannel != ChannelRcon {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if updated.QueryPort != 25565 {
		t.Fatalf("untouched fields must keep their value, got %d", updated.QueryPort)
	}

	if len(notified) != 1 || notified[0].RconPort != 26000 {
		t.Fatalf("expected one notification with new port, got %+v", notified)
	}

	reloaded, err := LoadFrom(store.Path())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Game.RconPort != 26000 {
		t.Fatalf("expected persisted rcon port, got %d", reloaded.Game.RconPort)
	}
}

func TestStoreUpdateGameRejectsInvalid(t *testing.T) {
	store := newTestStore(t)

	called := false
	store.Subscribe(func(GameConfig) { called = true })

	port := 0
	if _, err := store.UpdateGame(GamePatch{QueryPort: &port}); err == nil {
		t.Fatalf("expected validation error")
	}
	if called {
		t.Fatalf("subscribers must not run on rejected updates")
	}
	if store.Game().QueryPort != 25565 {
		t.Fatalf("rejected update must not change the store")
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Fatalf("rejected update must not write the file")
	}
}

func TestStoreRedactedPasswordIsIgnored(t *testing.T) {
	store := newTestStore(t)

	redacted := store.Game().Redacted().RconPassword
	if redacted != RedactedSecret {
		t.Fatalf("expected redacted password, got %q", redacted)
	}

	if _, err := store.UpdateGame(GamePatch{RconPassword: &redacted}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if store.Game().RconPassword != "admin" {
		t.Fatalf("redacted marker must not overwrite the password")
	}
}

func TestStoreGetReturnsCopy(t *testing.T) {
	store := newTestStore(t)

	game := store.Game()
	game.Properties["difficulty"] = "hard"

	if _, ok := store.Game().Properties["difficulty"]; ok {
		t.Fatalf("mutating a copy must not leak into the store")
	}
}

func TestStoreSetUser(t *testing.T) {
	store := newTestStore(t)

	if err := store.SetUser("admin", "$2a$10$hash"); err != nil {
		t.Fatalf("set user failed: %v", err)
	}
	hash, ok := store.PasswordHash("admin")
	if !ok || hash != "$2a$10$hash" {
		t.Fatalf("unexpected hash %q", hash)
	}
}
