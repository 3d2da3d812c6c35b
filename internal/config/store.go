package config

import (
	"fmt"
	"log"
	"sync"
)

// Store handles thread-safe access to the live configuration and writes
// every accepted change back to disk.
type Store struct {
	path        string
	mutex       sync.RWMutex
	cfg         *Config
	subscribers []func(GameConfig)
}

// NewStore wraps an already loaded configuration.
func NewStore(cfg *Config, path string) *Store {
	return &Store{
		path: path,
		cfg:  cfg.Clone(),
	}
}

// Path returns the file the store persists to
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the full configuration
func (s *Store) Get() *Config {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.cfg.Clone()
}

// Game returns a copy of the game section
func (s *Store) Game() GameConfig {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.cfg.Game.Clone()
}

// PasswordHash returns the stored hash for a user
func (s *Store) PasswordHash(username string) (string, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	hash, ok := s.cfg.Auth.Users[username]
	return hash, ok
}

// Subscribe registers fn to receive the game section after each update.
func (s *Store) Subscribe(fn func(GameConfig)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// UpdateGame merges patch into the game section, validates and persists the
// result, then notifies subscribers. Nothing changes when validation or the
// write fails.
func (s *Store) UpdateGame(patch GamePatch) (GameConfig, error) {
	s.mutex.Lock()
	next := patch.Apply(s.cfg.Game)
	if err := next.Validate(); err != nil {
		s.mutex.Unlock()
		return GameConfig{}, fmt.Errorf("invalid game configuration: %w", err)
	}

	updated := s.cfg.Clone()
	updated.Game = next
	if err := Save(updated, s.path); err != nil {
		s.mutex.Unlock()
		return GameConfig{}, err
	}
	s.cfg = updated
	subscribers := append([]func(GameConfig){}, s.subscribers...)
	s.mutex.Unlock()

	log.Printf("[Config] Game configuration updated (%s)", s.path)
	for _, fn := range subscribers {
		fn(next.Clone())
	}
	return next.Clone(), nil
}

// SetUser adds or replaces a user's password hash and persists it.
func (s *Store) SetUser(username, hash string) error {
	if username == "" || hash == "" {
		return fmt.Errorf("username and hash are required")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	updated := s.cfg.Clone()
	if updated.Auth.Users == nil {
		updated.Auth.Users = map[string]string{}
	}
	updated.Auth.Users[username] = hash
	if err := Save(updated, s.path); err != nil {
		return err
	}
	s.cfg = updated
	return nil
}
