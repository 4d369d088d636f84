// Package creds persists the logged-in user's credentials. The rest of the
// program consumes it only through the narrow Store contract.
package creds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vovannam2/consultant-tui/internal/client"
)

// Credentials is everything the session layer needs to resume a login.
type Credentials struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	User         client.User `json:"user"`
	Role         string      `json:"role"`
}

// Store is the get/set/clear contract over persisted credentials.
type Store interface {
	Get() (Credentials, bool)
	Set(Credentials) error
	Clear() error
}

// FileStore keeps credentials in a JSON file under the user config dir.
type FileStore struct {
	path string
}

// DefaultPath returns the standard credentials file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "consultant-tui", "credentials.json"), nil
}

// NewFileStore creates a store backed by the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get() (Credentials, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Credentials{}, false
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil || c.AccessToken == "" {
		return Credentials{}, false
	}
	return c, true
}

func (s *FileStore) Set(c Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemStore is an in-memory Store for tests and ephemeral logins.
type MemStore struct {
	mu  sync.Mutex
	c   Credentials
	set bool
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Get() (Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c, s.set
}

func (s *MemStore) Set(c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = c
	s.set = true
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = Credentials{}
	s.set = false
	return nil
}
