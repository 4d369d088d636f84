package creds

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vovannam2/consultant-tui/internal/client"
)

func sample() Credentials {
	return Credentials{
		AccessToken:  "tok-1",
		RefreshToken: "ref-1",
		User:         client.User{ID: "u1", Name: "An Nguyen", Role: client.RoleStudent},
		Role:         client.RoleStudent,
	}
}

func TestFileStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "credentials.json")
	s := NewFileStore(path)

	if _, ok := s.Get(); ok {
		t.Fatal("empty store must report no credentials")
	}

	if err := s.Set(sample()); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok := s.Get()
	if !ok {
		t.Fatal("credentials not found after set")
	}
	if got.AccessToken != "tok-1" || got.User.ID != "u1" || got.Role != client.RoleStudent {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("credentials file mode = %o, want 600", perm)
	}
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	s := NewFileStore(path)

	if err := s.Clear(); err != nil {
		t.Fatalf("clear on missing file: %v", err)
	}

	if err := s.Set(sample()); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := s.Get(); ok {
		t.Fatal("credentials survived clear")
	}
}

func TestFileStoreRejectsEmptyToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte(`{"user":{"id":"u1"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok := NewFileStore(path).Get(); ok {
		t.Fatal("a record without a token is not a usable login")
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok := NewFileStore(path).Get(); ok {
		t.Fatal("corrupt file must read as logged out")
	}
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()
	if _, ok := s.Get(); ok {
		t.Fatal("fresh store must be empty")
	}
	if err := s.Set(sample()); err != nil {
		t.Fatal(err)
	}
	got, ok := s.Get()
	if !ok || got.AccessToken != "tok-1" {
		t.Fatalf("get = %+v, %v", got, ok)
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get(); ok {
		t.Fatal("credentials survived clear")
	}
}
