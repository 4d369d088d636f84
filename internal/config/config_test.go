package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.URL != "http://127.0.0.1:8080" {
		t.Errorf("url = %q", cfg.Server.URL)
	}
	if cfg.Sync.ReconnectAttempts != 5 {
		t.Errorf("reconnect attempts = %d, want 5", cfg.Sync.ReconnectAttempts)
	}
	if cfg.Sync.ReconnectDelay != time.Second {
		t.Errorf("reconnect delay = %v, want 1s", cfg.Sync.ReconnectDelay)
	}
	if cfg.Sync.UnreadPollInterval != 30*time.Second {
		t.Errorf("unread poll interval = %v, want 30s", cfg.Sync.UnreadPollInterval)
	}
	if cfg.Sync.ConnectTimeout != 20*time.Second {
		t.Errorf("connect timeout = %v, want 20s", cfg.Sync.ConnectTimeout)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  url: https://consult.example.com
sync:
  unread_poll_interval: 10s
  reconnect_attempts: 3
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.URL != "https://consult.example.com" {
		t.Errorf("url = %q", cfg.Server.URL)
	}
	if cfg.Sync.UnreadPollInterval != 10*time.Second {
		t.Errorf("unread poll interval = %v, want 10s", cfg.Sync.UnreadPollInterval)
	}
	if cfg.Sync.ReconnectAttempts != 3 {
		t.Errorf("reconnect attempts = %d, want 3", cfg.Sync.ReconnectAttempts)
	}
	// Untouched values keep their defaults.
	if cfg.Sync.PresencePollInterval != 30*time.Second {
		t.Errorf("presence poll interval = %v, want 30s", cfg.Sync.PresencePollInterval)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  url: https://from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONSULT_SERVER_URL", "https://from-env")
	t.Setenv("CONSULT_RECONNECT_DELAY", "250ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.URL != "https://from-env" {
		t.Errorf("url = %q, want env override", cfg.Server.URL)
	}
	if cfg.Sync.ReconnectDelay != 250*time.Millisecond {
		t.Errorf("reconnect delay = %v, want 250ms", cfg.Sync.ReconnectDelay)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
