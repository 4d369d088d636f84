// Package config loads client configuration from an optional YAML file with
// CONSULT_* environment overrides.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Sync   SyncConfig   `yaml:"sync"`
}

type ServerConfig struct {
	// URL is the backend base URL; the push endpoint and the REST API hang
	// off the same host.
	URL string `yaml:"url" env:"CONSULT_SERVER_URL"`
	// Token overrides the persisted credential when set (useful against a
	// dev server).
	Token string `yaml:"token" env:"CONSULT_TOKEN"`
}

type SyncConfig struct {
	UnreadPollInterval   time.Duration `yaml:"unread_poll_interval" env:"CONSULT_UNREAD_POLL_INTERVAL"`
	PresencePollInterval time.Duration `yaml:"presence_poll_interval" env:"CONSULT_PRESENCE_POLL_INTERVAL"`
	ReconnectAttempts    int           `yaml:"reconnect_attempts" env:"CONSULT_RECONNECT_ATTEMPTS"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay" env:"CONSULT_RECONNECT_DELAY"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout" env:"CONSULT_CONNECT_TIMEOUT"`
}

// Load reads path if it exists, applies environment overrides and returns
// the effective config. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			URL: "http://127.0.0.1:8080",
		},
		Sync: SyncConfig{
			UnreadPollInterval:   30 * time.Second,
			PresencePollInterval: 30 * time.Second,
			ReconnectAttempts:    5,
			ReconnectDelay:       time.Second,
			ConnectTimeout:       20 * time.Second,
		},
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
