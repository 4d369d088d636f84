package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovannam2/consultant-tui/internal/app"
	"github.com/vovannam2/consultant-tui/internal/client"
	"github.com/vovannam2/consultant-tui/internal/config"
	"github.com/vovannam2/consultant-tui/internal/creds"
	"github.com/vovannam2/consultant-tui/internal/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	serverURL := flag.String("url", "", "Override backend base URL")
	token := flag.String("token", "", "Sign in with this token instead of stored credentials")
	userID := flag.String("user", "", "User ID for -token sign-in")
	userName := flag.String("name", "", "Display name for -token sign-in")
	role := flag.String("role", client.RoleStudent, "Role for -token sign-in")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.Server.URL = *serverURL
	}
	if *token == "" {
		*token = cfg.Server.Token
	}

	// UI owns the terminal; diagnostics go to a log file instead.
	if f, err := tea.LogToFile("consult-tui.log", "consult"); err == nil {
		log.SetOutput(f)
		defer f.Close()
	}

	credStore, err := credentialStore(*token, *userID, *userName, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rt := client.NewRealtime(cfg.Server.URL, client.Options{
		MaxAttempts:    cfg.Sync.ReconnectAttempts,
		RetryDelay:     cfg.Sync.ReconnectDelay,
		ConnectTimeout: cfg.Sync.ConnectTimeout,
	})
	api := client.NewAPI(cfg.Server.URL, "")
	caches := app.NewCaches()

	store := session.New(rt, api, credStore, caches, session.Options{
		UnreadPollInterval:   cfg.Sync.UnreadPollInterval,
		PresencePollInterval: cfg.Sync.PresencePollInterval,
	})
	if err := store.Start(); err != nil {
		log.Printf("session start: %v", err)
	}
	defer store.Close()

	m := app.New(store, api, caches)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithReportFocus())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// credentialStore returns the persisted file store, or an ephemeral store
// when a token was passed on the command line.
func credentialStore(token, userID, name, role string) (creds.Store, error) {
	if token == "" {
		path, err := creds.DefaultPath()
		if err != nil {
			return nil, err
		}
		return creds.NewFileStore(path), nil
	}
	if userID == "" {
		return nil, fmt.Errorf("-token requires -user")
	}
	if name == "" {
		name = userID
	}
	s := creds.NewMemStore()
	s.Set(creds.Credentials{
		AccessToken: token,
		User:        client.User{ID: userID, Name: name, Role: role},
		Role:        role,
	})
	return s, nil
}
