package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// API makes REST calls to the consultation backend. These are the pull
// endpoints backing reconciliation; request/response features of the wider
// platform live elsewhere.
type API struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	token string
}

// NewAPI creates a client targeting the given base URL (e.g. "http://127.0.0.1:8080").
func NewAPI(baseURL, token string) *API {
	return &API{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SetToken swaps the bearer token. Used on token rotation so in-flight
// clients need not be rebuilt.
func (c *API) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// UnreadConversationCount fetches the authoritative unread conversation count.
func (c *API) UnreadConversationCount() (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.get("/api/conversations/unread-count", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// UnreadNotificationCount fetches the authoritative unread notification count.
func (c *API) UnreadNotificationCount() (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.get("/api/notifications/unread-count", &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// OnlineConsultants fetches the full list of currently online consultants.
func (c *API) OnlineConsultants() ([]User, error) {
	var out []User
	if err := c.get("/api/consultants/online", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Notifications fetches the persisted notification list.
func (c *API) Notifications() ([]Notification, error) {
	var out []Notification
	if err := c.get("/api/notifications", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *API) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *API) setAuth(req *http.Request) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
