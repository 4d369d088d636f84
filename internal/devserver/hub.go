// Package devserver is a self-contained consultation push server used by
// integration tests and as a local demo backend. It speaks the full wire
// protocol: websocket and long-poll transports, presence broadcasts, unread
// pushes and the pull endpoints.
package devserver

import (
	"encoding/json"
	"log"
	"sort"
	"sync"

	"github.com/vovannam2/consultant-tui/internal/client"
)

// pushClient is one connected transport session, websocket or poll.
type pushClient struct {
	userID string
	send   chan *client.Envelope

	mu        sync.Mutex
	closed    bool
	online    bool
	notifRoom bool
	convs     map[string]bool
}

func newPushClient(userID string) *pushClient {
	return &pushClient{
		userID: userID,
		send:   make(chan *client.Envelope, 64),
		convs:  make(map[string]bool),
	}
}

func (c *pushClient) push(env *client.Envelope) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	select {
	case c.send <- env:
	default:
		// Client too slow, drop the frame.
	}
}

func (c *pushClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// hub tracks connected clients and who is online.
type hub struct {
	mu      sync.Mutex
	clients map[*pushClient]bool
}

func newHub() *hub {
	return &hub{clients: make(map[*pushClient]bool)}
}

func (h *hub) add(c *pushClient) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

// remove drops the client and reports whether its user just went fully
// offline (no remaining online connection).
func (h *hub) remove(c *pushClient) (wentOffline bool) {
	h.mu.Lock()
	delete(h.clients, c)
	c.mu.Lock()
	wasOnline := c.online
	c.mu.Unlock()
	if wasOnline {
		wentOffline = true
		for other := range h.clients {
			other.mu.Lock()
			if other.userID == c.userID && other.online {
				wentOffline = false
			}
			other.mu.Unlock()
		}
	}
	h.mu.Unlock()
	c.close()
	return wentOffline
}

func (h *hub) onlineIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]bool)
	for c := range h.clients {
		c.mu.Lock()
		if c.online {
			seen[c.userID] = true
		}
		c.mu.Unlock()
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *hub) snapshot() []*pushClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*pushClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *hub) broadcast(env *client.Envelope) {
	for _, c := range h.snapshot() {
		c.push(env)
	}
}

// toUser pushes to every connection of userID; when notifRoom is true only
// connections subscribed to the notification stream receive the frame.
func (h *hub) toUser(userID string, notifRoom bool, env *client.Envelope) {
	for _, c := range h.snapshot() {
		c.mu.Lock()
		ok := c.userID == userID && (!notifRoom || c.notifRoom)
		c.mu.Unlock()
		if ok {
			c.push(env)
		}
	}
}

func envelope(event client.EventName, id uint64, payload any) *client.Envelope {
	env := &client.Envelope{Event: event, ID: id}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Printf("devserver: marshal %s: %v", event, err)
			return env
		}
		env.Payload = raw
	}
	return env
}
