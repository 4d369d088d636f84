package devserver

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vovannam2/consultant-tui/internal/client"
)

const pollHold = 25 * time.Second

type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Message        string `json:"message"`
	ImageURL       string `json:"imageUrl,omitempty"`
	FileURL        string `json:"fileUrl,omitempty"`
}

// Server holds accounts, per-user read models and the push hub.
type Server struct {
	hub *hub

	mu            sync.Mutex
	byToken       map[string]client.User
	users         map[string]client.User
	notifications map[string][]client.Notification
	unreadNotifs  map[string]int
	unreadConvs   map[string]int
	messages      map[string]Message
	pollSessions  map[string]*pushClient
}

func New() *Server {
	return &Server{
		hub:           newHub(),
		byToken:       make(map[string]client.User),
		users:         make(map[string]client.User),
		notifications: make(map[string][]client.Notification),
		unreadNotifs:  make(map[string]int),
		unreadConvs:   make(map[string]int),
		messages:      make(map[string]Message),
		pollSessions:  make(map[string]*pushClient),
	}
}

// AddAccount registers a user and the token that authenticates it.
func (s *Server) AddAccount(u client.User, token string) {
	s.mu.Lock()
	s.byToken[token] = u
	s.users[u.ID] = u
	s.mu.Unlock()
}

// PushNotification stores a notification for userID and pushes it to every
// connection subscribed to that user's notification stream.
func (s *Server) PushNotification(userID string, ev client.NotificationEvent) {
	s.mu.Lock()
	s.notifications[userID] = append(s.notifications[userID], client.Notification{
		ID:               uuid.NewString(),
		SenderID:         ev.SenderID,
		Content:          ev.Content,
		Time:             ev.Time,
		NotificationType: ev.NotificationType,
		Status:           ev.Status,
	})
	s.unreadNotifs[userID]++
	s.mu.Unlock()
	s.hub.toUser(userID, true, envelope(client.EventNewNotification, 0, ev))
}

// SetUnreadConversations sets the authoritative count and pushes the new
// value to the user.
func (s *Server) SetUnreadConversations(userID string, n int) {
	s.mu.Lock()
	s.unreadConvs[userID] = n
	s.mu.Unlock()
	s.hub.toUser(userID, false, envelope(client.EventUnreadConversationCount, 0, n))
}

// SetUnreadConversationsQuiet sets the count without a push, for exercising
// pull-only reconciliation.
func (s *Server) SetUnreadConversationsQuiet(userID string, n int) {
	s.mu.Lock()
	s.unreadConvs[userID] = n
	s.mu.Unlock()
}

// OnlineIDs reports who the hub currently considers online.
func (s *Server) OnlineIDs() []string { return s.hub.onlineIDs() }

// Message returns a stored message by ID.
func (s *Server) Message(id string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	return m, ok
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/poll", s.handlePoll)
	mux.HandleFunc("/poll/events", s.handlePollEvents)
	mux.HandleFunc("/poll/emit", s.handlePollEmit)
	mux.HandleFunc("/api/conversations/unread-count", s.handleUnreadConversations)
	mux.HandleFunc("/api/notifications", s.handleNotifications)
	mux.HandleFunc("/api/notifications/unread-count", s.handleUnreadNotifications)
	mux.HandleFunc("/api/consultants/online", s.handleOnlineConsultants)
}

func ListenAndServe(addr string, mux *http.ServeMux) error {
	log.Printf("devserver listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

// --- websocket transport ---

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("devserver: ws upgrade: %v", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var h struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	if err := conn.ReadJSON(&h); err != nil {
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	u, ok := s.authToken(h.Auth.Token)
	if !ok {
		conn.WriteJSON(envelope(client.EventConnectError, 0, client.ErrorPayload{Message: "authentication failed"}))
		conn.Close()
		return
	}
	if err := conn.WriteJSON(envelope(client.EventConnected, 0, nil)); err != nil {
		conn.Close()
		return
	}

	c := newPushClient(u.ID)
	s.hub.add(c)
	go wsWritePump(conn, c)

	log.Printf("devserver: %s connected via websocket", u.ID)
	for {
		var env client.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			s.dropClient(c)
			log.Printf("devserver: %s disconnected", u.ID)
			return
		}
		s.handleInbound(c, &env)
	}
}

func wsWritePump(conn *websocket.Conn, c *pushClient) {
	defer conn.Close()
	for env := range c.send {
		if err := conn.WriteJSON(env); err != nil {
			return
		}
	}
}

// --- long-poll transport ---

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var h struct {
			Auth struct {
				Token string `json:"token"`
			} `json:"auth"`
		}
		if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
			http.Error(w, "bad handshake", http.StatusBadRequest)
			return
		}
		u, ok := s.authToken(h.Auth.Token)
		if !ok {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}
		c := newPushClient(u.ID)
		id := uuid.NewString()
		s.mu.Lock()
		s.pollSessions[id] = c
		s.mu.Unlock()
		s.hub.add(c)
		log.Printf("devserver: %s connected via polling", u.ID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"session": id})

	case http.MethodDelete:
		if c := s.takePollSession(r.URL.Query().Get("session")); c != nil {
			s.dropClient(c)
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePollEvents(w http.ResponseWriter, r *http.Request) {
	c := s.pollSession(r.URL.Query().Get("session"))
	if c == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	batch := []*client.Envelope{}
	timer := time.NewTimer(pollHold)
	defer timer.Stop()
	select {
	case env, ok := <-c.send:
		if !ok {
			http.Error(w, "session closed", http.StatusGone)
			return
		}
		batch = append(batch, env)
		// Drain whatever else is already queued.
	drain:
		for {
			select {
			case env, ok := <-c.send:
				if !ok {
					break drain
				}
				batch = append(batch, env)
			default:
				break drain
			}
		}
	case <-timer.C:
	case <-r.Context().Done():
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(batch)
}

func (s *Server) handlePollEmit(w http.ResponseWriter, r *http.Request) {
	c := s.pollSession(r.URL.Query().Get("session"))
	if c == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	var env client.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}
	s.handleInbound(c, &env)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pollSession(id string) *pushClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollSessions[id]
}

func (s *Server) takePollSession(id string) *pushClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.pollSessions[id]
	delete(s.pollSessions, id)
	return c
}

// --- inbound frames ---

func (s *Server) handleInbound(c *pushClient, env *client.Envelope) {
	switch env.Event {
	case client.EventUserOnline:
		var userID string
		if err := json.Unmarshal(env.Payload, &userID); err != nil || userID != c.userID {
			return
		}
		c.mu.Lock()
		c.online = true
		c.mu.Unlock()
		s.broadcastPresence(c.userID, "online")

	case client.EventJoinNotificationRoom:
		c.mu.Lock()
		c.notifRoom = true
		c.mu.Unlock()

	case client.EventJoinConversation:
		var convID string
		if json.Unmarshal(env.Payload, &convID) == nil {
			c.mu.Lock()
			c.convs[convID] = true
			c.mu.Unlock()
		}

	case client.EventSendMessage:
		var p client.SendMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		m := Message{
			ID:             uuid.NewString(),
			ConversationID: p.ConversationID,
			SenderID:       c.userID,
			Message:        p.Message,
			ImageURL:       p.ImageURL,
			FileURL:        p.FileURL,
		}
		s.mu.Lock()
		s.messages[m.ID] = m
		s.mu.Unlock()
		if env.ID != 0 {
			c.push(envelope(client.EventAck, env.ID, nil))
		}

	case client.EventUpdateMessage:
		var p client.UpdateMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.mu.Lock()
		if m, ok := s.messages[p.MessageID]; ok && m.SenderID == c.userID {
			m.Message = p.Message
			s.messages[p.MessageID] = m
		}
		s.mu.Unlock()

	case client.EventDeleteMessage:
		var p client.DeleteMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		s.mu.Lock()
		if m, ok := s.messages[p.MessageID]; ok && m.SenderID == c.userID {
			delete(s.messages, p.MessageID)
		}
		s.mu.Unlock()
	}
}

func (s *Server) dropClient(c *pushClient) {
	if s.hub.remove(c) {
		s.broadcastPresence(c.userID, "offline")
	}
}

func (s *Server) broadcastPresence(userID, status string) {
	s.hub.broadcast(envelope(client.EventUserStatusChanged, 0, client.StatusChange{UserID: userID, Status: status}))
	s.hub.broadcast(envelope(client.EventOnlineUsersList, 0, s.hub.onlineIDs()))
}

// --- pull endpoints ---

func (s *Server) authToken(token string) (client.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byToken[token]
	return u, ok
}

// authorize resolves the Bearer token of a REST request to its account.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) (client.User, bool) {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		if u, ok := s.authToken(strings.TrimPrefix(auth, "Bearer ")); ok {
			return u, true
		}
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
	return client.User{}, false
}

func (s *Server) handleUnreadConversations(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authorize(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	n := s.unreadConvs[u.ID]
	s.mu.Unlock()
	writeJSON(w, map[string]int{"count": n})
}

func (s *Server) handleUnreadNotifications(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authorize(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	n := s.unreadNotifs[u.ID]
	s.mu.Unlock()
	writeJSON(w, map[string]int{"count": n})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authorize(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	list := append([]client.Notification(nil), s.notifications[u.ID]...)
	s.mu.Unlock()
	writeJSON(w, list)
}

func (s *Server) handleOnlineConsultants(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r); !ok {
		return
	}
	online := s.hub.onlineIDs()
	s.mu.Lock()
	out := []client.User{}
	for _, id := range online {
		if u, ok := s.users[id]; ok && u.Role == client.RoleConsultant {
			out = append(out, u)
		}
	}
	s.mu.Unlock()
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("devserver: write response: %v", err)
	}
}
