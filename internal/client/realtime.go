package client

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

// State is the connection lifecycle state. Owned by Realtime, read-only
// elsewhere.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthError:
		return "auth_error"
	default:
		return "unknown"
	}
}

// ErrEmptyToken is returned by Connect when no credential is available. No
// network call is made in that case.
var ErrEmptyToken = errors.New("empty token")

// Handler receives the raw payload of one event occurrence.
type Handler func(payload json.RawMessage)

// Options tunes the connection policy. Zero values take the defaults below.
type Options struct {
	MaxAttempts    int           // dial attempts per connect cycle
	RetryDelay     time.Duration // fixed delay between attempts, no backoff
	ConnectTimeout time.Duration
}

const (
	defaultMaxAttempts    = 5
	defaultRetryDelay     = time.Second
	defaultConnectTimeout = 20 * time.Second
)

// Realtime owns the single push connection to the consultation backend.
// Connect replaces any prior connection, so at most one is ever live.
// Server events and local lifecycle events (connect, disconnect, reconnect,
// ...) are delivered through the listener registry; On returns a remove
// func so every registration is released exactly once.
type Realtime struct {
	url  string
	opts Options
	dial dialFunc

	mu       sync.Mutex
	state    State
	tr       transport
	gen      uint64 // bumped on every Connect/Disconnect; stale runs exit
	userID   string
	token    string
	onUnread func(int)
	onNotif  func(NotificationEvent)

	listeners map[EventName]map[uint64]Handler
	authObs   map[uint64]func(error)
	nextSub   uint64

	nextAckID uint64
	acks      map[uint64]func()
}

// NewRealtime creates a manager targeting the given server base URL
// (e.g. "http://127.0.0.1:8080"). No connection is opened until Connect.
func NewRealtime(serverURL string, opts Options) *Realtime {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	return &Realtime{
		url:       serverURL,
		opts:      opts,
		dial:      negotiate,
		listeners: make(map[EventName]map[uint64]Handler),
		authObs:   make(map[uint64]func(error)),
		acks:      make(map[uint64]func()),
	}
}

// Connect opens the push channel for userID, authenticating with token. An
// existing connection is torn down first. The onUnread callback receives
// unreadConversationCount pushes (replace semantics); onNotification receives
// each newNotification. Both may be nil. Connection progress and failures are
// reported through registered listeners; only an unusable token fails here.
func (r *Realtime) Connect(userID, token string, onUnread func(int), onNotification func(NotificationEvent)) error {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.teardownLocked()
	if strings.TrimSpace(token) == "" {
		r.state = StateAuthError
		r.mu.Unlock()
		return ErrEmptyToken
	}
	r.state = StateConnecting
	r.userID = userID
	r.token = token
	r.onUnread = onUnread
	r.onNotif = onNotification
	r.mu.Unlock()

	go r.run(gen, userID, token)
	return nil
}

// Disconnect closes the connection if one exists. Safe to call repeatedly
// and during teardown.
func (r *Realtime) Disconnect() {
	r.mu.Lock()
	r.gen++
	had := r.tr != nil
	r.teardownLocked()
	r.state = StateDisconnected
	r.mu.Unlock()
	if had {
		r.fire(EventDisconnect, nil)
	}
}

// teardownLocked closes the live transport and drops pending acks. Callers
// hold r.mu and have already bumped r.gen.
func (r *Realtime) teardownLocked() {
	if r.tr != nil {
		r.tr.close()
		r.tr = nil
	}
	r.acks = make(map[uint64]func())
}

// On registers a handler for event and returns its remove func.
// Registrations are additive; the same handler can be registered twice and
// will fire twice.
func (r *Realtime) On(event EventName, h Handler) (off func()) {
	r.mu.Lock()
	r.nextSub++
	id := r.nextSub
	m := r.listeners[event]
	if m == nil {
		m = make(map[uint64]Handler)
		r.listeners[event] = m
	}
	m[id] = h
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners[event], id)
		r.mu.Unlock()
	}
}

// OnAuthFailure registers an observer invoked when the handshake is rejected
// for a bad credential. The reconnect loop stops in that case; the observer
// is expected to force re-authentication.
func (r *Realtime) OnAuthFailure(fn func(error)) (off func()) {
	r.mu.Lock()
	r.nextSub++
	id := r.nextSub
	r.authObs[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.authObs, id)
		r.mu.Unlock()
	}
}

// State returns the current connection state.
func (r *Realtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsConnected reports whether the push channel is open.
func (r *Realtime) IsConnected() bool {
	return r.State() == StateConnected
}

// Emit sends a fire-and-forget event. When not connected the frame is
// silently dropped: side-channel emissions are best-effort, at-most-once.
func (r *Realtime) Emit(event EventName, payload any) {
	env, err := makeEnvelope(event, 0, payload)
	if err != nil {
		log.Printf("realtime: marshal %s: %v", event, err)
		return
	}
	r.send(env)
}

// JoinConversation subscribes this connection to a conversation's messages.
func (r *Realtime) JoinConversation(conversationID string) {
	r.Emit(EventJoinConversation, conversationID)
}

// SendMessage emits a chat message. If ack is non-nil it runs once the
// server acknowledges the frame; a message dropped while disconnected is
// never acknowledged.
func (r *Realtime) SendMessage(p SendMessagePayload, ack func()) {
	if ack == nil {
		r.Emit(EventSendMessage, p)
		return
	}
	r.mu.Lock()
	if r.state != StateConnected || r.tr == nil {
		r.mu.Unlock()
		return
	}
	r.nextAckID++
	id := r.nextAckID
	r.acks[id] = ack
	r.mu.Unlock()

	env, err := makeEnvelope(EventSendMessage, id, p)
	if err != nil {
		log.Printf("realtime: marshal sendMessage: %v", err)
		return
	}
	r.send(env)
}

// UpdateMessage emits an edit of a previously sent message.
func (r *Realtime) UpdateMessage(p UpdateMessagePayload) {
	r.Emit(EventUpdateMessage, p)
}

// DeleteMessage emits a message deletion.
func (r *Realtime) DeleteMessage(messageID string) {
	r.Emit(EventDeleteMessage, DeleteMessagePayload{MessageID: messageID})
}

func makeEnvelope(event EventName, id uint64, payload any) (*Envelope, error) {
	env := &Envelope{Event: event, ID: id}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return env, nil
}

func (r *Realtime) send(env *Envelope) {
	r.mu.Lock()
	tr := r.tr
	connected := r.state == StateConnected
	r.mu.Unlock()
	if !connected || tr == nil {
		return
	}
	if err := tr.write(env); err != nil {
		log.Printf("realtime: emit %s: %v", env.Event, err)
	}
}

// run owns one connect generation: dial (with capped retries), serve the
// connection, and start over when it drops. It exits when the generation is
// superseded, the retry cap is exhausted, or the credential is rejected.
func (r *Realtime) run(gen uint64, userID, token string) {
	first := true
	for {
		tr, ok := r.dialCycle(gen, token, first)
		if !ok {
			return
		}
		if first {
			r.fire(EventConnect, nil)
		} else {
			r.fire(EventReconnect, nil)
		}
		first = false

		// Declare presence and subscribe to the notification stream.
		r.Emit(EventUserOnline, userID)
		r.Emit(EventJoinNotificationRoom, userID)

		r.serve(gen, tr)

		r.mu.Lock()
		stale := gen != r.gen
		if !stale {
			r.tr = nil
			r.state = StateDisconnected
		}
		r.mu.Unlock()
		if stale {
			return
		}
		r.fire(EventDisconnect, nil)
	}
}

// dialCycle makes up to MaxAttempts dials with a fixed inter-attempt delay.
// Auth rejections abort immediately; exhausting the cap leaves the state
// Disconnected until an explicit Connect.
func (r *Realtime) dialCycle(gen uint64, token string, first bool) (transport, bool) {
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if !first || attempt > 1 {
			time.Sleep(r.opts.RetryDelay)
		}

		r.mu.Lock()
		if gen != r.gen {
			r.mu.Unlock()
			return nil, false
		}
		r.state = StateConnecting
		r.mu.Unlock()

		tr, err := r.dial(r.url, token, r.opts.ConnectTimeout)
		if err == nil {
			r.mu.Lock()
			if gen != r.gen {
				r.mu.Unlock()
				tr.close()
				return nil, false
			}
			r.tr = tr
			r.state = StateConnected
			r.mu.Unlock()
			return tr, true
		}

		log.Printf("realtime: connect attempt %d/%d: %v", attempt, r.opts.MaxAttempts, err)
		if errors.Is(err, ErrAuthFailed) {
			r.mu.Lock()
			if gen == r.gen {
				r.state = StateAuthError
			}
			r.mu.Unlock()
			r.fireError(EventConnectError, err)
			r.fireAuthFailure(err)
			return nil, false
		}
		if first {
			r.fireError(EventConnectError, err)
		} else {
			r.fireError(EventReconnectError, err)
		}
	}

	r.mu.Lock()
	if gen == r.gen {
		r.state = StateDisconnected
	}
	r.mu.Unlock()
	r.fire(EventReconnectFailed, nil)
	return nil, false
}

// serve reads frames until the connection dies or the generation goes stale.
func (r *Realtime) serve(gen uint64, tr transport) {
	for {
		env, err := tr.read()
		if err != nil {
			r.mu.Lock()
			stale := gen != r.gen
			r.mu.Unlock()
			if !stale {
				log.Printf("realtime: read: %v", err)
			}
			tr.close()
			return
		}
		r.mu.Lock()
		if gen != r.gen {
			r.mu.Unlock()
			tr.close()
			return
		}
		r.mu.Unlock()
		r.dispatch(env)
	}
}

func (r *Realtime) dispatch(env *Envelope) {
	switch env.Event {
	case EventUnreadConversationCount:
		var n int
		if err := json.Unmarshal(env.Payload, &n); err != nil {
			log.Printf("realtime: bad unread count payload: %v", err)
			break
		}
		r.mu.Lock()
		cb := r.onUnread
		r.mu.Unlock()
		if cb != nil {
			cb(n)
		}
	case EventNewNotification:
		var ev NotificationEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			log.Printf("realtime: bad notification payload: %v", err)
			break
		}
		r.mu.Lock()
		cb := r.onNotif
		r.mu.Unlock()
		if cb != nil {
			cb(ev)
		}
	case EventAck:
		r.mu.Lock()
		fn := r.acks[env.ID]
		delete(r.acks, env.ID)
		r.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
	r.fire(env.Event, env.Payload)
}

// fire delivers an event to its registered handlers. Handlers run on the
// connection goroutine and must not block.
func (r *Realtime) fire(event EventName, payload json.RawMessage) {
	r.mu.Lock()
	hs := make([]Handler, 0, len(r.listeners[event]))
	for _, h := range r.listeners[event] {
		hs = append(hs, h)
	}
	r.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

func (r *Realtime) fireError(event EventName, err error) {
	raw, _ := json.Marshal(ErrorPayload{Message: err.Error()})
	r.fire(event, raw)
}

func (r *Realtime) fireAuthFailure(err error) {
	r.mu.Lock()
	obs := make([]func(error), 0, len(r.authObs))
	for _, fn := range r.authObs {
		obs = append(obs, fn)
	}
	r.mu.Unlock()
	for _, fn := range obs {
		fn(err)
	}
}
