// Package session holds the process-wide auth and realtime-derived state:
// who is logged in, the connection state, unread counters and the online
// consultant set. One Store is constructed at startup and passed by
// reference to every consumer.
package session

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/vovannam2/consultant-tui/internal/client"
	"github.com/vovannam2/consultant-tui/internal/creds"
)

// Realtime is the push-connection surface the store drives. Satisfied by
// *client.Realtime.
type Realtime interface {
	Connect(userID, token string, onUnread func(int), onNotification func(client.NotificationEvent)) error
	Disconnect()
	On(event client.EventName, h client.Handler) (off func())
	OnAuthFailure(fn func(error)) (off func())
	State() client.State
	IsConnected() bool
}

// API is the pull surface backing reconciliation. Satisfied by *client.API.
type API interface {
	SetToken(token string)
	UnreadConversationCount() (int, error)
	UnreadNotificationCount() (int, error)
	OnlineConsultants() ([]client.User, error)
	Notifications() ([]client.Notification, error)
}

// CacheInvalidator lets the store mark externally owned read models stale.
// Consumers react by refetching.
type CacheInvalidator interface {
	Invalidate(key string)
}

// Read-model keys invalidated on a pushed notification.
const (
	CacheNotifications         = "notifications"
	CacheNotificationUnreadKey = "notifications/unread-count"
)

// EventKind classifies a state-change wake-up.
type EventKind int

const (
	EventAuth EventKind = iota
	EventConnection
	EventUnread
	EventPresence
	EventNotification
)

// Event is a wake-up delivered on Events(). It carries no data: consumers
// re-read the store, so dropping one under load loses nothing.
type Event struct {
	Kind EventKind
}

// Options tunes the reconciliation intervals. Zero values take the defaults.
type Options struct {
	UnreadPollInterval   time.Duration
	PresencePollInterval time.Duration
}

const defaultPollInterval = 30 * time.Second

// Store is the single source of truth for session-derived UI state.
type Store struct {
	rt     Realtime
	api    API
	creds  creds.Store
	caches CacheInvalidator
	opts   Options

	mu            sync.Mutex
	authenticated bool
	user          client.User
	role          string
	online        map[string]struct{} // presence snapshot from push
	consultants   []client.User       // online consultants from pull
	unreadConvs   int
	unreadNotifs  int

	unread *reconciler
	offs   []func()
	stop   chan struct{}
	poke   chan struct{} // presence refetch trigger

	events chan Event
}

// New wires a store over the realtime manager, the pull API, the credential
// store and the external cache contract. caches may be nil.
func New(rt Realtime, api API, cs creds.Store, caches CacheInvalidator, opts Options) *Store {
	if opts.UnreadPollInterval <= 0 {
		opts.UnreadPollInterval = defaultPollInterval
	}
	if opts.PresencePollInterval <= 0 {
		opts.PresencePollInterval = defaultPollInterval
	}
	return &Store{
		rt:     rt,
		api:    api,
		creds:  cs,
		caches: caches,
		opts:   opts,
		online: make(map[string]struct{}),
		events: make(chan Event, 64),
	}
}

// Start seeds the store from persisted credentials and, when a token is
// present, opens the push session.
func (s *Store) Start() error {
	c, ok := s.creds.Get()
	if !ok {
		s.emit(EventAuth)
		return nil
	}
	return s.beginSession(c)
}

// SignIn persists fresh credentials and opens a session over them. A live
// session for a previous login is torn down first.
func (s *Store) SignIn(c creds.Credentials) error {
	if err := s.creds.Set(c); err != nil {
		return err
	}
	s.teardown(false)
	return s.beginSession(c)
}

// SignOut clears persisted credentials and resets all session state.
func (s *Store) SignOut() {
	if err := s.creds.Clear(); err != nil {
		log.Printf("session: clear credentials: %v", err)
	}
	s.Reset()
}

// Reset disconnects and zeroes auth state and both unread counters. It is
// the single teardown path for logout and credential invalidation.
func (s *Store) Reset() {
	s.teardown(true)
	s.emit(EventAuth)
}

// Close releases listeners, timers and the connection without touching
// persisted credentials. Must run on every exit route.
func (s *Store) Close() {
	s.teardown(false)
}

func (s *Store) beginSession(c creds.Credentials) error {
	s.api.SetToken(c.AccessToken)

	s.mu.Lock()
	s.authenticated = true
	s.user = c.User
	s.role = c.Role
	s.stop = make(chan struct{})
	s.poke = make(chan struct{}, 1)
	s.unread = newReconciler(s.api.UnreadConversationCount, s.setUnreadConversations, s.opts.UnreadPollInterval)
	stop, poke, unread := s.stop, s.poke, s.unread
	s.mu.Unlock()

	s.registerListeners()

	err := s.rt.Connect(c.User.ID, c.AccessToken, unread.ApplyPush, s.handleNotification)
	if err != nil {
		log.Printf("session: connect: %v", err)
		s.teardown(true)
		s.emit(EventAuth)
		return err
	}

	go unread.run(stop)
	go s.presenceLoop(stop, poke)

	s.emit(EventAuth)
	return nil
}

// registerListeners wires push events into state updates. Every registration
// is kept so teardown releases them all; repeated session cycles therefore
// never stack handlers.
func (s *Store) registerListeners() {
	add := func(off func()) {
		s.mu.Lock()
		s.offs = append(s.offs, off)
		s.mu.Unlock()
	}

	add(s.rt.OnAuthFailure(s.handleAuthFailure))

	add(s.rt.On(client.EventOnlineUsersList, func(payload json.RawMessage) {
		s.replaceOnline(payload)
	}))

	// A status change is treated as a cache-invalidation trigger: the online
	// consultant view refetches the full list rather than patching the
	// snapshot from the event.
	add(s.rt.On(client.EventUserStatusChanged, func(json.RawMessage) {
		s.pokePresence()
	}))

	add(s.rt.On(client.EventConnect, func(json.RawMessage) {
		s.onConnected(true)
	}))
	add(s.rt.On(client.EventReconnect, func(json.RawMessage) {
		s.onConnected(false)
	}))

	add(s.rt.On(client.EventDisconnect, func(json.RawMessage) {
		s.clearPresence()
		s.emit(EventConnection)
	}))
	add(s.rt.On(client.EventConnectError, func(json.RawMessage) {
		s.emit(EventConnection)
	}))
	add(s.rt.On(client.EventReconnectFailed, func(json.RawMessage) {
		s.emit(EventConnection)
	}))
}

// onConnected runs on every successful open. Reconnects are a pull trigger:
// events missed while offline are reconciled immediately rather than waiting
// for the next tick.
func (s *Store) onConnected(initial bool) {
	s.mu.Lock()
	unread := s.unread
	s.mu.Unlock()
	if unread != nil {
		unread.Refresh()
	}
	s.pokePresence()
	if initial {
		s.seedUnreadNotifications()
	}
	s.emit(EventConnection)
}

// seedUnreadNotifications pulls the starting value once per session; after
// that the counter only moves by pushed increments.
func (s *Store) seedUnreadNotifications() {
	n, err := s.api.UnreadNotificationCount()
	if err != nil {
		log.Printf("session: unread notification seed: %v", err)
		return
	}
	s.mu.Lock()
	s.unreadNotifs = n
	s.mu.Unlock()
	s.emit(EventUnread)
}

func (s *Store) handleAuthFailure(err error) {
	log.Printf("session: authentication failed, forcing logout: %v", err)
	if cerr := s.creds.Clear(); cerr != nil {
		log.Printf("session: clear credentials: %v", cerr)
	}
	s.Reset()
}

// handleNotification applies a pushed notification: the counter increments
// by exactly one per event (push is additive here, never a replacement) and
// the externally owned read models are marked stale.
func (s *Store) handleNotification(ev client.NotificationEvent) {
	s.mu.Lock()
	s.unreadNotifs++
	s.mu.Unlock()
	if s.caches != nil {
		s.caches.Invalidate(CacheNotifications)
		s.caches.Invalidate(CacheNotificationUnreadKey)
	}
	s.emit(EventUnread)
	s.emit(EventNotification)
}

// setUnreadConversations is the reconciler's apply hook.
func (s *Store) setUnreadConversations(n int) {
	s.mu.Lock()
	s.unreadConvs = n
	s.mu.Unlock()
	s.emit(EventUnread)
}

// RefreshUnread forces an authoritative unread pull. Wired to window focus
// by the UI.
func (s *Store) RefreshUnread() {
	s.mu.Lock()
	unread := s.unread
	s.mu.Unlock()
	if unread != nil {
		unread.Refresh()
	}
}

// teardown stops loops, releases listeners and disconnects. When reset is
// true it also zeroes auth state and both counters.
func (s *Store) teardown(reset bool) {
	s.mu.Lock()
	offs := s.offs
	s.offs = nil
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.unread = nil
	s.poke = nil
	if reset {
		s.authenticated = false
		s.user = client.User{}
		s.role = ""
		s.unreadConvs = 0
		s.unreadNotifs = 0
		s.online = make(map[string]struct{})
		s.consultants = nil
	}
	s.mu.Unlock()

	for _, off := range offs {
		off()
	}
	s.rt.Disconnect()
}

// Events returns the wake-up channel the UI event loop drains.
func (s *Store) Events() <-chan Event { return s.events }

func (s *Store) emit(kind EventKind) {
	select {
	case s.events <- Event{Kind: kind}:
	default:
	}
}

// --- read accessors ---

func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Store) User() client.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Store) Role() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Store) ConnState() client.State {
	return s.rt.State()
}

func (s *Store) UnreadConversations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadConvs
}

func (s *Store) UnreadNotifications() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadNotifs
}

// OnlineIDs returns the pushed presence snapshot, sorted for stable display.
func (s *Store) OnlineIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.online))
	for id := range s.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Consultants returns the last pulled online-consultant list.
func (s *Store) Consultants() []client.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]client.User, len(s.consultants))
	copy(out, s.consultants)
	return out
}
