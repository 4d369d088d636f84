// Package app wires the session store into the Bubble Tea program. The
// Update loop is the single place UI state mutates; the session layer only
// wakes it up through channels.
package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovannam2/consultant-tui/internal/client"
	"github.com/vovannam2/consultant-tui/internal/session"
	"github.com/vovannam2/consultant-tui/internal/theme"
	"github.com/vovannam2/consultant-tui/internal/views/consultants"
	"github.com/vovannam2/consultant-tui/internal/views/inbox"
	"github.com/vovannam2/consultant-tui/internal/views/status"
)

// Panel identifies the active panel.
type Panel int

const (
	PanelConsultants Panel = iota
	PanelInbox
)

// Caches is the app-side half of the cache-invalidation contract: the
// session layer marks a read model stale, the event loop refetches it.
type Caches struct {
	ch chan string
}

// NewCaches creates the invalidation bridge.
func NewCaches() *Caches {
	return &Caches{ch: make(chan string, 16)}
}

// Invalidate queues a stale-key signal. Never blocks; a full queue drops
// the signal, which is safe because each key is refetched wholesale.
func (c *Caches) Invalidate(key string) {
	select {
	case c.ch <- key:
	default:
	}
}

// --- messages ---

type storeEventMsg session.Event

type cacheStaleMsg string

type notificationsMsg struct {
	items []client.Notification
	err   error
}

// Model is the root Bubble Tea model.
type Model struct {
	store  *session.Store
	api    session.API
	caches *Caches

	keys   KeyMap
	width  int
	height int
	panel  Panel

	statusBar   status.Model
	consultants consultants.Model
	inbox       inbox.Model
}

// New creates the root model.
func New(store *session.Store, api session.API, caches *Caches) Model {
	return Model{
		store:       store,
		api:         api,
		caches:      caches,
		keys:        DefaultKeyMap(),
		statusBar:   status.New(),
		consultants: consultants.New(),
		inbox:       inbox.New(),
	}
}

// Init starts the channel bridges and the first notification pull.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitStoreEvent(), m.waitCacheStale(), m.fetchNotifications())
}

// waitStoreEvent blocks on the session store's wake-up channel.
func (m Model) waitStoreEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.store.Events()
		if !ok {
			return nil
		}
		return storeEventMsg(ev)
	}
}

func (m Model) waitCacheStale() tea.Cmd {
	return func() tea.Msg {
		return cacheStaleMsg(<-m.caches.ch)
	}
}

func (m Model) fetchNotifications() tea.Cmd {
	return func() tea.Msg {
		items, err := m.api.Notifications()
		return notificationsMsg{items: items, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.consultants.Width = msg.Width
		m.inbox.Width = msg.Width
		return m, nil

	case tea.FocusMsg:
		// Regaining focus is a pull trigger: reconcile immediately instead
		// of waiting out the poll interval.
		m.store.RefreshUnread()
		return m, nil

	case storeEventMsg:
		m.syncFromStore()
		return m, m.waitStoreEvent()

	case cacheStaleMsg:
		if string(msg) == session.CacheNotifications {
			return m, tea.Batch(m.fetchNotifications(), m.waitCacheStale())
		}
		return m, m.waitCacheStale()

	case notificationsMsg:
		if msg.err == nil {
			m.inbox.SetItems(msg.items)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// syncFromStore re-reads everything the views display. Events carry no
// data, so this stays cheap and always consistent.
func (m *Model) syncFromStore() {
	m.statusBar.ConnState = m.store.ConnState()
	m.statusBar.User = m.store.User()
	m.statusBar.UnreadConversations = m.store.UnreadConversations()
	m.statusBar.UnreadNotifications = m.store.UnreadNotifications()
	m.consultants.SetUsers(m.store.Consultants(), len(m.store.OnlineIDs()))
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.store.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Tab):
		if m.panel == PanelConsultants {
			m.panel = PanelInbox
		} else {
			m.panel = PanelConsultants
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.moveSelection(1)
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.moveSelection(-1)
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if m.panel == PanelInbox {
			m.inbox.Expanded = !m.inbox.Expanded
		}
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		m.inbox.Expanded = false
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.store.RefreshUnread()
		return m, m.fetchNotifications()
	}

	return m, nil
}

func (m *Model) moveSelection(delta int) {
	switch m.panel {
	case PanelConsultants:
		if n := m.consultants.Len(); n > 0 {
			m.consultants.Selected = (m.consultants.Selected + delta + n) % n
		}
	case PanelInbox:
		if n := m.inbox.Len(); n > 0 {
			m.inbox.Selected = (m.inbox.Selected + delta + n) % n
		}
	}
}

// View renders the full screen.
func (m Model) View() string {
	var body string
	switch m.panel {
	case PanelInbox:
		body = m.inbox.View()
	default:
		body = m.consultants.View()
	}

	help := theme.StyleDimmed.Render("  tab: switch · j/k: move · enter: expand · r: refresh · q: quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		body,
		help,
	)
}
