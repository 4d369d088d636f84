package app

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovannam2/consultant-tui/internal/client"
	"github.com/vovannam2/consultant-tui/internal/creds"
	"github.com/vovannam2/consultant-tui/internal/session"
)

// stubRealtime is the minimal Realtime the store needs when no session is
// opened within the test.
type stubRealtime struct {
	state client.State
}

func (s *stubRealtime) Connect(string, string, func(int), func(client.NotificationEvent)) error {
	s.state = client.StateConnected
	return nil
}
func (s *stubRealtime) Disconnect() { s.state = client.StateDisconnected }
func (s *stubRealtime) On(client.EventName, client.Handler) func() { return func() {} }
func (s *stubRealtime) OnAuthFailure(func(error)) func() { return func() {} }
func (s *stubRealtime) State() client.State { return s.state }
func (s *stubRealtime) IsConnected() bool { return s.state == client.StateConnected }

type stubAPI struct {
	notifications []client.Notification
}

func (s *stubAPI) SetToken(string) {}
func (s *stubAPI) UnreadConversationCount() (int, error) { return 0, nil }
func (s *stubAPI) UnreadNotificationCount() (int, error) { return 0, nil }
func (s *stubAPI) OnlineConsultants() ([]client.User, error) { return nil, nil }
func (s *stubAPI) Notifications() ([]client.Notification, error) { return s.notifications, nil }

func newTestModel(api *stubAPI) Model {
	caches := NewCaches()
	store := session.New(&stubRealtime{}, api, creds.NewMemStore(), caches, session.Options{})
	return New(store, api, caches)
}

func keyMsg(r rune) tea.KeyMsg {
	return tea.KeyMsg(tea.Key{Type: tea.KeyRunes, Runes: []rune{r}})
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return mm, cmd
}

func TestCachesInvalidateNeverBlocks(t *testing.T) {
	c := NewCaches()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			c.Invalidate(session.CacheNotifications)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Invalidate blocked on a full queue")
	}
}

func TestViewSignedOut(t *testing.T) {
	m := newTestModel(&stubAPI{})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = update(t, m, storeEventMsg{})

	out := m.View()
	if !strings.Contains(out, "Offline") {
		t.Errorf("view missing connection state:\n%s", out)
	}
	if !strings.Contains(out, "not signed in") {
		t.Errorf("view missing signed-out marker:\n%s", out)
	}
	if !strings.Contains(out, "No consultants online") {
		t.Errorf("view missing empty consultant list:\n%s", out)
	}
}

func TestNotificationsPanel(t *testing.T) {
	api := &stubAPI{notifications: []client.Notification{
		{ID: "n1", Content: "your question was answered", NotificationType: "answer", Status: "unread"},
		{ID: "n2", Content: "schedule confirmed", NotificationType: "schedule", Status: "read"},
	}}
	m := newTestModel(api)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 24})

	m, _ = update(t, m, notificationsMsg{items: api.notifications})
	m, _ = update(t, m, tea.KeyMsg(tea.Key{Type: tea.KeyTab}))
	if m.panel != PanelInbox {
		t.Fatalf("panel = %v, want inbox", m.panel)
	}

	out := m.View()
	if !strings.Contains(out, "Notifications (2)") {
		t.Errorf("view missing feed header:\n%s", out)
	}
	if !strings.Contains(out, "your question was answered") {
		t.Errorf("view missing notification content:\n%s", out)
	}
}

func TestSelectionWraps(t *testing.T) {
	api := &stubAPI{notifications: []client.Notification{
		{ID: "n1", Content: "a"}, {ID: "n2", Content: "b"}, {ID: "n3", Content: "c"},
	}}
	m := newTestModel(api)
	m, _ = update(t, m, notificationsMsg{items: api.notifications})
	m, _ = update(t, m, tea.KeyMsg(tea.Key{Type: tea.KeyTab}))

	m, _ = update(t, m, keyMsg('j'))
	m, _ = update(t, m, keyMsg('j'))
	if m.inbox.Selected != 2 {
		t.Fatalf("selected = %d, want 2", m.inbox.Selected)
	}
	m, _ = update(t, m, keyMsg('j'))
	if m.inbox.Selected != 0 {
		t.Fatalf("selected = %d, want wrap to 0", m.inbox.Selected)
	}
	m, _ = update(t, m, keyMsg('k'))
	if m.inbox.Selected != 2 {
		t.Fatalf("selected = %d, want wrap to 2", m.inbox.Selected)
	}
}

func TestQuitClosesStore(t *testing.T) {
	m := newTestModel(&stubAPI{})
	_, cmd := update(t, m, keyMsg('q'))
	if cmd == nil {
		t.Fatal("quit returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("quit key must return tea.Quit")
	}
}

func TestCacheStaleRefetchesNotifications(t *testing.T) {
	api := &stubAPI{notifications: []client.Notification{{ID: "n1", Content: "fresh"}}}
	m := newTestModel(api)

	_, cmd := update(t, m, cacheStaleMsg(session.CacheNotifications))
	if cmd == nil {
		t.Fatal("stale notifications must trigger a refetch")
	}

	// An unrelated key only re-arms the wait.
	m2, cmd2 := update(t, m, cacheStaleMsg("conversations"))
	if cmd2 == nil {
		t.Fatal("wait must be re-armed")
	}
	_ = m2
}
