package inbox

import (
	"strings"
	"testing"

	"github.com/vovannam2/consultant-tui/internal/client"
)

func TestFirstLine(t *testing.T) {
	cases := []struct{ in, want string }{
		{"one line", "one line"},
		{"first\nsecond", "first"},
		{"", ""},
	}
	for _, c := range cases {
		if got := firstLine(c.in); got != c.want {
			t.Errorf("firstLine(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 40); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	got := truncate("a very long notification line", 10)
	if len(got) > 10+len("…")-1 {
		t.Errorf("truncate kept %d bytes: %q", len(got), got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncate(%q) missing ellipsis", got)
	}
}

func TestViewListsNotifications(t *testing.T) {
	m := New()
	m.Width = 80
	m.SetItems([]client.Notification{
		{ID: "n1", Content: "your question was answered", NotificationType: "answer", Status: "unread"},
		{ID: "n2", Content: "first\nrest hidden", NotificationType: "chat", Status: "read"},
	})

	out := m.View()
	if !strings.Contains(out, "Notifications (2)") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "your question was answered") {
		t.Errorf("missing content:\n%s", out)
	}
	if strings.Contains(out, "rest hidden") {
		t.Errorf("collapsed entry leaked its body:\n%s", out)
	}
}

func TestSetItemsClampsSelection(t *testing.T) {
	m := New()
	m.SetItems([]client.Notification{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	m.Selected = 2
	m.SetItems([]client.Notification{{ID: "a"}})
	if m.Selected != 0 {
		t.Fatalf("selected = %d after shrink, want 0", m.Selected)
	}
}
