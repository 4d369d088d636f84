// Package inbox renders the notification feed. The list itself is an
// externally owned read model: the app refetches it whenever the session
// layer invalidates the notification caches.
package inbox

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovannam2/consultant-tui/internal/client"
	"github.com/vovannam2/consultant-tui/internal/theme"
)

// Model holds the notification feed state.
type Model struct {
	Width    int
	Selected int
	Expanded bool
	items    []client.Notification
}

// New creates a notification feed model.
func New() Model {
	return Model{}
}

// SetItems replaces the feed with a freshly pulled list.
func (m *Model) SetItems(items []client.Notification) {
	m.items = items
	if m.Selected >= len(items) {
		m.Selected = 0
	}
}

// Len reports how many notifications are listed.
func (m Model) Len() int { return len(m.items) }

// View renders the feed, expanding the selected entry when requested.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	header := theme.StyleTitle.Render(fmt.Sprintf("  Notifications (%d)", len(m.items)))

	if len(m.items) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			theme.StyleDimmed.Render("  Nothing yet"),
		)
	}

	rows := make([]string, 0, len(m.items)+2)
	rows = append(rows, header)
	for i, n := range m.items {
		cursor := "  "
		style := theme.StyleBright
		if n.Status == "read" {
			style = theme.StyleDimmed
		}
		if i == m.Selected {
			cursor = "> "
			style = style.Bold(true)
		}
		line := fmt.Sprintf("%s[%s] %s", cursor, n.NotificationType, firstLine(n.Content))
		rows = append(rows, style.Render(truncate(line, width-4))+
			theme.StyleDimmed.Render("  "+n.Time.Format("15:04")))
	}

	if m.Expanded && m.Selected < len(m.items) {
		rows = append(rows, m.renderBody(m.items[m.Selected], width))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// renderBody shows the full notification content as markdown.
func (m Model) renderBody(n client.Notification, width int) string {
	out, err := glamour.Render(n.Content, "dark")
	if err != nil {
		out = n.Content
	}
	from := ""
	if n.SenderName != "" {
		from = theme.StyleDimmed.Render("from " + n.SenderName)
	}
	return lipgloss.NewStyle().
		Width(width - 6).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, from, out))
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func truncate(s string, max int) string {
	if max <= 1 || len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
