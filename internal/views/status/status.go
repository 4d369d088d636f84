package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/vovannam2/consultant-tui/internal/client"
	"github.com/vovannam2/consultant-tui/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	ConnState           client.State
	User                client.User
	UnreadConversations int
	UnreadNotifications int
	Width               int
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch m.ConnState {
	case client.StateConnected:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	case client.StateConnecting:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("◌ Connecting...")
	case client.StateAuthError:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("✗ Auth failed")
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Offline")
	}

	who := theme.StyleDimmed.Render("not signed in")
	if m.User.ID != "" {
		who = lipgloss.NewStyle().Foreground(theme.RoleColor(m.User.Role)).
			Render(fmt.Sprintf("%s (%s)", m.User.Name, m.User.Role))
	}

	badges := fmt.Sprintf("%s chats  %s alerts",
		theme.StyleBadge.Render(fmt.Sprintf("%d", m.UnreadConversations)),
		theme.StyleBadge.Render(fmt.Sprintf("%d", m.UnreadNotifications)))

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + who + sep + badges

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
