// Package consultants renders the online consultant list fed by the
// presence layer.
package consultants

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/vovannam2/consultant-tui/internal/client"
	"github.com/vovannam2/consultant-tui/internal/theme"
)

// Model holds the consultant list state.
type Model struct {
	Width    int
	Selected int
	users    []client.User
	online   int // size of the raw presence snapshot
}

// New creates a consultant list model.
func New() Model {
	return Model{}
}

// SetUsers replaces the displayed list with the latest pull result.
func (m *Model) SetUsers(users []client.User, onlineCount int) {
	m.users = users
	m.online = onlineCount
	if m.Selected >= len(users) {
		m.Selected = 0
	}
}

// Len reports how many consultants are listed.
func (m Model) Len() int { return len(m.users) }

// View renders the consultant list.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	header := theme.StyleTitle.Render(
		fmt.Sprintf("  Online consultants (%d)  ·  %d users online", len(m.users), m.online))

	if len(m.users) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			theme.StyleDimmed.Render("  No consultants online"),
		)
	}

	rows := make([]string, 0, len(m.users)+1)
	rows = append(rows, header)
	for i, u := range m.users {
		cursor := "  "
		style := lipgloss.NewStyle().Foreground(theme.RoleColor(u.Role))
		if i == m.Selected {
			cursor = "> "
			style = style.Bold(true)
		}
		rows = append(rows, cursor+style.Render(u.Name)+theme.StyleDimmed.Render("  "+u.ID))
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
