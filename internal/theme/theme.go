// Package theme provides the Lip Gloss color palette and reusable styles
// for the consultant TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Role colors.
var (
	ColorStudent    = lipgloss.Color("#3b82f6")
	ColorConsultant = lipgloss.Color("#a855f7")
	ColorAdvisor    = lipgloss.Color("#06b6d4")
	ColorDefault    = lipgloss.Color("#9ca3af")
)

// Connection colors.
var (
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder = lipgloss.Color("#4b5563")
	ColorDimmed = lipgloss.Color("#6b7280")
	ColorBright = lipgloss.Color("#f9fafb")
	ColorBadge  = lipgloss.Color("#f59e0b")
)

// Reusable styles.
var (
	StyleDimmed = lipgloss.NewStyle().Foreground(ColorDimmed)
	StyleBright = lipgloss.NewStyle().Foreground(ColorBright)
	StyleBadge  = lipgloss.NewStyle().Foreground(ColorBadge).Bold(true)
	StyleTitle  = lipgloss.NewStyle().Bold(true).Foreground(ColorBright)
)

// RoleColor maps a platform role to its accent color.
func RoleColor(role string) lipgloss.Color {
	switch role {
	case "student":
		return ColorStudent
	case "consultant":
		return ColorConsultant
	case "advisor":
		return ColorAdvisor
	default:
		return ColorDefault
	}
}
