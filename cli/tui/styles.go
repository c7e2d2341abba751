// Package tui renders run inspection views for the strata CLI with
// Bubble Tea.
//
// The TUI is a presentation layer only:
//   - opt-in via the --tui flag
//   - read-only against the run store
//   - driven by the same response payloads the plain renderer receives,
//     so a TUI view never shows data the JSON output would not
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor = lipgloss.Color("#7C3AED") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#EF4444") // Red
	mutedColor   = lipgloss.Color("#6B7280") // Gray
)

// Styles for TUI components.
var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// SuccessStyle marks completed runs and artifacts.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarningStyle marks runs still in flight.
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// ErrorStyle marks failed runs and artifacts.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// SkippedStyle marks artifacts skipped by failure containment.
	SkippedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// BoxStyle for bordered containers.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// StateStyle maps a run or artifact status string to its display style.
// Unknown statuses (including not_started) fall back to the neutral
// value style.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "completed":
		return SuccessStyle
	case "running":
		return WarningStyle
	case "failed":
		return ErrorStyle
	case "skipped":
		return SkippedStyle
	default:
		return ValueStyle
	}
}
