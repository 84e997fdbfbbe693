// Package tui provides shared theme and styles for the Agent's dashboard.
package tui

import "github.com/charmbracelet/lipgloss"

// Colors — brand palette.
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // violet
	ColorSecondary = lipgloss.Color("#6366F1") // indigo
	ColorAccent    = lipgloss.Color("#F59E0B") // amber

	ColorSuccess = lipgloss.Color("#10B981") // emerald
	ColorWarning = lipgloss.Color("#F59E0B") // amber
	ColorError   = lipgloss.Color("#EF4444") // red
	ColorMuted   = lipgloss.Color("#6B7280") // gray-500
	ColorText    = lipgloss.Color("#E5E7EB") // gray-200
	ColorSubtle  = lipgloss.Color("#9CA3AF") // gray-400
)

// Shared styles used across the dashboard.
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	Description = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	Selected = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	Dimmed = lipgloss.NewStyle().
		Foreground(ColorMuted)

	Success = lipgloss.NewStyle().
		Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	Help = lipgloss.NewStyle().
		Foreground(ColorMuted)

	Border = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorPrimary).
		Padding(0, 1)

	ActiveDot = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Render("●")

	InactiveDot = lipgloss.NewStyle().
			Foreground(ColorError).
			Render("●")

	WarnDot = lipgloss.NewStyle().
		Foreground(ColorWarning).
		Render("●")
)

// StatusDot returns a colored dot for server connection status.
func StatusDot(connected bool, reconnecting bool) string {
	if reconnecting {
		return WarnDot
	}
	if connected {
		return ActiveDot
	}
	return InactiveDot
}

// StatusText returns a colored status label.
func StatusText(connected bool, reconnecting bool) string {
	if reconnecting {
		return WarningStyle.Render("reconnecting")
	}
	if connected {
		return Success.Render("connected")
	}
	return ErrorStyle.Render("disconnected")
}

// InstanceStatusStyle returns a style for an Instance status value.
func InstanceStatusStyle(status string) lipgloss.Style {
	switch status {
	case "running":
		return lipgloss.NewStyle().Foreground(ColorSuccess)
	case "suspended":
		return lipgloss.NewStyle().Foreground(ColorWarning)
	case "stopped":
		return lipgloss.NewStyle().Foreground(ColorMuted)
	default:
		return lipgloss.NewStyle().Foreground(ColorText)
	}
}
