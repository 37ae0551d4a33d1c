// Package styles holds the lipgloss styles shared by the notebook viewer.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors meet WCAG AA contrast on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray

	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	// Cell styles
	CodeCell = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			BorderForeground(BorderColor).
			PaddingLeft(1)

	OutputCell = lipgloss.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(2)

	CellOutput = lipgloss.NewStyle().
			Foreground(TextColor)

	// Status bar
	StatusBar = lipgloss.NewStyle().
			Foreground(MutedColor).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(BorderColor)

	ErrorMessage = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	InfoMessage = lipgloss.NewStyle().
			Foreground(SecondaryColor)
)

// StateColor returns the color for a kernel state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "ready":
		return SecondaryColor
	case "executing", "starting":
		return WarningColor
	case "idle":
		return MutedColor
	default:
		return ErrorColor
	}
}
