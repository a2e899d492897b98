package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	Primary   = lipgloss.Color("#7C3AED") // Purple
	Secondary = lipgloss.Color("#10B981") // Green
	Muted     = lipgloss.Color("#6B7280") // Gray
	Warning   = lipgloss.Color("#F59E0B") // Amber
	Error     = lipgloss.Color("#EF4444") // Red
	Info      = lipgloss.Color("#60A5FA") // Blue
	White     = lipgloss.Color("#FFFFFF")

	// Base styles
	App = lipgloss.NewStyle().
		Padding(1, 2)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true)

	// Result list
	ResultTitle = lipgloss.NewStyle().
			Bold(true)

	ResultSelected = lipgloss.NewStyle().
			Background(Primary).
			Foreground(White).
			Bold(true)

	Tag = lipgloss.NewStyle().
		Foreground(Info)

	Related = lipgloss.NewStyle().
		Foreground(Secondary)

	Preview = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#D1D5DB")).
		PaddingLeft(2)

	Degraded = lipgloss.NewStyle().
			Foreground(Warning).
			Italic(true)

	Spinner = lipgloss.NewStyle().
		Foreground(Primary)

	// Input styles
	InputLabel = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	// Help styles
	HelpKey = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true)

	HelpDesc = lipgloss.NewStyle().
			Foreground(Muted)

	HelpSeparator = lipgloss.NewStyle().
			Foreground(Muted).
			SetString(" • ")

	// Message styles
	Success = lipgloss.NewStyle().
		Foreground(Secondary).
		Bold(true)

	ErrorMsg = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	MutedText = lipgloss.NewStyle().
			Foreground(Muted)
)

// ConfidenceColor grades a confidence score: green from 0.7, amber from
// 0.4, red below
func ConfidenceColor(c float64) lipgloss.Color {
	switch {
	case c >= 0.7:
		return Secondary
	case c >= 0.4:
		return Warning
	default:
		return Error
	}
}
