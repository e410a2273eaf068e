// Package watch implements the live terminal monitor for a running
// recognize-gw instance. It polls /healthz and follows the /events stream.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch TUI.
type Theme struct {
	StatusOK        lipgloss.Style
	StatusFailed    lipgloss.Style
	StatusSucceeded lipgloss.Style
	StatusQueued    lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StatusOK:        lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusSucceeded: lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusQueued:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		TickerActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		TickerInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}
