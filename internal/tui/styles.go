package tui

import (
	"charm.land/lipgloss/v2"
)

// forgeOrange is the accent color for debug builds; regular builds stay neutral.
const forgeOrange = "208"

// Styles contains all lipgloss styles for the TUI.
type Styles struct {
	Title     lipgloss.Style
	Subtle    lipgloss.Style
	Selected  lipgloss.Style
	Cursor    lipgloss.Style
	Badge     lipgloss.Style
	Debug     lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	File      lipgloss.Style
	Separator lipgloss.Style
	StatusBar lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Subtle:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Selected:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		Cursor:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Badge:     lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		Debug:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(forgeOrange)),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Success:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		File:      lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		StatusBar: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
	}
}
