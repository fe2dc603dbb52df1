// Package ui holds the terminal styling shared by the tourcharge commands.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Semantic colors. The portal itself is green-on-white; the CLI stays
// close to that so the two read as one tool.
var (
	Success = lipgloss.Color("#4caf50")
	Failure = lipgloss.Color("#e53935")
	Warning = lipgloss.Color("#ffc107")
	Muted   = lipgloss.Color("245")
)

// Styles holds the styled components used by the command output.
type Styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Body    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
}

// DefaultStyles returns the standard style set.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true),
		Header:  lipgloss.NewStyle().Bold(true).Foreground(Muted),
		Body:    lipgloss.NewStyle(),
		Muted:   lipgloss.NewStyle().Foreground(Muted),
		Success: lipgloss.NewStyle().Foreground(Success),
		Error:   lipgloss.NewStyle().Foreground(Failure),
		Warning: lipgloss.NewStyle().Foreground(Warning),
	}
}
