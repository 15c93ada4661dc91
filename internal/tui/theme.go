package tui

import "github.com/charmbracelet/lipgloss"

// Theme is the set of styles used by the channel list.
type Theme struct {
	Title    lipgloss.Style
	Item     lipgloss.Style
	Selected lipgloss.Style
	Path     lipgloss.Style
	Create   lipgloss.Style
	Control  lipgloss.Style
	Hint     lipgloss.Style
	Nickname lipgloss.Style
}

// DefaultTheme uses the terminal's adaptive palette.
var DefaultTheme = Theme{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#5A3FC0", Dark: "#B39DFF"}).MarginBottom(1),
	Item:     lipgloss.NewStyle().PaddingLeft(2),
	Selected: lipgloss.NewStyle().PaddingLeft(1).Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#0B6E4F", Dark: "#6EE7B7"}),
	Path:     lipgloss.NewStyle().Faint(true),
	Create:   lipgloss.NewStyle().Italic(true),
	Control:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}),
	Hint:     lipgloss.NewStyle().Faint(true).Underline(true),
	Nickname: lipgloss.NewStyle().Bold(true),
}
