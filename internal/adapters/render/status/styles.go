package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title     lipgloss.Style
	header    lipgloss.Style
	component lipgloss.Style
	detail    lipgloss.Style
	healthy   lipgloss.Style
	unhealthy lipgloss.Style
	section   lipgloss.Style
	empty     lipgloss.Style
	meta      lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:     lipgloss.NewStyle().Bold(true),
		header:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		component: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		healthy:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		unhealthy: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section:   lipgloss.NewStyle().MarginTop(1),
		empty:     lipgloss.NewStyle().Faint(true),
		meta:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}
