// Package ui renders short status markers for terminal output.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#86B300"}).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#F07178"}).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#EF6C00", Dark: "#FFB454"})
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#59C2FF"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#616161", Dark: "#8A9199"})
)

// plain disables styling, for pipes and redirected output.
var plain = !term.IsTerminal(int(os.Stdout.Fd()))

// SetPlain forces styling off (true) or on (false).
func SetPlain(on bool) {
	plain = on
}

func render(style lipgloss.Style, s string) string {
	if plain {
		return s
	}
	return style.Render(s)
}

// RenderPass renders s as a success marker.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderFail renders s as a failure marker.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderWarn renders s as a warning.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderAccent renders s in the accent color.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderMuted renders s as secondary detail.
func RenderMuted(s string) string { return render(mutedStyle, s) }
