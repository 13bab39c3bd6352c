// Package ui renders CLI output and asks for confirmation on a terminal.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	passStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	accentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ConfigureColor picks the color profile for w. Non-terminals and NO_COLOR
// get plain ASCII output.
func ConfigureColor(w io.Writer) {
	f, ok := w.(*os.File)
	if !ok || !IsTerminal(f) || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(f).EnvColorProfile())
}

// RenderPass renders a success marker.
func RenderPass(s string) string {
	return passStyle.Render(s)
}

// RenderWarn renders a warning.
func RenderWarn(s string) string {
	return warnStyle.Render(s)
}

// RenderFail renders a failure.
func RenderFail(s string) string {
	return failStyle.Render(s)
}

// RenderAccent highlights an identifier.
func RenderAccent(s string) string {
	return accentStyle.Render(s)
}

// RenderMuted renders secondary text.
func RenderMuted(s string) string {
	return mutedStyle.Render(s)
}
