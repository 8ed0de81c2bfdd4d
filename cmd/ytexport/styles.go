package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Colors - same purple/magenta theme as the progress display
var (
	primaryColor   = lipgloss.Color("#7D56F4")
	secondaryColor = lipgloss.Color("#FF79C6")
	dimColor       = lipgloss.Color("#6272A4")
	textColor      = lipgloss.Color("#F8F8F2")
	successColor   = lipgloss.Color("#50FA7B")
	errorColor     = lipgloss.Color("#FF5555")
	warnColor      = lipgloss.Color("#F1FA8C")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Italic(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	projectStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Bold(true)

	countStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	warnStyle = lipgloss.NewStyle().
			Foreground(warnColor)
)

// colorsEnabled is false after --no-color, output.color=false, NO_COLOR or TERM=dumb.
var colorsEnabled = true

// configureColors picks the lipgloss color profile for the session.
func configureColors(enabled bool) {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		enabled = false
	}
	if os.Getenv("TERM") == "dumb" {
		enabled = false
	}
	colorsEnabled = enabled
	if !enabled {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}
