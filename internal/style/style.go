// Package style provides consistent terminal styling for rum output.
package style

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/steveyegge/rum/internal/ui"
)

func init() {
	if !ui.ShouldUseColor() {
		DisableColor()
	}
}

// DisableColor makes every style render plain text.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

var (
	// Success is for finished-successfully states.
	Success = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "76"})

	// Warning is for states that need attention.
	Warning = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "166", Dark: "214"})

	// Error is for failures.
	Error = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "196"}).Bold(true)

	// Info is for live, in-progress states.
	Info = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "26", Dark: "39"})

	// Dim is for secondary detail.
	Dim = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))

	// Bold is for emphasis.
	Bold = lipgloss.NewStyle().Bold(true)

	// Killed is for runs ended by a signal.
	Killed = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "90", Dark: "170"})
)

// Prefixes for status lines.
var (
	SuccessPrefix = Success.Render("✓")
	WarningPrefix = Warning.Render("⚠")
	ErrorPrefix   = Error.Render("✗")
)
