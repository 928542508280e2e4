package viewer

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("242"))

	followingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	finishedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("76"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)
