package ui

import "github.com/charmbracelet/lipgloss"

// GitHub dark palette.
var (
	accent  = lipgloss.Color("#58A6FF")
	danger  = lipgloss.Color("#F85149")
	success = lipgloss.Color("#3FB950")

	ToastStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0D1117")).
			Background(success).
			Bold(true).
			Padding(0, 1)

	HelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8B949E"))

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(accent)

	CrashTitleStyle = lipgloss.NewStyle().
			Foreground(danger).
			Bold(true)

	CrashBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(danger).
			Padding(1, 2)
)
