package filter

import "github.com/charmbracelet/lipgloss"

// Token highlight styles for filter syntax highlighting.
var (
	// KeywordStyle for composite operators: &, |, !
	KeywordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8CFF"}).
			Bold(true)

	// OperatorStyle for comparison operators: =, ~=, >=, <=
	OperatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D7005F", Dark: "#FF6AC1"})

	// AttrStyle for attribute names
	AttrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0069C2", Dark: "#54AEFF"})

	// ValueStyle for raw values
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#7EE787"})

	// ParenStyle for parentheses
	ParenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#8B949E"}).
			Bold(true)

	// IllegalStyle for unknown operators
	IllegalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Underline(true)

	// DefaultStyle for anything else
	DefaultStyle = lipgloss.NewStyle()
)
