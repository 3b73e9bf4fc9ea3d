package scenario

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/svcreg/internal/events"
)

// Transcript styles.
var (
	HeaderStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	RegisteredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#7EE787"})

	ModifiedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0069C2", Dark: "#54AEFF"})

	EndMatchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#B08800", Dark: "#E3B341"})

	UnregisteringStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#D7005F", Dark: "#FF6AC1"})

	InsertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#73F59F"))
	DeleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8787"))
	MutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#8B949E"})
	FailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")).Bold(true)
	PassStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#73F59F")).Bold(true)
)

func kindStyle(k events.Kind) lipgloss.Style {
	switch k {
	case events.Registered:
		return RegisteredStyle
	case events.Modified:
		return ModifiedStyle
	case events.ModifiedEndMatch:
		return EndMatchStyle
	case events.Unregistering:
		return UnregisteringStyle
	default:
		return lipgloss.NewStyle()
	}
}
