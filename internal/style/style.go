// Package style provides consistent terminal styling using Lipgloss.
package style

import (
	"github.com/charmbracelet/lipgloss"
)

// Base text styles shared by every command.
var (
	Bold  = lipgloss.NewStyle().Bold(true)
	Dim   = lipgloss.NewStyle().Faint(true)
	Good  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	Bad   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
	Warn  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#fa8d3e", Dark: "#ffb454"})
	Title = lipgloss.NewStyle().Bold(true).Underline(true)
)

// typeStyles colors the message type tag in monitor and log output.
var typeStyles = map[string]lipgloss.Style{
	"QUESTION":       lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	"REVIEW-REQUEST": lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	"BLOCKED":        Bad,
	"COMPLETED":      Good,
	"CHALLENGE":      Warn,
	"INFO":           Dim,
	"ACK":            Dim,
}

// MessageType renders a message type tag in its color. Unknown types
// render unstyled.
func MessageType(typ string) string {
	if s, ok := typeStyles[typ]; ok {
		return s.Render(typ)
	}
	return typ
}

// TaskStatus renders a task status in its color.
func TaskStatus(status string) string {
	switch status {
	case "completed":
		return Good.Render(status)
	case "failed", "cancelled":
		return Bad.Render(status)
	case "blocked", "review":
		return Warn.Render(status)
	case "working":
		return Bold.Render(status)
	default:
		return status
	}
}

// Availability renders an agent availability state in its color.
func Availability(a string) string {
	switch a {
	case "active":
		return Good.Render(a)
	case "busy":
		return Warn.Render(a)
	case "offline":
		return Dim.Render(a)
	default:
		return a
	}
}

// Check and Cross are the status glyphs used in command output.
func Check() string { return Good.Render("✓") }
func Cross() string { return Bad.Render("✗") }
