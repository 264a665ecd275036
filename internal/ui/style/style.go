// Package style holds the terminal palette and status glyphs shared by the
// logger and the build reporter.
package style

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	Ember = lipgloss.Color("#E8590C")
	Ash   = lipgloss.Color("#868E96")
	Green = lipgloss.Color("#2F9E44")
	Red   = lipgloss.Color("#E03131")
	Amber = lipgloss.Color("#F59F00")
)

// Glyphs.
const (
	Check   = "✓"
	Cross   = "✗"
	Warning = "!"
	Cached  = "≡"
	Arrow   = "→"
)
