package tui

import "github.com/charmbracelet/lipgloss"

// Theme styles the item picker.
type Theme struct {
	Title    lipgloss.Style // picker heading
	Subtitle lipgloss.Style // category next to each match
	Normal   lipgloss.Style
	Selected lipgloss.Style // row under the cursor
	Muted    lipgloss.Style // held quantities and help
	Error    lipgloss.Style
	Box      lipgloss.Style
}

var (
	gold  = lipgloss.Color("#E0B050")
	ink   = lipgloss.Color("#fafafa")
	stone = lipgloss.Color("#737373")
)

// DefaultTheme uses the clan gold on a neutral background.
var DefaultTheme = Theme{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(gold).MarginBottom(1),
	Subtitle: lipgloss.NewStyle().Foreground(lipgloss.Color("#a3a3a3")),
	Normal:   lipgloss.NewStyle().Foreground(ink),
	Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1c1917")).Background(gold),
	Muted:    lipgloss.NewStyle().Foreground(stone),
	Error:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ef4444")),
	Box:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(stone).Padding(0, 1),
}
