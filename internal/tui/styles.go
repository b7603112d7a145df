package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/deskwatch/internal/catalog"
)

// Colors follow the tracker: green while time accumulates, amber on hold,
// red when nobody is at the desk, blue during breaks.
var (
	colorPrimary = lipgloss.Color("#6C63FF")
	colorWork    = lipgloss.Color("#2ECC71")
	colorHold    = lipgloss.Color("#F39C12")
	colorAway    = lipgloss.Color("#FF6B6B")
	colorBreak   = lipgloss.Color("#7AA2F7")
	colorError   = lipgloss.Color("#E74C3C")
	colorText    = lipgloss.Color("#C0CAF5")
	colorMuted   = lipgloss.Color("#666666")
	colorSubtle  = lipgloss.Color("#414868")
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

var (
	titleStyle     = fg(colorText).Bold(true)
	mutedStyle     = fg(colorMuted)
	successStyle   = fg(colorWork)
	warningStyle   = fg(colorHold)
	accentStyle    = fg(colorAway)
	highlightStyle = fg(colorBreak)
	errorStyle     = fg(colorError)

	activeTabStyle = fg(colorPrimary).Bold(true).Padding(0, 2).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(colorPrimary)
	inactiveTabStyle = mutedStyle.Padding(0, 2)
	headerStyle      = lipgloss.NewStyle().Padding(0, 1)
	footerStyle      = mutedStyle.Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtle).
			Padding(1, 2)
	activePanelStyle = panelStyle.BorderForeground(colorPrimary)

	selectedItemStyle = fg(colorPrimary).Bold(true)
	normalItemStyle   = fg(colorText)
)

// clockStyle renders the session clock.
func clockStyle(c lipgloss.Color) lipgloss.Style {
	return fg(c).Bold(true).Align(lipgloss.Center)
}

var statusColors = map[catalog.Status]lipgloss.Color{
	catalog.Pending:    colorMuted,
	catalog.InProgress: colorHold,
	catalog.Completed:  colorWork,
}
