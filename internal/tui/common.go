package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/sadopc/deskwatch/internal/tracker"
)

// viewState represents the currently active view.
type viewState int

const (
	viewTracker viewState = iota
	viewTodo
	viewReports
	viewSettings
)

var viewNames = []string{"Tracker", "To-Do", "Reports", "Settings"}

// --- Messages ---

// snapshotMsg carries the tracker state after every event.
type snapshotMsg struct {
	runner *tracker.Runner
	snap   tracker.Snapshot
}

type sessionEndedMsg struct {
	runner *tracker.Runner
}

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type exportDoneMsg struct {
	path string
}

// --- Helpers ---

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func formatHours(d time.Duration) string {
	return fmt.Sprintf("%.1fh", d.Hours())
}

// truncate shortens s to w terminal cells.
func truncate(s string, w int) string {
	if w <= 0 {
		return ""
	}
	return runewidth.Truncate(s, w, "…")
}

// pad truncates s and fills it with spaces up to w cells.
func pad(s string, w int) string {
	return runewidth.FillRight(truncate(s, w), w)
}

func statusCmd(text string) tea.Cmd {
	return func() tea.Msg { return statusMsg{text: text} }
}

func errorCmd(err error) tea.Cmd {
	return func() tea.Msg { return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true} }
}
