package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/deskwatch/internal/presence"
	"github.com/sadopc/deskwatch/internal/stats"
	"github.com/sadopc/deskwatch/internal/tracker"
)

// SessionFunc builds and launches a runner for a new session.
type SessionFunc func() (*tracker.Runner, error)

// reloadEvery is the number of ticks between reloads of today's totals.
const reloadEvery = 30

type trackerModel struct {
	newSession SessionFunc
	manual     *presence.ManualSampler
	agg        *stats.Aggregator
	goals      func() stats.DailyGoals
	width      int
	height     int

	runner   *tracker.Runner
	settings tracker.Settings
	snap     tracker.Snapshot
	ended    bool

	today stats.Progress
	ticks int
	bar   progress.Model
}

func newTrackerModel(newSession SessionFunc, manual *presence.ManualSampler, agg *stats.Aggregator, goals func() stats.DailyGoals) trackerModel {
	return trackerModel{
		newSession: newSession,
		manual:     manual,
		agg:        agg,
		goals:      goals,
		settings:   tracker.DefaultSettings(),
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

func (m trackerModel) Init() tea.Cmd {
	return m.loadToday()
}

func (m *trackerModel) setSize(w, h int) {
	m.width = w
	m.height = h
	m.bar.Width = max(10, w-16)
}

func (m trackerModel) running() bool {
	return m.runner != nil && !m.ended
}

type todayDataMsg struct {
	progress stats.Progress
}

func (m trackerModel) loadToday() tea.Cmd {
	if m.agg == nil {
		return nil
	}
	agg, goals := m.agg, m.goals
	return func() tea.Msg {
		now := agg.Now()
		w := agg.Window(now, 1)
		g := stats.DefaultDailyGoals()
		if goals != nil {
			g = goals()
		}
		return todayDataMsg{progress: stats.Progress{Done: w.Total(), Goal: g.For(now)}}
	}
}

// waitForSnapshot delivers the runner's next published state, or
// sessionEndedMsg once the runner has stopped and nothing is pending.
func waitForSnapshot(r *tracker.Runner) tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-r.Updates():
			return snapshotMsg{runner: r, snap: s}
		case <-r.Done():
			select {
			case s := <-r.Updates():
				return snapshotMsg{runner: r, snap: s}
			default:
			}
			return sessionEndedMsg{runner: r}
		}
	}
}

func (m trackerModel) update(msg tea.Msg) (trackerModel, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		if msg.runner != m.runner {
			return m, nil
		}
		prev := m.snap
		m.snap = msg.snap
		cmds := []tea.Cmd{waitForSnapshot(m.runner)}
		if prev.State != msg.snap.State || prev.Block != msg.snap.Block {
			cmds = append(cmds, m.loadToday())
		}
		return m, tea.Batch(cmds...)

	case sessionEndedMsg:
		if msg.runner == m.runner {
			m.ended = true
			return m, m.loadToday()
		}
		return m, nil

	case todayDataMsg:
		m.today = msg.progress
		return m, nil

	case tickMsg:
		m.ticks++
		if m.ticks%reloadEvery == 0 {
			return m, m.loadToday()
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Start):
			return m.start()
		case key.Matches(msg, keys.Stop):
			return m.end()
		case key.Matches(msg, keys.Hold):
			if !m.running() {
				return m, nil
			}
			r := m.runner
			return m, func() tea.Msg {
				snap, err := r.ToggleHold()
				if err != nil {
					return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
				}
				if snap.Held() {
					return statusMsg{text: "Tracking on hold"}
				}
				return statusMsg{text: "Tracking resumed"}
			}
		case key.Matches(msg, keys.Presence):
			if m.manual == nil {
				return m, statusCmd("Presence comes from the detector")
			}
			if m.manual.Toggle() {
				return m, statusCmd("Presence: at desk")
			}
			return m, statusCmd("Presence: away")
		}
	}
	return m, nil
}

func (m trackerModel) start() (trackerModel, tea.Cmd) {
	if m.running() {
		return m, nil
	}
	if m.newSession == nil {
		return m, errorCmd(errors.New("tracking is not available"))
	}
	r, err := m.newSession()
	if err != nil {
		return m, errorCmd(err)
	}
	m.runner = r
	m.settings = r.Settings()
	m.snap = tracker.Snapshot{}
	m.ended = false
	return m, tea.Batch(
		func() tea.Msg {
			if _, err := r.Start(); err != nil {
				return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
			}
			return statusMsg{text: "Session started"}
		},
		waitForSnapshot(r),
	)
}

func (m trackerModel) end() (trackerModel, tea.Cmd) {
	if !m.running() {
		return m, nil
	}
	r := m.runner
	return m, func() tea.Msg {
		snap, err := r.End()
		if err != nil && !errors.Is(err, tracker.ErrStopped) {
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		return statusMsg{text: "Session ended after " + formatDuration(snap.TotalActive)}
	}
}

func (m trackerModel) view() string {
	if m.width < 20 {
		return "Terminal too small"
	}
	w := m.width - 4
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderTimerPanel(w),
		m.renderTodayPanel(w),
	)
}

func (m trackerModel) stateLine() (string, lipgloss.Style) {
	s := m.snap
	switch {
	case !m.running():
		return "■  IDLE", mutedStyle
	case s.State == tracker.OnBreak:
		return "☕ BREAK", highlightStyle
	case s.Held():
		return "⏸  ON HOLD", warningStyle
	case s.Status == 0:
		return "◌  AWAY", accentStyle
	default:
		return "●  WORKING", successStyle
	}
}

func (m trackerModel) renderTimerPanel(w int) string {
	label, style := m.stateLine()

	if !m.running() {
		content := lipgloss.JoinVertical(lipgloss.Center,
			clockStyle(colorPrimary).Width(w-6).Render("00:00:00"),
			style.Render(label),
			mutedStyle.Render("Press s to start a session"),
		)
		return panelStyle.Width(w).Render(content)
	}

	s := m.snap
	var clock string
	var pct float64
	var caption string
	if s.State == tracker.OnBreak {
		remaining := m.settings.BreakDuration - s.BreakElapsed
		clock = clockStyle(colorBreak).Width(w - 6).Render(formatDuration(remaining))
		pct = ratio(s.BreakElapsed, m.settings.BreakDuration)
		caption = fmt.Sprintf("break before block %d", s.Block)
	} else {
		st := clockStyle(colorWork)
		if !s.Accumulating() {
			st = clockStyle(colorHold)
		}
		clock = st.Width(w - 6).Render(formatDuration(s.Active))
		pct = ratio(s.Active, m.settings.BlockDuration)
		caption = fmt.Sprintf("block %d of %s", s.Block, formatDuration(m.settings.BlockDuration))
	}

	taskLine := mutedStyle.Render(stats.NoTask)
	if s.Task != "" {
		taskLine = highlightStyle.Render(truncate(s.Task, w/2))
		if s.Subtask != "" {
			taskLine += mutedStyle.Render(" / " + truncate(s.Subtask, w/3))
		}
	}

	content := lipgloss.JoinVertical(lipgloss.Center,
		clock,
		style.Render(label),
		"",
		m.bar.ViewAs(pct),
		mutedStyle.Render(caption),
		"",
		taskLine,
		m.renderPresence(),
	)
	return activePanelStyle.Width(w).Render(content)
}

func (m trackerModel) renderPresence() string {
	if m.manual != nil {
		if m.manual.Present() {
			return successStyle.Render("manual presence: at desk") + mutedStyle.Render("  (p to toggle)")
		}
		return accentStyle.Render("manual presence: away") + mutedStyle.Render("  (p to toggle)")
	}
	if m.snap.Status == 1 {
		return successStyle.Render("detector: present")
	}
	return mutedStyle.Render("detector: nobody seen")
}

func (m trackerModel) renderTodayPanel(w int) string {
	title := titleStyle.Render("Today")
	total := highlightStyle.Render(formatDuration(m.today.Done))
	header := fmt.Sprintf("%s  %s", title, total)

	goal := mutedStyle.Render("no goal today")
	if m.today.Goal > 0 {
		goal = fmt.Sprintf("%s  %s", m.bar.ViewAs(m.today.Percent()/100),
			mutedStyle.Render(fmt.Sprintf("%.0f%% of %s", m.today.Percent(), formatHours(m.today.Goal))))
	}

	rows := []string{header, goal}
	if m.runner != nil {
		rows = append(rows, mutedStyle.Render("session: "+formatDuration(m.snap.TotalActive)+" active"))
	}
	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func ratio(d, of time.Duration) float64 {
	if of <= 0 {
		return 0
	}
	r := float64(d) / float64(of)
	if r > 1 {
		return 1
	}
	if r < 0 {
		return 0
	}
	return r
}
