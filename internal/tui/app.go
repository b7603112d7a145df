package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/deskwatch/internal/catalog"
	"github.com/sadopc/deskwatch/internal/export"
	"github.com/sadopc/deskwatch/internal/presence"
	"github.com/sadopc/deskwatch/internal/stats"
	"github.com/sadopc/deskwatch/internal/store"
)

// Deps is everything the interface reads from or drives.
type Deps struct {
	NewSession  SessionFunc
	Manual      *presence.ManualSampler // nil when a detector is configured
	Aggregator  *stats.Aggregator
	Catalog     *catalog.Store
	Store       *store.Store
	Preferences store.Preferences
	Categories  []stats.Category
	ExportDir   string // defaults to the home directory
}

// App is the root Bubble Tea model.
type App struct {
	deps   Deps
	prefs  *prefsCache
	width  int
	height int

	activeView    viewState
	showHelp      bool
	exportPicking bool
	exportCursor  int

	tracker  trackerModel
	todo     todoModel
	reports  reportsModel
	settings settingsModel

	help    help.Model
	status  string
	isError bool
}

func NewApp(d Deps) App {
	h := help.New()
	h.ShowAll = false

	prefs := newPrefsCache(d.Preferences)
	return App{
		deps:       d,
		prefs:      prefs,
		activeView: viewTracker,
		tracker:    newTrackerModel(d.NewSession, d.Manual, d.Aggregator, prefs.goals),
		todo:       newTodoModel(d.Catalog),
		reports:    newReportsModel(d.Aggregator, d.Catalog, d.Categories, prefs),
		settings:   newSettingsModel(d.Store, prefs),
		help:       h,
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(
		a.tracker.Init(),
		a.todo.refresh(),
		a.settings.refresh(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		contentHeight := a.height - 4 // header + footer
		a.tracker.setSize(a.width, contentHeight)
		a.todo.setSize(a.width, contentHeight)
		a.reports.setSize(a.width, contentHeight)
		a.settings.setSize(a.width, contentHeight)
		return a, nil

	case tea.KeyMsg:
		// Export picker
		if a.exportPicking {
			return a.updateExportPicker(msg)
		}

		// If a child view is capturing input (e.g. form), delegate first.
		if a.isFormActive() {
			return a.updateActiveView(msg)
		}

		switch {
		case key.Matches(msg, keys.Export):
			a.exportPicking = true
			a.exportCursor = 0
			return a, nil
		case key.Matches(msg, keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, keys.Help):
			a.showHelp = !a.showHelp
			a.help.ShowAll = a.showHelp
			return a, nil
		case key.Matches(msg, keys.Tab1):
			a.activeView = viewTracker
			return a, a.refreshCurrentView()
		case key.Matches(msg, keys.Tab2):
			a.activeView = viewTodo
			return a, a.refreshCurrentView()
		case key.Matches(msg, keys.Tab3):
			a.activeView = viewReports
			return a, a.refreshCurrentView()
		case key.Matches(msg, keys.Tab4):
			a.activeView = viewSettings
			return a, a.refreshCurrentView()
		case key.Matches(msg, keys.Tab):
			a.activeView = (a.activeView + 1) % viewState(len(viewNames))
			return a, a.refreshCurrentView()
		}

	// Data messages go to their owner whichever view is showing.
	case tickMsg:
		a.tracker, cmd = a.tracker.update(msg)
		return a, tea.Batch(tickCmd(), cmd)

	case snapshotMsg, sessionEndedMsg, todayDataMsg:
		a.tracker, cmd = a.tracker.update(msg)
		return a, cmd

	case todoDataMsg:
		a.todo, cmd = a.todo.update(msg)
		return a, cmd

	case reportsDataMsg:
		a.reports, cmd = a.reports.update(msg)
		return a, cmd

	case settingsDataMsg:
		a.settings, cmd = a.settings.update(msg)
		return a, cmd

	case prefsSavedMsg:
		return a, tea.Batch(a.tracker.loadToday(), a.reports.refresh())

	case statusMsg:
		a.status = msg.text
		a.isError = msg.isError
		return a, nil

	case exportDoneMsg:
		a.status = "Exported to " + msg.path
		a.isError = false
		a.exportPicking = false
		return a, nil
	}

	return a.updateActiveView(msg)
}

func (a App) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.activeView {
	case viewTracker:
		a.tracker, cmd = a.tracker.update(msg)
	case viewTodo:
		a.todo, cmd = a.todo.update(msg)
	case viewReports:
		a.reports, cmd = a.reports.update(msg)
	case viewSettings:
		a.settings, cmd = a.settings.update(msg)
	}
	return a, cmd
}

func (a App) isFormActive() bool {
	switch a.activeView {
	case viewTodo:
		return a.todo.formActive
	case viewSettings:
		return a.settings.formActive
	}
	return false
}

func (a App) refreshCurrentView() tea.Cmd {
	switch a.activeView {
	case viewTracker:
		return a.tracker.loadToday()
	case viewTodo:
		return a.todo.refresh()
	case viewReports:
		return a.reports.refresh()
	case viewSettings:
		return a.settings.refresh()
	}
	return nil
}

func (a App) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()

	var content string
	switch a.activeView {
	case viewTracker:
		content = a.tracker.view()
	case viewTodo:
		content = a.todo.view()
	case viewReports:
		content = a.reports.view()
	case viewSettings:
		content = a.settings.view()
	}

	// Calculate available height for content
	headerHeight := lipgloss.Height(header)
	footerHeight := lipgloss.Height(footer)
	contentHeight := a.height - headerHeight - footerHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	if a.exportPicking {
		content = a.renderExportPicker()
	}

	content = lipgloss.NewStyle().
		Width(a.width).
		Height(contentHeight).
		Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, content, footer)
}

func (a App) renderHeader() string {
	var tabs []string
	for i, name := range viewNames {
		if viewState(i) == a.activeView {
			tabs = append(tabs, activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(name))
		}
	}

	tabRow := lipgloss.JoinHorizontal(lipgloss.Bottom, tabs...)

	title := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render("deskwatch")
	gap := a.width - lipgloss.Width(title) - lipgloss.Width(tabRow) - 4
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return headerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Bottom, title, spacer, tabRow),
	)
}

func (a App) renderFooter() string {
	helpView := a.help.View(keys)

	status := ""
	if a.status != "" {
		style := mutedStyle
		if a.isError {
			style = errorStyle
		}
		status = style.Render(" " + a.status)
	}

	// Session indicator in footer
	timerInfo := ""
	if a.tracker.running() {
		s := a.tracker.snap
		switch {
		case s.Accumulating():
			timerInfo = successStyle.Render(" ● " + formatDuration(s.Active))
		case s.Held():
			timerInfo = warningStyle.Render(" ⏸ " + formatDuration(s.Active))
		default:
			timerInfo = mutedStyle.Render(" ◌ " + formatDuration(s.Active))
		}
	}

	left := footerStyle.Render(helpView)
	right := timerInfo + status

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	spacer := lipgloss.NewStyle().Width(gap).Render("")

	return lipgloss.JoinHorizontal(lipgloss.Bottom, left, spacer, right)
}

var exportFormats = []string{"CSV", "JSON"}

func (a App) renderExportPicker() string {
	title := titleStyle.Render("Export Week")
	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")
	for i, f := range exportFormats {
		cursor := "  "
		style := normalItemStyle
		if i == a.exportCursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(cursor+f))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  enter: export  esc: cancel"))

	w := a.width - 4
	return activePanelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (a App) updateExportPicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		if a.exportCursor > 0 {
			a.exportCursor--
		}
	case key.Matches(msg, keys.Down):
		if a.exportCursor < len(exportFormats)-1 {
			a.exportCursor++
		}
	case key.Matches(msg, keys.Enter):
		a.exportPicking = false
		return a, a.doExport(a.exportCursor)
	case key.Matches(msg, keys.Back):
		a.exportPicking = false
	}
	return a, nil
}

// doExport writes the week shown in the reports view, or the current
// week when reports were never opened.
func (a App) doExport(format int) tea.Cmd {
	agg, cat, categories := a.deps.Aggregator, a.deps.Catalog, a.deps.Categories
	dir := a.deps.ExportDir
	first := a.prefs.weekStart()
	offset := a.reports.offset
	return func() tea.Msg {
		if agg == nil {
			return statusMsg{text: "Export error: no log directory", isError: true}
		}
		if dir == "" {
			dir, _ = os.UserHomeDir()
		}
		start := stats.WeekOf(agg.Now(), first).AddDate(0, 0, -7*offset)
		w := agg.Window(start, 7)
		stamp := start.Format("2006-01-02")

		var path string
		if format == 0 {
			path = filepath.Join(dir, fmt.Sprintf("deskwatch-week-%s.csv", stamp))
			if err := export.ToCSV(w, path); err != nil {
				return statusMsg{text: fmt.Sprintf("CSV error: %v", err), isError: true}
			}
		} else {
			var roll *stats.Rollup
			if cat != nil {
				if doc, err := cat.Load(); err == nil {
					r := stats.RollUp(w.Tasks, doc, categories)
					roll = &r
				}
			}
			path = filepath.Join(dir, fmt.Sprintf("deskwatch-week-%s.json", stamp))
			if err := export.ToJSON(w, roll, path); err != nil {
				return statusMsg{text: fmt.Sprintf("JSON error: %v", err), isError: true}
			}
		}

		return exportDoneMsg{path: path}
	}
}
