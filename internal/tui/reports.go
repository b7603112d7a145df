package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/deskwatch/internal/catalog"
	"github.com/sadopc/deskwatch/internal/stats"
)

type reportsModel struct {
	agg        *stats.Aggregator
	catalog    *catalog.Store
	categories []stats.Category
	prefs      *prefsCache
	width      int
	height     int

	offset int // weeks back from the current one

	window stats.Window
	doc    catalog.Document
	roll   stats.Rollup
	tasks  []stats.TaskStat
	days   []stats.Progress
	week   stats.Progress

	chart barchart.Model
	bar   progress.Model
}

func newReportsModel(agg *stats.Aggregator, c *catalog.Store, categories []stats.Category, prefs *prefsCache) reportsModel {
	return reportsModel{
		agg:        agg,
		catalog:    c,
		categories: categories,
		prefs:      prefs,
		chart:      barchart.New(60, 12),
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(20)),
	}
}

func (r *reportsModel) setSize(w, h int) {
	r.width = w
	r.height = h
}

type reportsDataMsg struct {
	offset int
	window stats.Window
	doc    catalog.Document
}

func (r reportsModel) refresh() tea.Cmd {
	if r.agg == nil {
		return nil
	}
	agg, c, offset := r.agg, r.catalog, r.offset
	first := time.Monday
	if r.prefs != nil {
		first = r.prefs.weekStart()
	}
	return func() tea.Msg {
		start := stats.WeekOf(agg.Now(), first).AddDate(0, 0, -7*offset)
		w := agg.Window(start, 7)
		var doc catalog.Document
		if c != nil {
			// An unreadable catalog only costs the report its colors and
			// categories.
			doc, _ = c.Load()
		}
		return reportsDataMsg{offset: offset, window: w, doc: doc}
	}
}

func (r reportsModel) update(msg tea.Msg) (reportsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case reportsDataMsg:
		if msg.offset != r.offset {
			return r, nil
		}
		r.apply(msg.window, msg.doc)
		return r, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left):
			r.offset++
			return r, r.refresh()
		case key.Matches(msg, keys.Right):
			if r.offset > 0 {
				r.offset--
			}
			return r, r.refresh()
		case key.Matches(msg, keys.Reload):
			return r, r.refresh()
		}
	}
	return r, nil
}

func (r *reportsModel) apply(w stats.Window, doc catalog.Document) {
	goals := stats.DefaultDailyGoals()
	if r.prefs != nil {
		goals = r.prefs.goals()
	}
	r.window = w
	r.doc = doc
	r.roll = stats.RollUp(w.Tasks, doc, r.categories)
	r.tasks, _ = stats.TaskStats(w, doc)
	r.days = stats.DayProgress(w, goals)
	r.week = stats.WeekProgress(w, goals)
	r.buildChart()
}

// dayLabel names a chart column by weekday and first start.
func dayLabel(d stats.Day) string {
	label := d.Date.Format("Mon")
	if fs := d.FirstStart(); fs != "" {
		label += " " + fs
	}
	return label
}

func (r *reportsModel) buildChart() {
	chartWidth := r.width - 8
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := 12
	if r.height > 40 {
		chartHeight = 16
	}

	r.chart = barchart.New(chartWidth, chartHeight)

	colors := make(map[string]string)
	for _, t := range r.doc.Tasks {
		if t.Color != "" {
			colors[t.Name] = t.Color
		}
	}

	var bars []barchart.BarData
	for _, d := range r.window.Days {
		perTask := make(map[string]time.Duration)
		var order []string
		for _, iv := range d.Intervals {
			name := iv.Task
			if name == "" {
				name = stats.NoTask
			}
			if _, ok := perTask[name]; !ok {
				order = append(order, name)
			}
			perTask[name] += iv.Duration
		}

		var values []barchart.BarValue
		for _, name := range order {
			color, ok := colors[name]
			if !ok {
				color = string(colorSubtle)
			}
			values = append(values, barchart.BarValue{
				Name:  name,
				Value: stats.Hours(perTask[name]),
				Style: lipgloss.NewStyle().Foreground(lipgloss.Color(color)),
			})
		}
		if len(values) == 0 {
			values = []barchart.BarValue{{Name: "", Value: 0, Style: lipgloss.NewStyle().Foreground(colorSubtle)}}
		}

		bars = append(bars, barchart.BarData{
			Label:  dayLabel(d),
			Values: values,
		})
	}

	r.chart.PushAll(bars)
	r.chart.Draw()
}

func (r reportsModel) view() string {
	w := r.width - 4

	label := "This week"
	if r.offset == 1 {
		label = "Last week"
	} else if r.offset > 1 {
		label = fmt.Sprintf("%d weeks ago", r.offset)
	}
	dateLabel := mutedStyle.Render(fmt.Sprintf("%s - %s", r.window.Start.Format("Jan 02"), r.window.End().AddDate(0, 0, -1).Format("Jan 02, 2006")))
	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Reports"), "  ", highlightStyle.Render(label), "  ", dateLabel,
	)

	nav := mutedStyle.Render("  ←/→: previous/next week  r: reload")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "",
			r.chart.View(), "",
			r.renderGoals(), "",
			r.renderCategories(), "",
			r.renderTaskTable(w), "",
			nav,
		),
	)
}

func (r reportsModel) renderGoals() string {
	var rows []string
	week := fmt.Sprintf("  %-10s %s %s", "Week", r.bar.ViewAs(r.week.Percent()/100),
		mutedStyle.Render(fmt.Sprintf("%s of %s", formatHours(r.week.Done), formatHours(r.week.Goal))))
	rows = append(rows, week)

	var days []string
	for i, p := range r.days {
		style := mutedStyle
		switch {
		case p.Goal > 0 && p.Done >= p.Goal:
			style = successStyle
		case p.Done > 0:
			style = warningStyle
		}
		days = append(days, style.Render(fmt.Sprintf("%s %s", r.window.Days[i].Date.Format("Mon"), formatHours(p.Done))))
	}
	if len(days) > 0 {
		rows = append(rows, "  "+strings.Join(days, "  "))
	}
	return strings.Join(rows, "\n")
}

func (r reportsModel) renderCategories() string {
	var rows []string
	rows = append(rows, titleStyle.Render("  Categories"))
	for _, b := range r.roll.Buckets {
		if b.Total == 0 && b.Goal == 0 {
			continue
		}
		line := fmt.Sprintf("  %s %8s", pad(b.Name, 14), stats.FormatDuration(b.Total))
		if b.Goal > 0 {
			line += " " + r.bar.ViewAs(min(b.Percent(), 100)/100)
			style := mutedStyle
			if b.Total > b.Goal {
				style = successStyle
			}
			line += " " + style.Render(b.GoalText())
		}
		rows = append(rows, line)
	}
	if len(rows) == 1 {
		rows = append(rows, mutedStyle.Render("  No categorized time"))
	}
	return strings.Join(rows, "\n")
}

func (r reportsModel) renderTaskTable(w int) string {
	if len(r.tasks) == 0 {
		return mutedStyle.Render("  No data for this week")
	}

	nameW := max(12, min(30, w-50))
	var rows []string
	headerRow := mutedStyle.Render(fmt.Sprintf("    %s %10s %10s %9s  %s", pad("Task", nameW), "Logged", "Estimate", "Progress", "Category"))
	rows = append(rows, headerRow)
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, nameW+46))))

	limit := len(r.tasks)
	if r.height > 0 {
		limit = min(limit, max(3, r.height-36))
	}
	for _, t := range r.tasks[:limit] {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color(t.Color)).Render("●")
		rows = append(rows, fmt.Sprintf("  %s %s %10s %10s %9s  %s",
			dot, pad(t.Task, nameW), stats.FormatDuration(t.Actual), t.Estimated, t.Progress, t.Category,
		))
	}
	if limit < len(r.tasks) {
		rows = append(rows, mutedStyle.Render(fmt.Sprintf("  … %d more", len(r.tasks)-limit)))
	}
	return strings.Join(rows, "\n")
}
