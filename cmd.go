package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sadopc/deskwatch/internal/calendar"
	"github.com/sadopc/deskwatch/internal/catalog"
	"github.com/sadopc/deskwatch/internal/config"
	"github.com/sadopc/deskwatch/internal/dailylog"
	"github.com/sadopc/deskwatch/internal/export"
	"github.com/sadopc/deskwatch/internal/stats"
)

const dateLayout = "2006-01-02"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6C63FF"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		})
}

// parseDate reads a YYYY-MM-DD flag in local time. Blank means today.
func parseDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Now(), nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// ============================================================
// report
// ============================================================

var reportWeek string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the weekly report",
		Long: `Show daily totals, goal progress, category rollup and task statistics
for the week that holds --week (default: this week).`,
		Args: cobra.NoArgs,
		RunE: runReportCmd,
	}
	cmd.Flags().StringVar(&reportWeek, "week", "", "any date in the week to report (YYYY-MM-DD)")
	return cmd
}

func runReportCmd(cmd *cobra.Command, _ []string) error {
	ref, err := parseDate(reportWeek)
	if err != nil {
		return err
	}
	e, err := openEnv(nil)
	if err != nil {
		return err
	}
	defer e.close()

	prefs := e.preferences()
	w := e.aggregator().Week(ref)
	doc, err := e.catalog.Load()
	if err != nil {
		e.logger.Warn("catalog unreadable; report has no categories", "err", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Week of %s", w.Start.Format("Mon 02 Jan 2006"))))

	days := newTable("Day", "First start", "Logged", "Goal", "Progress")
	for _, p := range dayRows(w, prefs.DailyGoals) {
		days.Row(p...)
	}
	fmt.Fprintln(out, days.Render())

	week := stats.WeekProgress(w, prefs.DailyGoals)
	fmt.Fprintf(out, "Week: %s of %s (%.0f%%)\n\n", stats.FormatDuration(week.Done), stats.FormatDuration(week.Goal), week.Percent())

	roll := stats.RollUp(w.Tasks, doc, e.cfg.Categories)
	cats := newTable("Category", "Logged", "Goal", "")
	for _, b := range roll.Buckets {
		goal := "-"
		if b.Goal > 0 {
			goal = stats.FormatDuration(b.Goal)
		}
		cats.Row(b.Name, stats.FormatDuration(b.Total), goal, b.GoalText())
	}
	fmt.Fprintln(out, cats.Render())

	tasks, subtasks := stats.TaskStats(w, doc)
	if len(tasks) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No tasks logged this week."))
		return nil
	}
	tt := newTable("Task", "Type", "Category", "Logged", "Estimate", "Progress")
	for _, t := range tasks {
		tt.Row(t.Task, t.Type, t.Category, stats.FormatDuration(t.Actual), t.Estimated, t.Progress)
	}
	fmt.Fprintln(out, tt.Render())

	st := newTable("Subtask", "Status", "Logged", "Estimate", "Progress")
	for _, s := range subtasks {
		st.Row(s.Key.Label(), s.Status, stats.FormatDuration(s.Actual), s.Estimated, s.Progress)
	}
	fmt.Fprintln(out, st.Render())
	return nil
}

func dayRows(w stats.Window, goals stats.DailyGoals) [][]string {
	progress := stats.DayProgress(w, goals)
	rows := make([][]string, len(w.Days))
	for i, d := range w.Days {
		first := d.FirstStart()
		if first == "" {
			first = "-"
		}
		goal, pct := "-", "-"
		if progress[i].Goal > 0 {
			goal = stats.FormatDuration(progress[i].Goal)
			pct = fmt.Sprintf("%.0f%%", progress[i].Percent())
		}
		rows[i] = []string{d.Date.Format("Mon 02.01"), first, stats.FormatDuration(d.Total), goal, pct}
	}
	return rows
}

// ============================================================
// intervals
// ============================================================

var intervalsDate string

func newIntervalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intervals",
		Short: "List the work intervals of one day",
		Args:  cobra.NoArgs,
		RunE:  runIntervalsCmd,
	}
	cmd.Flags().StringVar(&intervalsDate, "date", "", "day to list (YYYY-MM-DD, default today)")
	return cmd
}

func runIntervalsCmd(cmd *cobra.Command, _ []string) error {
	day, err := parseDate(intervalsDate)
	if err != nil {
		return err
	}
	e, err := openEnv(nil)
	if err != nil {
		return err
	}
	defer e.close()

	w := stats.NewAggregator(e.logs, e.logger).Window(day, 1)
	d := w.Days[0]
	out := cmd.OutOrStdout()
	if len(d.Intervals) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No intervals on "+d.Date.Format(dateLayout)))
		return nil
	}

	t := newTable("Start", "Stop", "Duration", "Block", "Task", "Subtask")
	for _, iv := range d.Intervals {
		task := iv.Task
		if task == "" {
			task = stats.NoTask
		}
		t.Row(dailylog.FormatClock(iv.Start), dailylog.FormatClock(iv.Stop), stats.FormatDuration(iv.Duration),
			fmt.Sprint(iv.Block), task, iv.Subtask)
	}
	fmt.Fprintln(out, t.Render())
	fmt.Fprintf(out, "Total: %s\n", stats.FormatDuration(d.Total))
	return nil
}

// ============================================================
// export
// ============================================================

var (
	exportWeek   string
	exportFormat string
	exportOut    string
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a week of intervals as CSV or JSON",
		Long: `Export the reconstructed intervals of one week.

Examples:
  deskwatch export                         # this week, CSV in the current directory
  deskwatch export --format json --out -   # JSON to stdout
  deskwatch export --week 2025-03-10`,
		Args: cobra.NoArgs,
		RunE: runExportCmd,
	}
	cmd.Flags().StringVar(&exportWeek, "week", "", "any date in the week to export (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "csv or json")
	cmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file, - for stdout")
	return cmd
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	format := strings.ToLower(exportFormat)
	if format != "csv" && format != "json" {
		return fmt.Errorf("unknown format %q (want csv or json)", exportFormat)
	}
	ref, err := parseDate(exportWeek)
	if err != nil {
		return err
	}
	e, err := openEnv(nil)
	if err != nil {
		return err
	}
	defer e.close()

	w := e.aggregator().Week(ref)
	var roll *stats.Rollup
	if format == "json" {
		if doc, err := e.catalog.Load(); err == nil {
			r := stats.RollUp(w.Tasks, doc, e.cfg.Categories)
			roll = &r
		} else {
			e.logger.Warn("catalog unreadable; exporting without categories", "err", err)
		}
	}

	if exportOut == "-" {
		if format == "csv" {
			return export.WriteCSV(cmd.OutOrStdout(), w)
		}
		return export.WriteJSON(cmd.OutOrStdout(), w, roll)
	}

	path := exportOut
	if path == "" {
		path = fmt.Sprintf("deskwatch-week-%s.%s", w.Start.Format(dateLayout), format)
	}
	if format == "csv" {
		err = export.ToCSV(w, path)
	} else {
		err = export.ToJSON(w, roll, path)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
	return nil
}

// ============================================================
// sync-actual
// ============================================================

var syncWeek string

func newSyncActualCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-actual",
		Short: "Write logged time into the catalog's actual times",
		Long: `Overwrite the actual_time of every subtask that has logged time in the
chosen week with that time in hours. Times entered by hand are replaced.`,
		Args: cobra.NoArgs,
		RunE: runSyncActualCmd,
	}
	cmd.Flags().StringVar(&syncWeek, "week", "", "any date in the week to sync (YYYY-MM-DD)")
	return cmd
}

func runSyncActualCmd(cmd *cobra.Command, _ []string) error {
	ref, err := parseDate(syncWeek)
	if err != nil {
		return err
	}
	e, err := openEnv(nil)
	if err != nil {
		return err
	}
	defer e.close()

	w := e.aggregator().Week(ref)
	res, err := stats.SyncActualTimes(e.catalog, w.Subtasks)
	if err != nil {
		return fmt.Errorf("failed to sync actual times: %w", err)
	}
	out := cmd.OutOrStdout()
	for _, k := range res.Updated {
		fmt.Fprintf(out, "updated %s: %.2fh\n", k.Label(), stats.Hours(w.Subtasks[k]))
	}
	for _, k := range res.Missing {
		fmt.Fprintln(out, mutedStyle.Render("not in catalog: "+k.Label()))
	}
	fmt.Fprintf(out, "%d updated, %d not in catalog\n", len(res.Updated), len(res.Missing))
	return nil
}

// ============================================================
// import-calendar
// ============================================================

var (
	importFrom   string
	importDays   int
	importSource string
	importColor  string
	importStamp  bool
)

func newImportCalendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-calendar <events.json>",
		Short: "Import calendar events as tasks",
		Long: `Read events from a JSON file and add one task per event to the catalog.
Tasks from an earlier import with the same --source are replaced.

Each event is an object with summary, start, end, all_day, location and
description. Timed events use RFC 3339 times, all-day events YYYY-MM-DD.`,
		Args: cobra.ExactArgs(1),
		RunE: runImportCalendarCmd,
	}
	cmd.Flags().StringVar(&importFrom, "from", "", "first day to import (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&importDays, "days", 7, "number of days to import")
	cmd.Flags().StringVar(&importSource, "source", calendar.DefaultSource, "label of this import batch")
	cmd.Flags().StringVar(&importColor, "color", calendar.DefaultColor, "color of imported tasks")
	cmd.Flags().BoolVar(&importStamp, "stamp", false, "also log every event as worked time")
	return cmd
}

func runImportCalendarCmd(cmd *cobra.Command, args []string) error {
	if importDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}
	from, err := parseDate(importFrom)
	if err != nil {
		return err
	}
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.Local)
	to := from.AddDate(0, 0, importDays)

	e, err := openEnv(nil)
	if err != nil {
		return err
	}
	defer e.close()

	src := calendar.FileSource{Path: args[0], Location: time.Local}
	im := calendar.NewImporter(e.catalog, e.logs, e.logger)
	res, err := im.Import(context.Background(), src, from, to, calendar.ImportOptions{
		Source:   importSource,
		Color:    importColor,
		StampLog: importStamp,
		Location: time.Local,
	})
	if err != nil {
		return fmt.Errorf("failed to import calendar: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d events (%d replaced)", res.Imported, res.Replaced)
	if importStamp {
		fmt.Fprintf(cmd.OutOrStdout(), ", %d logged", res.Stamped)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

// ============================================================
// sessions
// ============================================================

var sessionsDays int

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent tracking sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessionsCmd,
	}
	cmd.Flags().IntVar(&sessionsDays, "days", 7, "how many days back to list")
	return cmd
}

func runSessionsCmd(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(nil)
	if err != nil {
		return err
	}
	defer e.close()
	st, err := e.openStore()
	if err != nil {
		return err
	}

	to := time.Now()
	from := to.AddDate(0, 0, -sessionsDays)
	list, err := st.ListSessions(from, to)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("No sessions yet."))
		return nil
	}

	t := newTable("Started", "Ended", "Blocks", "Active")
	for _, s := range list {
		ended := "running"
		if s.EndedAt != nil {
			ended = s.EndedAt.Local().Format("15:04")
		}
		t.Row(s.StartedAt.Local().Format("Mon 02.01 15:04"), ended, fmt.Sprint(s.Blocks), stats.FormatDuration(s.Active))
	}
	fmt.Fprintln(out, t.Render())

	sum, err := st.GetSessionStats(from, to)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d sessions, %d blocks, %s active\n", sum.Sessions, sum.Blocks, stats.FormatDuration(sum.Active))
	return nil
}

// ============================================================
// config
// ============================================================

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteExample(configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
			return nil
		},
	})
	return cmd
}

func runConfigCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	out := cmd.OutOrStdout()

	source := configPath
	if _, err := os.Stat(configPath); err != nil {
		source += " (not found, using defaults)"
	}
	detector := "manual toggle"
	if len(cfg.DetectorCommand) > 0 {
		detector = strings.Join(cfg.DetectorCommand, " ")
	}

	t := newTable("Setting", "Value")
	t.Row("config", source)
	t.Row("data dir", cfg.DataDir)
	t.Row("daily logs", cfg.LogDir)
	t.Row("catalog", cfg.Catalog)
	t.Row("database", cfg.Database)
	t.Row("log file", cfg.LogFile)
	t.Row("detector", detector)
	t.Row("device", fmt.Sprintf("%d (alternate %d)", cfg.Device, cfg.Alternate))
	t.Row("max retries", fmt.Sprint(cfg.MaxRetries))
	t.Row("frame timeout", cfg.SampleTimeout.String())
	for _, c := range cfg.Categories {
		t.Row("category "+c.Name, fmt.Sprintf("keyword %q, goal %s", c.Keyword, stats.FormatDuration(c.WeeklyGoal)))
	}
	fmt.Fprintln(out, t.Render())

	if _, err := os.Stat(cfg.Catalog); err == nil {
		doc, err := catalog.Open(cfg.Catalog, nil).Load()
		if err != nil {
			fmt.Fprintln(out, mutedStyle.Render("catalog unreadable: "+err.Error()))
		} else {
			fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%d tasks in %s", len(doc.Tasks), filepath.Base(cfg.Catalog))))
		}
	}
	return nil
}
