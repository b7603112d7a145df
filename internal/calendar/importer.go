package calendar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/sadopc/deskwatch/internal/catalog"
	"github.com/sadopc/deskwatch/internal/dailylog"
)

const (
	DefaultSource = "calendar"
	DefaultColor  = "#3498db"

	taskType = "Appointment"
	category = "Calendar"
)

// LogWriter merges rows into the daily log. dailylog.Store implements it.
type LogWriter interface {
	ReadDay(day time.Time) ([]dailylog.Row, error)
	Insert(day time.Time, rows []dailylog.Row) (int, error)
}

type ImportOptions struct {
	// Source tags the imported tasks. A later import with the same source
	// replaces them.
	Source string
	Color  string
	// StampLog writes every event into the daily log as worked time.
	StampLog bool
	Location *time.Location
}

type ImportResult struct {
	Imported int
	Replaced int
	Stamped  int // events newly written to the log; already logged ones are not counted
}

type Importer struct {
	catalog *catalog.Store
	logs    LogWriter
	logger  *slog.Logger
}

// NewImporter builds an importer. logs may be nil when log stamping is
// never requested.
func NewImporter(cat *catalog.Store, logs LogWriter, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Importer{catalog: cat, logs: logs, logger: logger}
}

// Import fetches the events between from and to and merges them into the
// catalog, replacing whatever an earlier import under the same source
// added.
func (im *Importer) Import(ctx context.Context, src Source, from, to time.Time, opts ImportOptions) (ImportResult, error) {
	var res ImportResult
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	if opts.Color == "" {
		opts.Color = DefaultColor
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	events, err := src.Events(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("list events: %w", err)
	}

	tasks := Tasks(events, opts.Color, opts.Location)
	removed, err := im.catalog.ReplaceSource(opts.Source, tasks)
	if err != nil {
		return res, fmt.Errorf("merge events: %w", err)
	}
	res.Imported, res.Replaced = len(tasks), removed
	im.logger.Info("calendar imported", "source", opts.Source, "events", len(tasks), "replaced", removed)

	if opts.StampLog {
		if im.logs == nil {
			return res, dailylog.ErrNotInitialized
		}
		for i, e := range events {
			added, err := im.stamp(e, tasks[i].Name, opts.Location)
			if err != nil {
				return res, fmt.Errorf("stamp %q: %w", e.Summary, err)
			}
			if added > 0 {
				res.Stamped++
			}
		}
	}
	return res, nil
}

// Tasks translates events into catalog tasks, one per event with a single
// subtask named after its time range. Repeated summaries get a numeric
// suffix so every task name stays unique.
func Tasks(events []Event, color string, loc *time.Location) []catalog.Task {
	seen := make(map[string]int, len(events))
	out := make([]catalog.Task, 0, len(events))
	for _, e := range events {
		name := e.Summary
		seen[name]++
		if n := seen[name]; n > 1 {
			name += " (" + strconv.Itoa(n) + ")"
		}
		out = append(out, ToTask(e, name, color, loc))
	}
	return out
}

func ToTask(e Event, name, color string, loc *time.Location) catalog.Task {
	est := catalog.FormatHours(e.Duration())
	return catalog.Task{
		Name:          name,
		Type:          taskType,
		Category:      category,
		EstimatedTime: est,
		ActualTime:    "0",
		Color:         color,
		Subtasks: []catalog.Subtask{{
			Name:          e.Label(loc),
			Status:        catalog.Pending,
			EstimatedTime: est,
			ActualTime:    "0",
		}},
	}
}

// stamp merges an active-start row at the event's start and a stop row at
// its end into the start day's log. All-day events are booked from 09:00
// to 17:00. When the day's log was inside an active interval at the
// event's end, the stop row reopens that interval instead. Rows already in
// the log are not written again, so importing the same range twice logs
// each event once.
func (im *Importer) stamp(e Event, task string, loc *time.Location) (int, error) {
	start, end := e.Start.In(loc), e.End.In(loc)
	if e.AllDay {
		y, m, d := e.Start.Date()
		start = time.Date(y, m, d, 9, 0, 0, 0, loc)
		end = time.Date(y, m, d, 17, 0, 0, 0, loc)
	} else if !sameDay(start, end) {
		y, m, d := start.Date()
		end = time.Date(y, m, d, 23, 59, 59, 0, loc)
	}

	existing, err := im.logs.ReadDay(start)
	if err != nil {
		return 0, err
	}
	subtask := e.Label(loc)
	open := dailylog.Row{Mode: 1, Status: 1, Work: 1, Block: 1, Task: task, Subtask: subtask, Time: dailylog.ClockOf(start)}
	stop := dailylog.Row{Task: task, Subtask: subtask, Time: dailylog.ClockOf(end)}
	if prev, ok := lastAtOrBefore(existing, stop.Time); ok && prev.IsActiveStart() {
		stop = prev
		stop.Time = dailylog.ClockOf(end)
	}
	return im.logs.Insert(start, []dailylog.Row{open, stop})
}

func lastAtOrBefore(rows []dailylog.Row, t time.Duration) (dailylog.Row, bool) {
	var found dailylog.Row
	ok := false
	for _, r := range rows {
		if r.Time <= t {
			found, ok = r, true
		}
	}
	return found, ok
}
