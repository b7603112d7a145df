// Package stats aggregates reconstructed work intervals into per-day,
// per-task and per-category totals.
package stats

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/sadopc/deskwatch/internal/dailylog"
	"github.com/sadopc/deskwatch/internal/timeline"
)

// NoTask labels time logged while no task was in progress.
const NoTask = "(No Task)"

// LogReader is the read side of the daily log.
type LogReader interface {
	ReadDay(day time.Time) ([]dailylog.Row, error)
}

// SubtaskKey identifies a task/subtask pair. Subtask is empty for time
// logged against a task only, and both are empty for untitled time.
type SubtaskKey struct {
	Task    string
	Subtask string
}

func (k SubtaskKey) Label() string {
	switch {
	case k.Task != "" && k.Subtask != "":
		return k.Task + ":" + k.Subtask
	case k.Task != "":
		return k.Task
	default:
		return NoTask
	}
}

func keyOf(task, subtask string) SubtaskKey {
	if task == "" {
		return SubtaskKey{}
	}
	return SubtaskKey{Task: task, Subtask: subtask}
}

type Day struct {
	Date      time.Time
	Total     time.Duration
	Intervals []timeline.Interval
}

// FirstStart returns the day's first start as HH:MM, or "" when the day
// has no active interval.
func (d Day) FirstStart() string {
	start, ok := timeline.FirstStart(d.Intervals)
	if !ok {
		return ""
	}
	return dailylog.FormatClock(start)[:5]
}

// Window holds the totals of a run of consecutive days.
type Window struct {
	Start    time.Time
	Days     []Day
	Tasks    map[string]time.Duration
	Subtasks map[SubtaskKey]time.Duration
}

// DailyTotals returns one entry per day of the window, zero for days
// without data.
func (w Window) DailyTotals() []time.Duration {
	out := make([]time.Duration, len(w.Days))
	for i, d := range w.Days {
		out[i] = d.Total
	}
	return out
}

// DailyHours is DailyTotals in hours rounded to two decimals.
func (w Window) DailyHours() []float64 {
	out := make([]float64, len(w.Days))
	for i, d := range w.Days {
		out[i] = Hours(d.Total)
	}
	return out
}

// FirstStarts returns the first start of every day of the window.
func (w Window) FirstStarts() []string {
	out := make([]string, len(w.Days))
	for i, d := range w.Days {
		out[i] = d.FirstStart()
	}
	return out
}

func (w Window) Total() time.Duration {
	var total time.Duration
	for _, d := range w.Days {
		total += d.Total
	}
	return total
}

// End returns the first instant after the window.
func (w Window) End() time.Time {
	return w.Start.AddDate(0, 0, len(w.Days))
}

type Aggregator struct {
	logs   LogReader
	logger *slog.Logger

	// Now stamps still-open intervals of the current day.
	Now func() time.Time
	// WeekStart is the first day of a reporting week.
	WeekStart time.Weekday
}

func NewAggregator(logs LogReader, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Aggregator{logs: logs, logger: logger, Now: time.Now, WeekStart: time.Monday}
}

// Week aggregates the seven days from WeekStart that contain ref.
func (a *Aggregator) Week(ref time.Time) Window {
	return a.Window(WeekOf(ref, a.WeekStart), 7)
}

// Window aggregates n days starting at start's calendar date. The result
// always has n days; a day whose log is missing or unreadable counts as
// empty.
func (a *Aggregator) Window(start time.Time, n int) Window {
	if n < 0 {
		n = 0
	}
	start = midnight(start)
	now := a.Now()
	w := Window{
		Start:    start,
		Days:     make([]Day, n),
		Tasks:    make(map[string]time.Duration),
		Subtasks: make(map[SubtaskKey]time.Duration),
	}
	for i := range w.Days {
		date := start.AddDate(0, 0, i)
		w.Days[i].Date = date

		rows, err := a.logs.ReadDay(date)
		if err != nil {
			a.logger.Warn("daily log unreadable; counting day as empty",
				"day", date.Format(dailylog.FileDateLayout), "err", err)
			continue
		}
		until := timeline.ReadTime(date, now)
		if until == timeline.EndOfDay && len(rows) > 0 && rows[len(rows)-1].IsActiveStart() {
			a.logger.Warn("daily log ends inside an active interval; counting it until midnight",
				"day", date.Format(dailylog.FileDateLayout),
				"since", dailylog.FormatClock(rows[len(rows)-1].Time),
				"task", rows[len(rows)-1].Task)
		}
		ivs := timeline.Reconstruct(rows, until)
		w.Days[i].Intervals = ivs
		w.Days[i].Total = timeline.Total(ivs)

		for _, iv := range ivs {
			if iv.Task != "" {
				w.Tasks[iv.Task] += iv.Duration
			}
			w.Subtasks[keyOf(iv.Task, iv.Subtask)] += iv.Duration
		}
	}
	return w
}

// WeekOf returns midnight of the first day of the week that holds t.
func WeekOf(t time.Time, first time.Weekday) time.Time {
	d := midnight(t)
	offset := (int(d.Weekday()) - int(first) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Hours converts d to hours rounded to two decimals.
func Hours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}

// FormatDuration renders d as "3h 25m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
