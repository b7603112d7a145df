// Package timeline rebuilds active work intervals from a day's log rows.
//
// Each active-start row (mode, status and work all 1) opens an interval that
// is closed by whatever row comes next in the log, not by the next
// active-start row. A synthetic stop row stamped with the read time closes
// an interval that is still running.
package timeline

import (
	"time"

	"github.com/sadopc/deskwatch/internal/dailylog"
)

// EndOfDay is the read time used for days that are already over.
const EndOfDay = 24 * time.Hour

// Interval is one contiguous span of active work. Start and Stop are
// offsets from the day's midnight.
type Interval struct {
	Start    time.Duration
	Stop     time.Duration
	Duration time.Duration
	Task     string
	Subtask  string
	Block    int
}

// Reconstruct pairs every active-start row with its immediate successor.
// until stands in for the stop of a trailing interval that has not been
// closed yet. Leading rows before the first active start are ignored, and a
// stop earlier than its start (a session past midnight, a clock jump)
// yields a zero duration.
func Reconstruct(rows []dailylog.Row, until time.Duration) []Interval {
	first := -1
	for i, r := range rows {
		if r.IsActiveStart() {
			first = i
			break
		}
	}
	if first < 0 {
		return nil
	}
	rows = rows[first:]

	out := make([]Interval, 0, len(rows)/2+1)
	for i, r := range rows {
		if !r.IsActiveStart() {
			continue
		}
		stop := until
		if i+1 < len(rows) {
			stop = rows[i+1].Time
		}
		d := stop - r.Time
		if d < 0 {
			d = 0
		}
		out = append(out, Interval{
			Start:    r.Time,
			Stop:     stop,
			Duration: d.Truncate(time.Second),
			Task:     r.Task,
			Subtask:  r.Subtask,
			Block:    r.Block,
		})
	}
	return out
}

// Total sums the durations of intervals.
func Total(intervals []Interval) time.Duration {
	var total time.Duration
	for _, iv := range intervals {
		total += iv.Duration
	}
	return total
}

// FirstStart returns the start of the day's first interval.
func FirstStart(intervals []Interval) (time.Duration, bool) {
	if len(intervals) == 0 {
		return 0, false
	}
	return intervals[0].Start, true
}

// ReadTime picks the stop used for a still-open interval on day: the current
// wall clock for today, the end of the day for past days, and zero for days
// that have not started.
func ReadTime(day, now time.Time) time.Duration {
	y, m, d := day.Date()
	ny, nm, nd := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, now.Location())
	switch {
	case dayStart.Equal(today):
		return dailylog.ClockOf(now)
	case dayStart.Before(today):
		return EndOfDay
	default:
		return 0
	}
}
