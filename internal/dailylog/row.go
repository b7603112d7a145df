package dailylog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the column layout every daily log file starts with.
var Header = []string{"Mode", "Status", "Work", "Block", "Task", "Subtask", "Timer", "Time"}

// Row is one snapshot of tracker state.
type Row struct {
	Mode    int // 1 = tracking, 0 = held
	Status  int // 1 = presence detected
	Work    int // 1 = work block, 0 = break
	Block   int
	Task    string
	Subtask string
	Timer   time.Duration // active time within the current block
	Time    time.Duration // wall clock, offset from midnight

	// Malformed marks a row whose flags could not be parsed but whose
	// time could. It still closes an open interval, it never opens one.
	Malformed bool
}

// IsActiveStart reports whether the row opens an active interval.
func (r Row) IsActiveStart() bool {
	return !r.Malformed && r.Mode == 1 && r.Status == 1 && r.Work == 1
}

// Record renders the row in Header order.
func (r Row) Record() []string {
	return []string{
		strconv.Itoa(r.Mode),
		strconv.Itoa(r.Status),
		strconv.Itoa(r.Work),
		strconv.Itoa(r.Block),
		r.Task,
		r.Subtask,
		FormatClock(r.Timer),
		FormatClock(r.Time),
	}
}

// ParseError describes a row that could not be parsed.
type ParseError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: field %s=%q: %v", e.Line, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errMissingColumn = errors.New("missing column")

// columns maps header names to record positions.
type columns map[string]int

func newColumns(header []string) (columns, error) {
	cols := make(columns, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{"Mode", "Status", "Work", "Time"} {
		if _, ok := cols[required]; !ok {
			return nil, &ParseError{Line: 1, Field: required, Err: errMissingColumn}
		}
	}
	return cols, nil
}

func (c columns) get(rec []string, name string) (string, bool) {
	i, ok := c[name]
	if !ok || i >= len(rec) {
		return "", false
	}
	return strings.TrimSpace(rec[i]), true
}

// parseRecord turns one CSV record into a Row. When the Time column is
// usable but a flag is not, it returns a Malformed row together with the
// error so the caller can keep the row as a stop marker.
func (c columns) parseRecord(line int, rec []string) (Row, error) {
	var row Row

	raw, ok := c.get(rec, "Time")
	if !ok {
		return row, &ParseError{Line: line, Field: "Time", Err: errMissingColumn}
	}
	t, err := ParseClock(raw)
	if err != nil {
		return row, &ParseError{Line: line, Field: "Time", Value: raw, Err: err}
	}
	row.Time = t
	row.Task, _ = c.get(rec, "Task")
	row.Subtask, _ = c.get(rec, "Subtask")

	flags := []struct {
		name string
		dst  *int
	}{
		{"Mode", &row.Mode},
		{"Status", &row.Status},
		{"Work", &row.Work},
	}
	for _, f := range flags {
		v, _ := c.get(rec, f.name)
		n, err := parseFlag(v)
		if err != nil {
			return Row{Time: t, Task: row.Task, Subtask: row.Subtask, Malformed: true},
				&ParseError{Line: line, Field: f.name, Value: v, Err: err}
		}
		*f.dst = n
	}

	if v, ok := c.get(rec, "Block"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			row.Block = n
		}
	}
	if v, ok := c.get(rec, "Timer"); ok && v != "" {
		if d, err := ParseClock(v); err == nil {
			row.Timer = d
		}
	}
	return row, nil
}

func parseFlag(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n != 0 && n != 1 {
		return 0, fmt.Errorf("flag out of range: %d", n)
	}
	return n, nil
}

// ParseClock parses H:MM:SS or HH:MM:SS into an offset from midnight.
// Hours may exceed 23 for cumulative timers.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("parse clock %q: want H:MM:SS", s)
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("parse clock %q: bad component %q", s, p)
		}
		n[i] = v
	}
	if n[1] > 59 || n[2] > 59 {
		return 0, fmt.Errorf("parse clock %q: out of range", s)
	}
	return time.Duration(n[0])*time.Hour + time.Duration(n[1])*time.Minute + time.Duration(n[2])*time.Second, nil
}

// FormatClock renders d as HH:MM:SS, dropping sub-second precision.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// ClockOf returns the offset of t from its local midnight, in whole seconds.
func ClockOf(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}

// render lays r out for a file whose header has width columns.
func (c columns) render(width int, r Row) []string {
	rec := make([]string, width)
	for i, v := range r.Record() {
		if j, ok := c[Header[i]]; ok && j < width {
			rec[j] = v
		}
	}
	return rec
}
