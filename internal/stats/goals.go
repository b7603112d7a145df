package stats

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DailyGoals holds a target per weekday, Monday first.
type DailyGoals [7]time.Duration

func DefaultDailyGoals() DailyGoals {
	return DailyGoals{8 * time.Hour, 8 * time.Hour, 8 * time.Hour, 8 * time.Hour, 8 * time.Hour, 0, 0}
}

// ParseDailyGoals reads seven comma-separated hour values, Monday first.
func ParseDailyGoals(s string) (DailyGoals, error) {
	var g DailyGoals
	parts := strings.Split(s, ",")
	if len(parts) != 7 {
		return g, fmt.Errorf("parse daily goals %q: want 7 values, got %d", s, len(parts))
	}
	for i, p := range parts {
		h, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || h < 0 || h > 24 {
			return g, fmt.Errorf("parse daily goals %q: bad value %q", s, p)
		}
		g[i] = time.Duration(h * float64(time.Hour))
	}
	return g, nil
}

func (g DailyGoals) String() string {
	parts := make([]string, len(g))
	for i, d := range g {
		parts[i] = strconv.FormatFloat(d.Hours(), 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// For returns the goal for date's weekday.
func (g DailyGoals) For(date time.Time) time.Duration {
	return g[(int(date.Weekday())+6)%7]
}

// Progress is logged time against a goal.
type Progress struct {
	Done time.Duration
	Goal time.Duration
}

// Percent is the share of the goal reached, capped at 100. A zero goal
// counts as reached.
func (p Progress) Percent() float64 {
	if p.Goal <= 0 {
		return 100
	}
	pct := float64(p.Done) / float64(p.Goal) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// DayProgress pairs every day of the window with its goal.
func DayProgress(w Window, goals DailyGoals) []Progress {
	out := make([]Progress, len(w.Days))
	for i, d := range w.Days {
		out[i] = Progress{Done: d.Total, Goal: goals.For(d.Date)}
	}
	return out
}

// WeekProgress sums the window's time against the sum of its daily goals.
func WeekProgress(w Window, goals DailyGoals) Progress {
	var p Progress
	for _, d := range DayProgress(w, goals) {
		p.Done += d.Done
		p.Goal += d.Goal
	}
	return p
}
