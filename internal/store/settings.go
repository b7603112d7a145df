package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sadopc/deskwatch/internal/stats"
	"github.com/sadopc/deskwatch/internal/tracker"
)

const (
	KeyBlockDuration       = "block_duration"
	KeyBreakDuration       = "break_duration"
	KeyGracePeriod         = "grace_period"
	KeyConfidenceThreshold = "confidence_threshold"
	KeyDailyGoals          = "daily_goals"
	KeyWeekStart           = "week_start"
)

func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (s *Store) GetAllSettings() ([]Setting, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// Preferences are the tunables editable from the settings view.
type Preferences struct {
	Tracker    tracker.Settings
	DailyGoals stats.DailyGoals
	WeekStart  time.Weekday
}

func DefaultPreferences() Preferences {
	return Preferences{
		Tracker:    tracker.DefaultSettings(),
		DailyGoals: stats.DefaultDailyGoals(),
		WeekStart:  time.Monday,
	}
}

// Preferences reads the typed settings. A missing key keeps its default;
// a value that does not parse is an error.
func (s *Store) Preferences() (Preferences, error) {
	p := DefaultPreferences()
	all, err := s.GetAllSettings()
	if err != nil {
		return p, err
	}
	for _, kv := range all {
		if err := p.set(kv.Key, kv.Value); err != nil {
			return p, fmt.Errorf("setting %q: %w", kv.Key, err)
		}
	}
	return p, nil
}

// SavePreferences writes every typed setting.
func (s *Store) SavePreferences(p Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for k, v := range p.values() {
		if err := s.SetSetting(k, v); err != nil {
			return fmt.Errorf("save setting %q: %w", k, err)
		}
	}
	return nil
}

// Validate rejects settings the tracker cannot run with.
func (p Preferences) Validate() error {
	t := p.Tracker
	switch {
	case t.BlockDuration <= 0:
		return fmt.Errorf("block duration must be positive")
	case t.BreakDuration <= 0:
		return fmt.Errorf("break duration must be positive")
	case t.GracePeriod < 0:
		return fmt.Errorf("grace period must not be negative")
	case t.ConfidenceThreshold < 0 || t.ConfidenceThreshold > 1:
		return fmt.Errorf("confidence threshold must be between 0 and 1")
	}
	return nil
}

func (p *Preferences) set(key, value string) error {
	switch key {
	case KeyBlockDuration:
		return parseSeconds(value, &p.Tracker.BlockDuration)
	case KeyBreakDuration:
		return parseSeconds(value, &p.Tracker.BreakDuration)
	case KeyGracePeriod:
		return parseSeconds(value, &p.Tracker.GracePeriod)
	case KeyConfidenceThreshold:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		p.Tracker.ConfidenceThreshold = f
	case KeyDailyGoals:
		g, err := stats.ParseDailyGoals(value)
		if err != nil {
			return err
		}
		p.DailyGoals = g
	case KeyWeekStart:
		d, err := ParseWeekday(value)
		if err != nil {
			return err
		}
		p.WeekStart = d
	}
	return nil
}

func (p Preferences) values() map[string]string {
	return map[string]string{
		KeyBlockDuration:       formatSeconds(p.Tracker.BlockDuration),
		KeyBreakDuration:       formatSeconds(p.Tracker.BreakDuration),
		KeyGracePeriod:         formatSeconds(p.Tracker.GracePeriod),
		KeyConfidenceThreshold: strconv.FormatFloat(p.Tracker.ConfidenceThreshold, 'f', -1, 64),
		KeyDailyGoals:          p.DailyGoals.String(),
		KeyWeekStart:           strings.ToLower(p.WeekStart.String()),
	}
}

// ParseWeekday accepts an English weekday name, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func parseSeconds(value string, dst *time.Duration) error {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	*dst = time.Duration(n * float64(time.Second))
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
