package store

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sadopc/deskwatch/internal/tracker"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var day = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// ============================================================
// Store initialization
// ============================================================

func TestNewMemory(t *testing.T) {
	s, err := NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var version int
	s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if version != 1 {
		t.Fatalf("expected user_version 1, got %d", version)
	}
}

func TestNewWithPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "deskwatch.db")
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.StartSession("a", day); err != nil {
		t.Fatal(err)
	}
	s.Close()

	// Reopen: data survives and migrations do not run twice.
	s2, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if _, err := s2.GetSession("a"); err != nil {
		t.Fatalf("session lost on reopen: %v", err)
	}
}

func TestPragmasConfigured(t *testing.T) {
	s := newTestStore(t)

	var fk int
	s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk)
	if fk != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fk)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

// ============================================================
// Sessions
// ============================================================

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)

	if err := s.StartSession("s1", day); err != nil {
		t.Fatal(err)
	}
	sess, err := s.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if !sess.StartedAt.Equal(day) || sess.EndedAt != nil {
		t.Fatalf("running session: %+v", sess)
	}

	end := day.Add(2 * time.Hour)
	if err := s.EndSession("s1", end, 2, 95*time.Minute); err != nil {
		t.Fatal(err)
	}
	sess, _ = s.GetSession("s1")
	if sess.EndedAt == nil || !sess.EndedAt.Equal(end) {
		t.Fatalf("ended_at = %v", sess.EndedAt)
	}
	if sess.Blocks != 2 || sess.Active != 95*time.Minute {
		t.Fatalf("finished session: %+v", sess)
	}
}

func TestStartSessionDuplicateID(t *testing.T) {
	s := newTestStore(t)
	s.StartSession("dup", day)
	if err := s.StartSession("dup", day); err == nil {
		t.Fatal("expected primary key error")
	}
}

func TestEndSessionUnknown(t *testing.T) {
	s := newTestStore(t)
	err := s.EndSession("ghost", day, 0, 0)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetSession("nope"); err == nil {
		t.Fatal("expected error for missing session")
	}
}

func TestListSessions(t *testing.T) {
	s := newTestStore(t)
	s.StartSession("old", day.AddDate(0, 0, -8))
	s.StartSession("a", day)
	s.StartSession("b", day.Add(3*time.Hour))

	list, err := s.ListSessions(day.Add(-time.Hour), day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "b" || list[1].ID != "a" {
		t.Fatalf("expected [b a], got %+v", list)
	}
}

func TestGetSessionStats(t *testing.T) {
	s := newTestStore(t)
	s.StartSession("a", day)
	s.EndSession("a", day.Add(time.Hour), 1, 45*time.Minute)
	s.StartSession("b", day.Add(2*time.Hour))
	s.EndSession("b", day.Add(4*time.Hour), 2, 90*time.Minute)
	s.StartSession("running", day.Add(5*time.Hour))

	st, err := s.GetSessionStats(day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if st.Sessions != 2 || st.Blocks != 3 || st.Active != 135*time.Minute {
		t.Fatalf("stats = %+v", st)
	}
}

func TestGetSessionStatsEmpty(t *testing.T) {
	s := newTestStore(t)
	st, err := s.GetSessionStats(day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if st.Sessions != 0 || st.Active != 0 {
		t.Fatalf("expected empty stats, got %+v", st)
	}
}

// ============================================================
// Settings
// ============================================================

func TestSettingsDefaults(t *testing.T) {
	s := newTestStore(t)

	defaults := map[string]string{
		"block_duration":       "2700",
		"break_duration":       "900",
		"grace_period":         "2",
		"confidence_threshold": "0.8",
		"daily_goals":          "8,8,8,8,8,0,0",
		"week_start":           "monday",
	}

	for k, expected := range defaults {
		val, err := s.GetSetting(k)
		if err != nil {
			t.Fatalf("GetSetting(%q): %v", k, err)
		}
		if val != expected {
			t.Fatalf("GetSetting(%q) = %q, want %q", k, val, expected)
		}
	}
}

func TestSetSettingOverwrite(t *testing.T) {
	s := newTestStore(t)

	s.SetSetting("key", "v1")
	s.SetSetting("key", "v2")
	val, _ := s.GetSetting("key")
	if val != "v2" {
		t.Fatalf("expected v2, got %s", val)
	}
}

func TestGetSettingNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSetting("nonexistent")
	if err == nil {
		t.Fatal("expected error for missing setting")
	}
}

func TestGetAllSettings(t *testing.T) {
	s := newTestStore(t)
	all, err := s.GetAllSettings()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 default settings, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Key >= all[i].Key {
			t.Fatalf("settings not sorted: %s >= %s", all[i-1].Key, all[i].Key)
		}
	}
}

// ============================================================
// Preferences
// ============================================================

func TestPreferencesDefaults(t *testing.T) {
	s := newTestStore(t)
	p, err := s.Preferences()
	if err != nil {
		t.Fatal(err)
	}
	if p.Tracker != tracker.DefaultSettings() {
		t.Fatalf("tracker settings = %+v", p.Tracker)
	}
	if p.DailyGoals != DefaultPreferences().DailyGoals || p.WeekStart != time.Monday {
		t.Fatalf("preferences = %+v", p)
	}
}

func TestSavePreferences(t *testing.T) {
	s := newTestStore(t)
	p := DefaultPreferences()
	p.Tracker.BlockDuration = 50 * time.Minute
	p.Tracker.GracePeriod = 1500 * time.Millisecond
	p.Tracker.ConfidenceThreshold = 0.65
	p.DailyGoals[5] = 2 * time.Hour
	p.WeekStart = time.Sunday

	if err := s.SavePreferences(p); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.GetSetting(KeyGracePeriod); v != "1.5" {
		t.Fatalf("grace_period stored as %q", v)
	}
	if v, _ := s.GetSetting(KeyWeekStart); v != "sunday" {
		t.Fatalf("week_start stored as %q", v)
	}

	got, err := s.Preferences()
	if err != nil {
		t.Fatal(err)
	}
	if got != p {
		t.Fatalf("round trip:\n got %+v\nwant %+v", got, p)
	}
}

func TestSavePreferencesValidation(t *testing.T) {
	s := newTestStore(t)
	bad := []func(*Preferences){
		func(p *Preferences) { p.Tracker.BlockDuration = 0 },
		func(p *Preferences) { p.Tracker.BreakDuration = -time.Second },
		func(p *Preferences) { p.Tracker.GracePeriod = -time.Second },
		func(p *Preferences) { p.Tracker.ConfidenceThreshold = 1.5 },
	}
	for i, mutate := range bad {
		p := DefaultPreferences()
		mutate(&p)
		if err := s.SavePreferences(p); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if v, _ := s.GetSetting(KeyBlockDuration); v != "2700" {
		t.Fatalf("rejected preferences were written: %q", v)
	}
}

func TestPreferencesBadValue(t *testing.T) {
	s := newTestStore(t)
	s.SetSetting(KeyDailyGoals, "8,8")
	if _, err := s.Preferences(); err == nil {
		t.Fatal("expected error for malformed daily_goals")
	}
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{"monday": time.Monday, " Sunday ": time.Sunday, "SATURDAY": time.Saturday} {
		got, err := ParseWeekday(in)
		if err != nil || got != want {
			t.Fatalf("ParseWeekday(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseWeekday("someday"); err == nil {
		t.Fatal("expected error")
	}
}

// ============================================================
// Close
// ============================================================

func TestCloseStore(t *testing.T) {
	s, _ := NewMemory()
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
}

var _ tracker.SessionRecorder = (*Store)(nil)
