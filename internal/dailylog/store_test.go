package dailylog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func at(day time.Time, clock string) time.Time {
	d, err := ParseClock(clock)
	if err != nil {
		panic(err)
	}
	return day.Add(d)
}

var monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

// ============================================================
// Clock helpers
// ============================================================

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"09:00:00", 9 * time.Hour, true},
		{"0:12:34", 12*time.Minute + 34*time.Second, true},
		{"23:59:59", 23*time.Hour + 59*time.Minute + 59*time.Second, true},
		{"27:00:00", 27 * time.Hour, true},
		{"9:00", 0, false},
		{"aa:00:00", 0, false},
		{"10:61:00", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.ok && err != nil {
			t.Fatalf("ParseClock(%q): %v", tt.in, err)
		}
		if !tt.ok && err == nil {
			t.Fatalf("ParseClock(%q) should fail", tt.in)
		}
		if tt.ok && got != tt.want {
			t.Fatalf("ParseClock(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{90 * time.Second, "00:01:30"},
		{45*time.Minute + 500*time.Millisecond, "00:45:00"},
		{-time.Second, "00:00:00"},
		{26 * time.Hour, "26:00:00"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.in); got != tt.want {
			t.Fatalf("FormatClock(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsActiveStart(t *testing.T) {
	if !(Row{Mode: 1, Status: 1, Work: 1}).IsActiveStart() {
		t.Fatal("1,1,1 should be an active start")
	}
	for _, r := range []Row{
		{Mode: 0, Status: 1, Work: 1},
		{Mode: 1, Status: 0, Work: 1},
		{Mode: 1, Status: 1, Work: 0},
		{Mode: 1, Status: 1, Work: 1, Malformed: true},
	} {
		if r.IsActiveStart() {
			t.Fatalf("%+v should not be an active start", r)
		}
	}
}

// ============================================================
// Append / ReadDay
// ============================================================

func TestAppendCreatesFileWithHeader(t *testing.T) {
	s := newTestStore(t)
	row := Row{Mode: 1, Status: 1, Work: 1, Block: 1, Task: "Write", Subtask: "Intro", Timer: 5 * time.Minute}
	if err := s.Append(at(monday, "09:00:00"), row); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(filepath.Join(s.Dir(), "10-03-25.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if lines[0] != "Mode,Status,Work,Block,Task,Subtask,Timer,Time" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "1,1,1,1,Write,Intro,00:05:00,09:00:00" {
		t.Fatalf("row = %q", lines[1])
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	clocks := []string{"09:00:00", "09:00:00", "09:10:00", "08:00:00"}
	for i, c := range clocks {
		if err := s.Append(at(monday, c), Row{Block: i}); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := s.ReadDay(monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != len(clocks) {
		t.Fatalf("expected %d rows, got %d", len(clocks), len(rows))
	}
	for i, r := range rows {
		if r.Block != i {
			t.Fatalf("row %d out of order: block %d", i, r.Block)
		}
		if FormatClock(r.Time) != clocks[i] {
			t.Fatalf("row %d time %s, want %s", i, FormatClock(r.Time), clocks[i])
		}
	}
}

func TestAppendKeysByDate(t *testing.T) {
	s := newTestStore(t)
	s.Append(at(monday, "23:59:59"), Row{})
	s.Append(at(monday.AddDate(0, 0, 1), "00:00:01"), Row{})

	r1, _ := s.ReadDay(monday)
	r2, _ := s.ReadDay(monday.AddDate(0, 0, 1))
	if len(r1) != 1 || len(r2) != 1 {
		t.Fatalf("expected one row per day, got %d and %d", len(r1), len(r2))
	}
}

func TestAppendUninitialized(t *testing.T) {
	var s *Store
	if err := s.Append(time.Now(), Row{}); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := (&Store{}).Append(time.Now(), Row{}); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestReadDayMissingFile(t *testing.T) {
	s := newTestStore(t)
	rows, err := s.ReadDay(monday)
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func writeLog(t *testing.T, s *Store, day time.Time, content string) {
	t.Helper()
	if err := os.WriteFile(s.Path(day), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadDayLegacyTimerFormat(t *testing.T) {
	s := newTestStore(t)
	writeLog(t, s, monday, "Mode,Status,Work,Block,Task,Subtask,Timer,Time\n1,1,1,1,Relax,Slay,0:12:03,09:00:00\n")

	rows, err := s.ReadDay(monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.Timer != 12*time.Minute+3*time.Second || r.Task != "Relax" || r.Subtask != "Slay" {
		t.Fatalf("unexpected row: %+v", r)
	}
}

func TestReadDayMalformedRows(t *testing.T) {
	s := newTestStore(t)
	var reported []int
	s.OnMalformed = func(_ time.Time, err *ParseError) {
		reported = append(reported, err.Line)
	}
	writeLog(t, s, monday, strings.Join([]string{
		"Mode,Status,Work,Block,Task,Subtask,Timer,Time",
		"1,1,1,1,A,,00:00:00,09:00:00",
		"x,1,1,1,A,,00:00:00,09:10:00", // bad flag, good time: stop marker
		"1,1,1,1,A,,00:00:00,nonsense", // bad time: dropped
		"0,0,0,1,A,,00:00:00,09:30:00",
	}, "\n")+"\n")

	rows, err := s.ReadDay(monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if !rows[1].Malformed || rows[1].IsActiveStart() {
		t.Fatalf("second row should be a malformed stop marker: %+v", rows[1])
	}
	if len(reported) != 2 {
		t.Fatalf("expected 2 reported rows, got %v", reported)
	}
}

func TestReadDayPartialTrailingLine(t *testing.T) {
	s := newTestStore(t)
	writeLog(t, s, monday, "Mode,Status,Work,Block,Task,Subtask,Timer,Time\n1,1,1,1,A,,00:00:00,09:00:00\n0,0,0,1,A,,00:1")

	rows, err := s.ReadDay(monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("partial trailing line should be ignored, got %d rows", len(rows))
	}
}

func TestReadDayBadHeader(t *testing.T) {
	s := newTestStore(t)
	writeLog(t, s, monday, "foo,bar\n1,2\n")

	rows, err := s.ReadDay(monday)
	if err != nil {
		t.Fatalf("bad header should degrade to empty day: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

// ============================================================
// Insert
// ============================================================

func TestInsertMergesInTimeOrder(t *testing.T) {
	s := newTestStore(t)
	s.Append(at(monday, "14:00:00"), Row{Mode: 1, Status: 1, Work: 1, Block: 1, Task: "Code"})

	n, err := s.Insert(monday, []Row{
		{Mode: 1, Status: 1, Work: 1, Block: 1, Task: "Review", Time: 9 * time.Hour},
		{Task: "Review", Time: 10 * time.Hour},
		{Task: "Late", Time: 15 * time.Hour},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("inserted %d rows, want 3", n)
	}

	rows, _ := s.ReadDay(monday)
	want := []string{"09:00:00", "10:00:00", "14:00:00", "15:00:00"}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for i, r := range rows {
		if FormatClock(r.Time) != want[i] {
			t.Fatalf("row %d at %s, want %s", i, FormatClock(r.Time), want[i])
		}
	}
	if rows[2].Task != "Code" {
		t.Fatalf("existing row moved: %+v", rows)
	}
	if _, err := os.Stat(s.Path(monday) + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind")
	}
}

func TestInsertSkipsExistingRows(t *testing.T) {
	s := newTestStore(t)
	batch := []Row{
		{Mode: 1, Status: 1, Work: 1, Block: 1, Task: "Review", Time: 9 * time.Hour},
		{Task: "Review", Time: 10 * time.Hour},
	}
	if n, err := s.Insert(monday, batch); err != nil || n != 2 {
		t.Fatalf("first insert: n=%d err=%v", n, err)
	}
	if n, err := s.Insert(monday, batch); err != nil || n != 0 {
		t.Fatalf("second insert: n=%d err=%v", n, err)
	}
	rows, _ := s.ReadDay(monday)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}

func TestInsertKeepsUnparsedLines(t *testing.T) {
	s := newTestStore(t)
	writeLog(t, s, monday, strings.Join([]string{
		"Mode,Status,Work,Block,Task,Subtask,Timer,Time",
		"1,1,1,1,A,,00:00:00,09:00:00",
		"1,1,1,1,A,,00:00:00,nonsense",
		"0,0,0,1,A,,00:00:00,09:30:00",
	}, "\n")+"\n")

	if _, err := s.Insert(monday, []Row{{Task: "B", Time: 12 * time.Hour}}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(s.Path(monday))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header + 4 rows, got %q", lines)
	}
	if lines[2] != "1,1,1,1,A,,00:00:00,nonsense" {
		t.Fatalf("unparsed line changed: %q", lines[2])
	}
	if lines[4] != "0,0,0,0,B,,00:00:00,12:00:00" {
		t.Fatalf("inserted row = %q", lines[4])
	}
}

func TestInsertRefusesUnknownHeader(t *testing.T) {
	s := newTestStore(t)
	writeLog(t, s, monday, "foo,bar\n1,2\n")

	if _, err := s.Insert(monday, []Row{{Time: time.Hour}}); err == nil {
		t.Fatal("expected an error for a file without the log columns")
	}
	b, _ := os.ReadFile(s.Path(monday))
	if string(b) != "foo,bar\n1,2\n" {
		t.Fatalf("file was rewritten: %q", b)
	}
}

// ============================================================
// ListDatesInRange
// ============================================================

func TestListDatesInRange(t *testing.T) {
	s := newTestStore(t)
	for _, offset := range []int{-1, 0, 2, 6, 7} {
		if err := s.Append(at(monday.AddDate(0, 0, offset), "10:00:00"), Row{}); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(s.Dir(), "todo.json"), []byte("{}"), 0o644)
	os.WriteFile(filepath.Join(s.Dir(), "notes.csv"), []byte(""), 0o644)

	dates, err := s.ListDatesInRange(monday, monday.AddDate(0, 0, 6).Add(12*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 3 {
		t.Fatalf("expected 3 dates, got %v", dates)
	}
	want := []int{10, 12, 16}
	for i, d := range dates {
		if d.Day() != want[i] {
			t.Fatalf("dates[%d] = %v, want day %d", i, d, want[i])
		}
	}
}

func TestListDatesMissingDir(t *testing.T) {
	s := newTestStore(t)
	os.RemoveAll(s.Dir())
	dates, err := s.ListDatesInRange(monday, monday)
	if err != nil || len(dates) != 0 {
		t.Fatalf("expected empty result, got %v %v", dates, err)
	}
}
