package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sadopc/deskwatch/internal/catalog"
	"github.com/sadopc/deskwatch/internal/stats"
	"github.com/sadopc/deskwatch/internal/timeline"
)

var monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func sampleWindow() stats.Window {
	w := stats.Window{
		Start: monday,
		Days:  make([]stats.Day, 7),
		Tasks: map[string]time.Duration{
			"Thesis":  time.Hour + 30*time.Minute,
			"Clients": 20 * time.Minute,
		},
		Subtasks: map[stats.SubtaskKey]time.Duration{},
	}
	for i := range w.Days {
		w.Days[i].Date = monday.AddDate(0, 0, i)
	}
	w.Days[0].Intervals = []timeline.Interval{
		{Start: 9 * time.Hour, Stop: 10 * time.Hour, Duration: time.Hour, Task: "Thesis", Subtask: "Draft", Block: 1},
		{Start: 10*time.Hour + 5*time.Minute, Stop: 10*time.Hour + 25*time.Minute, Duration: 20 * time.Minute, Task: "Clients", Block: 2},
	}
	w.Days[0].Total = 80 * time.Minute
	w.Days[2].Intervals = []timeline.Interval{
		{Start: 14 * time.Hour, Stop: 14*time.Hour + 30*time.Minute, Duration: 30 * time.Minute, Task: "Thesis", Subtask: `"Quoted", part`, Block: 1},
	}
	w.Days[2].Total = 30 * time.Minute
	return w
}

func emptyWindow() stats.Window {
	w := stats.Window{Start: monday, Days: make([]stats.Day, 7)}
	for i := range w.Days {
		w.Days[i].Date = monday.AddDate(0, 0, i)
	}
	return w
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	return records
}

// ============================================================
// CSV
// ============================================================

func TestToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "week.csv")
	if err := ToCSV(sampleWindow(), path); err != nil {
		t.Fatalf("ToCSV: %v", err)
	}
	records := readCSV(t, path)

	if len(records) != 4 {
		t.Fatalf("expected 4 rows (1 header + 3 intervals), got %d", len(records))
	}
	for i, h := range intervalHeader {
		if records[0][i] != h {
			t.Fatalf("header[%d] = %q, want %q", i, records[0][i], h)
		}
	}

	row := records[1]
	want := []string{"2025-03-10", "Thesis", "Draft", "1", "09:00:00", "10:00:00", "3600", "01:00:00"}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("row[%d] = %q, want %q", i, row[i], want[i])
		}
	}
	if records[2][2] != "" {
		t.Fatalf("task-only interval should have empty subtask, got %q", records[2][2])
	}
	if records[3][0] != "2025-03-12" || records[3][2] != `"Quoted", part` {
		t.Fatalf("third interval: %q", records[3])
	}
}

func TestToCSVEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := ToCSV(emptyWindow(), path); err != nil {
		t.Fatal(err)
	}
	if records := readCSV(t, path); len(records) != 1 {
		t.Fatalf("expected 1 row (header only), got %d", len(records))
	}
}

func TestToCSVBadPath(t *testing.T) {
	if err := ToCSV(emptyWindow(), "/nonexistent/dir/file.csv"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

// ============================================================
// JSON
// ============================================================

func TestToJSON(t *testing.T) {
	w := sampleWindow()
	doc := catalog.Document{Tasks: []catalog.Task{{Name: "Thesis", Category: "hacken"}}}
	roll := stats.RollUp(w.Tasks, doc, stats.DefaultCategories())

	path := filepath.Join(t.TempDir(), "week.json")
	if err := ToJSON(w, &roll, path); err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var result jsonExport
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, result.ExportedAt); err != nil {
		t.Fatalf("exported_at is not valid RFC3339: %q", result.ExportedAt)
	}
	if result.From != "2025-03-10" || result.To != "2025-03-16" {
		t.Fatalf("range = %s..%s", result.From, result.To)
	}
	if len(result.Intervals) != 3 || result.Intervals[0].DurationSec != 3600 || result.Intervals[0].Start != "09:00:00" {
		t.Fatalf("intervals: %+v", result.Intervals)
	}

	s := result.Summary
	if s.TotalSec != 110*60 || len(s.Days) != 7 {
		t.Fatalf("summary: %+v", s)
	}
	if s.Days[0].FirstStart != "09:00" || s.Days[1].FirstStart != "" || s.Days[1].TotalSec != 0 {
		t.Fatalf("days: %+v", s.Days)
	}
	if len(s.Tasks) != 2 || s.Tasks[0].Task != "Thesis" {
		t.Fatalf("tasks should be sorted largest first: %+v", s.Tasks)
	}
	if len(s.Categories) != 3 || s.Categories[0].Name != "Hacken" || s.Categories[0].TotalSec != 90*60 {
		t.Fatalf("categories: %+v", s.Categories)
	}
	if s.Categories[0].Goal != "18h 30m remaining" {
		t.Fatalf("goal text = %q", s.Categories[0].Goal)
	}
	if s.Categories[2].Name != stats.Uncategorized || s.Categories[2].Tasks[0].Task != "Clients" {
		t.Fatalf("uncategorized: %+v", s.Categories[2])
	}
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, emptyWindow(), nil); err != nil {
		t.Fatal(err)
	}
	var result jsonExport
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Intervals == nil || len(result.Intervals) != 0 {
		t.Fatal("intervals should be an empty array")
	}
	if len(result.Summary.Days) != 7 || result.Summary.Categories != nil {
		t.Fatalf("summary: %+v", result.Summary)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Fatal("JSON should be indented")
	}
}

func TestToJSONBadPath(t *testing.T) {
	if err := ToJSON(emptyWindow(), nil, "/nonexistent/dir/file.json"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

// ============================================================
// formatDuration (internal helper)
// ============================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		secs int64
		want string
	}{
		{0, "00:00:00"},
		{1, "00:00:01"},
		{60, "00:01:00"},
		{3600, "01:00:00"},
		{3661, "01:01:01"},
		{86400, "24:00:00"},
		{90061, "25:01:01"},
	}

	for _, tt := range tests {
		got := formatDuration(tt.secs)
		if got != tt.want {
			t.Fatalf("formatDuration(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}
