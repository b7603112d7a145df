package dailylog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileDateLayout names one log file per local calendar day (DD-MM-YY.csv).
const FileDateLayout = "02-01-06"

var ErrNotInitialized = errors.New("dailylog: store not initialized")

// Store is the append-only per-day CSV log. One process writes, any number
// of readers may read concurrently.
type Store struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex

	// OnMalformed, if set, receives every row a read had to skip or degrade.
	OnMalformed func(day time.Time, err *ParseError)
}

// New opens (or creates) the log directory.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("open log store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the directory holding the log files.
func (s *Store) Dir() string { return s.dir }

// Path returns the file that holds the rows for day.
func (s *Store) Path(day time.Time) string {
	return filepath.Join(s.dir, day.Format(FileDateLayout)+".csv")
}

// Append writes row to the file of the day at falls on, stamping row.Time
// with at's wall clock. The header is written when the file is new.
func (s *Store) Append(at time.Time, row Row) error {
	if s == nil || s.dir == "" {
		return ErrNotInitialized
	}
	row.Time = ClockOf(at)
	row.Malformed = false

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(at)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat log %s: %w", filepath.Base(path), err)
	}

	// Build the whole write up front so the line lands in one syscall.
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return err
		}
	}
	if err := w.Write(row.Record()); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append log %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadDay returns the rows written on day in write order. A missing file is
// an empty day. Rows with an unusable time are dropped; rows with unusable
// flags are kept as Malformed stop markers.
func (s *Store) ReadDay(day time.Time) ([]Row, error) {
	if s == nil || s.dir == "" {
		return nil, ErrNotInitialized
	}
	f, err := os.Open(s.Path(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log %s: %w", day.Format(FileDateLayout), err)
	}
	defer f.Close()

	return s.read(f, day)
}

func (s *Store) read(r io.Reader, day time.Time) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := newColumns(header)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			s.report(day, pe)
		}
		return nil, nil
	}

	var rows []Row
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				s.report(day, &ParseError{Line: csvErr.Line, Field: "record", Err: csvErr.Err})
				continue
			}
			return rows, fmt.Errorf("read log %s: %w", day.Format(FileDateLayout), err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		row, err := cols.parseRecord(line, rec)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				s.report(day, pe)
			}
			if !row.Malformed {
				continue
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Store) report(day time.Time, pe *ParseError) {
	s.logger.Warn("malformed log row",
		"day", day.Format(FileDateLayout),
		"line", pe.Line,
		"field", pe.Field,
		"value", pe.Value,
		"err", pe.Err,
	)
	if s.OnMalformed != nil {
		s.OnMalformed(day, pe)
	}
}

// ListDatesInRange returns the days between start and end (inclusive, by
// calendar date) that have a log file, oldest first.
func (s *Store) ListDatesInRange(start, end time.Time) ([]time.Time, error) {
	if s == nil || s.dir == "" {
		return nil, ErrNotInitialized
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list logs: %w", err)
	}

	from := truncateDay(start)
	to := truncateDay(end)
	loc := start.Location()

	var dates []time.Time
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		d, err := time.ParseInLocation(FileDateLayout, strings.TrimSuffix(name, ".csv"), loc)
		if err != nil {
			continue
		}
		if d.Before(from) || d.After(to) {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// line is one record of a log file as read for rewriting.
type line struct {
	rec   []string
	row   Row
	timed bool
}

// Insert merges rows into the log of day in time order and rewrites the
// file atomically. Existing records keep their order; each new row goes in
// front of the first record stamped later than it. A row equal to one
// already in the file is skipped. Insert returns the number of rows
// written.
func (s *Store) Insert(day time.Time, rows []Row) (int, error) {
	if s == nil || s.dir == "" {
		return 0, ErrNotInitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(day)
	header, lines, err := readLines(path)
	if err != nil {
		return 0, err
	}
	cols, err := newColumns(header)
	if err != nil {
		return 0, fmt.Errorf("insert into log %s: %w", filepath.Base(path), err)
	}

	added := 0
	for _, r := range rows {
		r.Malformed = false
		if containsRow(lines, r) {
			continue
		}
		at := len(lines)
		for i, l := range lines {
			if l.timed && l.row.Time > r.Time {
				at = i
				break
			}
		}
		l := line{rec: cols.render(len(header), r), row: r, timed: true}
		lines = append(lines[:at], append([]line{l}, lines[at:]...)...)
		added++
	}
	if added == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return 0, err
	}
	for _, l := range lines {
		if err := w.Write(l.rec); err != nil {
			return 0, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("write log %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("replace log %s: %w", filepath.Base(path), err)
	}
	return added, nil
}

// readLines loads every record of the file at path. A missing or empty
// file yields the standard header. A file the CSV reader cannot split is
// an error so that it is never rewritten.
func readLines(path string) ([]string, []line, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Header, nil, nil
		}
		return nil, nil, fmt.Errorf("open log %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return Header, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read log %s: %w", filepath.Base(path), err)
	}
	cols, err := newColumns(header)
	if err != nil {
		return nil, nil, fmt.Errorf("read log %s: %w", filepath.Base(path), err)
	}

	var lines []line
	n := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		n++
		if err != nil {
			return nil, nil, fmt.Errorf("read log %s: %w", filepath.Base(path), err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		row, err := cols.parseRecord(n, rec)
		lines = append(lines, line{rec: rec, row: row, timed: err == nil || row.Malformed})
	}
	return header, lines, nil
}

func containsRow(lines []line, r Row) bool {
	for _, l := range lines {
		if l.timed && !l.row.Malformed && l.row == r {
			return true
		}
	}
	return false
}
