// Package calendar turns calendar events into catalog tasks.
package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var ErrBadEvent = errors.New("calendar: bad event")

// Event is a single calendar entry. All-day events carry midnight of
// their first day in Start and midnight after their last day in End.
type Event struct {
	Summary     string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Location    string
	Description string
}

// Duration is the estimate an event contributes: eight hours for an
// all-day event, else its length rounded to a tenth of an hour.
func (e Event) Duration() float64 {
	if e.AllDay {
		return 8
	}
	h := e.End.Sub(e.Start).Hours()
	if h < 0 {
		h = 0
	}
	return math.Round(h*10) / 10
}

// Label names the event's time range in the viewer's time zone.
func (e Event) Label(loc *time.Location) string {
	if e.AllDay {
		return "All day on " + e.Start.Format(dateLayout)
	}
	start, end := e.Start.In(loc), e.End.In(loc)
	if sameDay(start, end) {
		return start.Format("02.01.2006 15:04") + " - " + end.Format("15:04")
	}
	return start.Format("02.01.2006 15:04") + " - " + end.Format("02.01.2006 15:04")
}

func (e Event) overlaps(from, to time.Time) bool {
	end := e.End
	if end.IsZero() || end.Before(e.Start) {
		end = e.Start
	}
	return e.Start.Before(to) && !end.Before(from)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Source lists the events between from and to.
type Source interface {
	Events(ctx context.Context, from, to time.Time) ([]Event, error)
}

type eventJSON struct {
	Summary     string `json:"summary"`
	Start       string `json:"start"`
	End         string `json:"end"`
	AllDay      bool   `json:"all_day"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// FileSource reads events from a JSON array of
// {summary, start, end, all_day, location, description} objects. Timed
// events use RFC 3339 times; all-day events use YYYY-MM-DD dates.
type FileSource struct {
	Path string
	// Location interprets all-day dates. Defaults to time.Local.
	Location *time.Location
}

func (s FileSource) Events(ctx context.Context, from, to time.Time) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	var raw []eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode events %s: %w", s.Path, err)
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	var out []Event
	for i, r := range raw {
		e, err := r.event(loc)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if e.overlaps(from, to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r eventJSON) event(loc *time.Location) (Event, error) {
	e := Event{
		Summary:     strings.TrimSpace(r.Summary),
		AllDay:      r.AllDay,
		Location:    r.Location,
		Description: r.Description,
	}
	if e.Summary == "" {
		return e, fmt.Errorf("%w: no summary", ErrBadEvent)
	}
	var err error
	if r.AllDay {
		if e.Start, err = time.ParseInLocation(dateLayout, r.Start, loc); err != nil {
			return e, fmt.Errorf("%w: start %q", ErrBadEvent, r.Start)
		}
		e.End = e.Start.AddDate(0, 0, 1)
		if r.End != "" {
			if e.End, err = time.ParseInLocation(dateLayout, r.End, loc); err != nil {
				return e, fmt.Errorf("%w: end %q", ErrBadEvent, r.End)
			}
		}
		return e, nil
	}
	if e.Start, err = time.Parse(time.RFC3339, r.Start); err != nil {
		return e, fmt.Errorf("%w: start %q", ErrBadEvent, r.Start)
	}
	if e.End, err = time.Parse(time.RFC3339, r.End); err != nil {
		return e, fmt.Errorf("%w: end %q", ErrBadEvent, r.End)
	}
	if e.End.Before(e.Start) {
		return e, fmt.Errorf("%w: %q ends before it starts", ErrBadEvent, e.Summary)
	}
	return e, nil
}
