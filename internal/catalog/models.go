package catalog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrSubtaskNotFound  = errors.New("subtask not found")
	ErrDuplicateTask    = errors.New("task already exists")
	ErrDuplicateSubtask = errors.New("subtask already exists")
	ErrInvalidHours     = errors.New("invalid hours")
	ErrEmptyName        = errors.New("name must not be empty")
)

type Status string

const (
	Pending    Status = "Pending"
	InProgress Status = "In Progress"
	Completed  Status = "Completed"
)

var Statuses = []Status{Pending, InProgress, Completed}

// Next returns the status that follows s in the Pending, In Progress,
// Completed cycle. Unknown values restart the cycle.
func (s Status) Next() Status {
	switch s {
	case Pending:
		return InProgress
	case InProgress:
		return Completed
	default:
		return Pending
	}
}

func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Task types offered when adding a task. Any other string is kept as is.
var TaskTypes = []string{"Digital", "Analog", "Meeting", "Appointment"}

// NotAvailable is stored and shown for times that were never entered.
const NotAvailable = "N/A"

// Times are kept as strings in hours, so legacy values that are not
// numbers survive a round trip.
type Subtask struct {
	Name          string `json:"subtask"`
	Status        Status `json:"status"`
	EstimatedTime string `json:"estimated_time"`
	ActualTime    string `json:"actual_time"`
}

type Task struct {
	Name          string    `json:"task"`
	Type          string    `json:"type"`
	Category      string    `json:"category"`
	EstimatedTime string    `json:"estimated_time"`
	ActualTime    string    `json:"actual_time"`
	Color         string    `json:"color,omitempty"`
	Source        string    `json:"source,omitempty"` // import batch label
	Subtasks      []Subtask `json:"subtasks"`
}

// Subtask returns the subtask called name.
func (t *Task) Subtask(name string) (*Subtask, bool) {
	for i := range t.Subtasks {
		if t.Subtasks[i].Name == name {
			return &t.Subtasks[i], true
		}
	}
	return nil, false
}

// Document is the whole catalog file.
type Document struct {
	Tasks []Task `json:"tasks"`
}

// Task returns the task called name.
func (d *Document) Task(name string) (*Task, bool) {
	for i := range d.Tasks {
		if d.Tasks[i].Name == name {
			return &d.Tasks[i], true
		}
	}
	return nil, false
}

// CurrentTask returns the last In Progress subtask in document order.
func (d *Document) CurrentTask() (task, subtask string, ok bool) {
	for _, t := range d.Tasks {
		for _, st := range t.Subtasks {
			if st.Status == InProgress {
				task, subtask, ok = t.Name, st.Name, true
			}
		}
	}
	return task, subtask, ok
}

// normalize fills the fields that must never be null or empty on disk.
func (d *Document) normalize() {
	if d.Tasks == nil {
		d.Tasks = []Task{}
	}
	for i := range d.Tasks {
		if d.Tasks[i].Subtasks == nil {
			d.Tasks[i].Subtasks = []Subtask{}
		}
	}
}

// ParseHours validates user input for a time in hours. Blank input means
// "not estimated" and yields NotAvailable.
func ParseHours(s string) (string, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "h"))
	if s == "" {
		return NotAvailable, nil
	}
	h, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(h) || math.IsInf(h, 0) || h < 0 || h > 1000 {
		return "", fmt.Errorf("%w: %q", ErrInvalidHours, s)
	}
	return FormatHours(h), nil
}

// FormatHours renders h the way the catalog stores it.
func FormatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', 2, 64)
}

// Hours reads a stored time. Legacy values may carry an "h" suffix.
func Hours(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "h"))
	if s == "" || s == NotAvailable {
		return 0, false
	}
	h, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(h) || math.IsInf(h, 0) {
		return 0, false
	}
	return h, true
}

// DisplayHours renders a stored time as "2h 30m". Missing values show as
// N/A and values that are not numbers are shown unchanged.
func DisplayHours(s string) string {
	h, ok := Hours(s)
	if !ok {
		if strings.TrimSpace(s) == "" {
			return NotAvailable
		}
		return s
	}
	whole := int(h)
	return fmt.Sprintf("%dh %dm", whole, int((h-float64(whole))*60))
}
