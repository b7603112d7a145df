package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sadopc/deskwatch/internal/catalog"
)

// Uncategorized collects tasks that match no category keyword or are
// missing from the catalog.
const Uncategorized = "Uncategorized"

// Category buckets tasks whose catalog category contains Keyword,
// compared case-insensitively.
type Category struct {
	Name       string
	Keyword    string
	WeeklyGoal time.Duration
}

func DefaultCategories() []Category {
	return []Category{
		{Name: "Hacken", Keyword: "hacken", WeeklyGoal: 20 * time.Hour},
		{Name: "Hustle", Keyword: "hustle", WeeklyGoal: 10 * time.Hour},
	}
}

type Bucket struct {
	Name  string
	Goal  time.Duration
	Total time.Duration
	Tasks map[string]time.Duration
}

// GoalText describes how far the bucket is from its goal.
func (b Bucket) GoalText() string {
	if b.Goal <= 0 {
		return ""
	}
	if b.Total > b.Goal {
		return "exceeded by " + FormatDuration(b.Total-b.Goal)
	}
	return FormatDuration(b.Goal-b.Total) + " remaining"
}

// Percent is the share of the goal reached, uncapped.
func (b Bucket) Percent() float64 {
	if b.Goal <= 0 {
		return 0
	}
	return float64(b.Total) / float64(b.Goal) * 100
}

// SortedTasks returns the bucket's tasks, largest first.
func (b Bucket) SortedTasks() []TaskTotal {
	return sortTotals(b.Tasks)
}

type TaskTotal struct {
	Task  string
	Total time.Duration
}

// Rollup holds one bucket per category, in configuration order, followed
// by the Uncategorized bucket.
type Rollup struct {
	Buckets []Bucket
}

// Bucket returns the bucket called name.
func (r Rollup) Bucket(name string) (Bucket, bool) {
	for _, b := range r.Buckets {
		if b.Name == name {
			return b, true
		}
	}
	return Bucket{}, false
}

func (r Rollup) Total() time.Duration {
	var total time.Duration
	for _, b := range r.Buckets {
		total += b.Total
	}
	return total
}

// RollUp buckets every task total by its catalog category. Each task
// lands in exactly one bucket: the first category whose keyword its
// category contains, else Uncategorized.
func RollUp(tasks map[string]time.Duration, doc catalog.Document, categories []Category) Rollup {
	r := Rollup{Buckets: make([]Bucket, 0, len(categories)+1)}
	for _, c := range categories {
		r.Buckets = append(r.Buckets, Bucket{Name: c.Name, Goal: c.WeeklyGoal, Tasks: map[string]time.Duration{}})
	}
	r.Buckets = append(r.Buckets, Bucket{Name: Uncategorized, Tasks: map[string]time.Duration{}})
	other := len(r.Buckets) - 1

	for name, secs := range tasks {
		idx := other
		if t, ok := doc.Task(name); ok {
			category := strings.ToLower(t.Category)
			for i, c := range categories {
				kw := strings.ToLower(strings.TrimSpace(c.Keyword))
				if kw != "" && strings.Contains(category, kw) {
					idx = i
					break
				}
			}
		}
		r.Buckets[idx].Total += secs
		r.Buckets[idx].Tasks[name] += secs
	}
	return r
}

// TaskStat compares logged time for a task with its catalog entry.
type TaskStat struct {
	Task      string
	Actual    time.Duration
	Estimated string // display form
	Progress  string // "42.0%" or N/A
	Type      string
	Category  string
	Color     string
}

type SubtaskStat struct {
	Key       SubtaskKey
	Actual    time.Duration
	Estimated string
	Progress  string
	Status    string
	Type      string
	Category  string
	Color     string
}

const defaultColor = "#cccccc"

// TaskStats joins the window's totals with the catalog. Both lists are
// sorted by logged time, largest first.
func TaskStats(w Window, doc catalog.Document) ([]TaskStat, []SubtaskStat) {
	var tasks []TaskStat
	for _, tt := range sortTotals(w.Tasks) {
		st := TaskStat{
			Task: tt.Task, Actual: tt.Total,
			Estimated: catalog.NotAvailable, Progress: catalog.NotAvailable,
			Type: catalog.NotAvailable, Category: catalog.NotAvailable, Color: defaultColor,
		}
		if t, ok := doc.Task(tt.Task); ok {
			st.Type, st.Category = orNA(t.Type), orNA(t.Category)
			if t.Color != "" {
				st.Color = t.Color
			}
			st.Estimated = catalog.DisplayHours(t.EstimatedTime)
			st.Progress = progress(tt.Total, t.EstimatedTime)
		}
		tasks = append(tasks, st)
	}

	keys := make([]SubtaskKey, 0, len(w.Subtasks))
	for k := range w.Subtasks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := w.Subtasks[keys[i]], w.Subtasks[keys[j]]
		if a != b {
			return a > b
		}
		return keys[i].Label() < keys[j].Label()
	})

	var subtasks []SubtaskStat
	for _, k := range keys {
		actual := w.Subtasks[k]
		st := SubtaskStat{
			Key: k, Actual: actual,
			Estimated: catalog.NotAvailable, Progress: catalog.NotAvailable, Status: catalog.NotAvailable,
			Type: catalog.NotAvailable, Category: catalog.NotAvailable, Color: defaultColor,
		}
		if t, ok := doc.Task(k.Task); ok {
			st.Type, st.Category = orNA(t.Type), orNA(t.Category)
			if t.Color != "" {
				st.Color = t.Color
			}
			if sub, ok := t.Subtask(k.Subtask); ok {
				st.Status = orNA(string(sub.Status))
				st.Estimated = catalog.DisplayHours(sub.EstimatedTime)
				st.Progress = progress(actual, sub.EstimatedTime)
			}
		}
		subtasks = append(subtasks, st)
	}
	return tasks, subtasks
}

func progress(actual time.Duration, estimate string) string {
	h, ok := catalog.Hours(estimate)
	if !ok || h <= 0 {
		return catalog.NotAvailable
	}
	return fmt.Sprintf("%.1f%%", actual.Hours()/h*100)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return catalog.NotAvailable
	}
	return s
}

func sortTotals(m map[string]time.Duration) []TaskTotal {
	out := make([]TaskTotal, 0, len(m))
	for k, v := range m {
		out = append(out, TaskTotal{Task: k, Total: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Task < out[j].Task
	})
	return out
}
