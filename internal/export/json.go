package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sadopc/deskwatch/internal/dailylog"
	"github.com/sadopc/deskwatch/internal/stats"
)

type jsonExport struct {
	ExportedAt string         `json:"exported_at"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Summary    jsonSummary    `json:"summary"`
	Intervals  []jsonInterval `json:"intervals"`
}

type jsonSummary struct {
	TotalSec   int64          `json:"total_seconds"`
	Days       []jsonDay      `json:"days"`
	Tasks      []jsonTotal    `json:"tasks"`
	Categories []jsonCategory `json:"categories,omitempty"`
}

type jsonDay struct {
	Date       string `json:"date"`
	TotalSec   int64  `json:"total_seconds"`
	Total      string `json:"total"`
	FirstStart string `json:"first_start,omitempty"`
}

type jsonTotal struct {
	Task     string `json:"task"`
	TotalSec int64  `json:"total_seconds"`
}

type jsonCategory struct {
	Name     string      `json:"name"`
	TotalSec int64       `json:"total_seconds"`
	GoalSec  int64       `json:"goal_seconds,omitempty"`
	Goal     string      `json:"goal,omitempty"`
	Tasks    []jsonTotal `json:"tasks"`
}

type jsonInterval struct {
	Date        string `json:"date"`
	Task        string `json:"task,omitempty"`
	Subtask     string `json:"subtask,omitempty"`
	Block       int    `json:"block"`
	Start       string `json:"start"`
	Stop        string `json:"stop"`
	DurationSec int64  `json:"duration_seconds"`
	Duration    string `json:"duration"`
}

// ToJSON writes the window's intervals and summary to path. roll may be
// nil to leave out the category breakdown.
func ToJSON(w stats.Window, roll *stats.Rollup, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	defer f.Close()
	if err := WriteJSON(f, w, roll); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

func WriteJSON(out io.Writer, w stats.Window, roll *stats.Rollup) error {
	export := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		From:       w.Start.Format("2006-01-02"),
		To:         w.End().AddDate(0, 0, -1).Format("2006-01-02"),
		Summary: jsonSummary{
			TotalSec: seconds(w.Total()),
			Days:     []jsonDay{},
			Tasks:    []jsonTotal{},
		},
		Intervals: []jsonInterval{},
	}

	for _, d := range w.Days {
		date := d.Date.Format("2006-01-02")
		export.Summary.Days = append(export.Summary.Days, jsonDay{
			Date:       date,
			TotalSec:   seconds(d.Total),
			Total:      formatDuration(seconds(d.Total)),
			FirstStart: d.FirstStart(),
		})
		for _, iv := range d.Intervals {
			export.Intervals = append(export.Intervals, jsonInterval{
				Date:        date,
				Task:        iv.Task,
				Subtask:     iv.Subtask,
				Block:       iv.Block,
				Start:       dailylog.FormatClock(iv.Start),
				Stop:        dailylog.FormatClock(iv.Stop),
				DurationSec: seconds(iv.Duration),
				Duration:    formatDuration(seconds(iv.Duration)),
			})
		}
	}

	totals := stats.Bucket{Tasks: w.Tasks}.SortedTasks()
	for _, tt := range totals {
		export.Summary.Tasks = append(export.Summary.Tasks, jsonTotal{Task: tt.Task, TotalSec: seconds(tt.Total)})
	}

	if roll != nil {
		for _, b := range roll.Buckets {
			c := jsonCategory{
				Name:     b.Name,
				TotalSec: seconds(b.Total),
				GoalSec:  seconds(b.Goal),
				Goal:     b.GoalText(),
				Tasks:    []jsonTotal{},
			}
			for _, tt := range b.SortedTasks() {
				c.Tasks = append(c.Tasks, jsonTotal{Task: tt.Task, TotalSec: seconds(tt.Total)})
			}
			export.Summary.Categories = append(export.Summary.Categories, c)
		}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	_, err = out.Write(append(data, '\n'))
	return err
}

func seconds(d time.Duration) int64 {
	return int64(d.Seconds())
}
