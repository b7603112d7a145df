package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sadopc/deskwatch/internal/dailylog"
	"github.com/sadopc/deskwatch/internal/stats"
)

var intervalHeader = []string{"Date", "Task", "Subtask", "Block", "Start", "Stop", "Duration (s)", "Duration"}

// ToCSV writes every reconstructed interval of the window to path.
func ToCSV(w stats.Window, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()
	return WriteCSV(f, w)
}

func WriteCSV(out io.Writer, w stats.Window) error {
	cw := csv.NewWriter(out)

	if err := cw.Write(intervalHeader); err != nil {
		return err
	}

	for _, d := range w.Days {
		date := d.Date.Format("2006-01-02")
		for _, iv := range d.Intervals {
			row := []string{
				date,
				iv.Task,
				iv.Subtask,
				strconv.Itoa(iv.Block),
				dailylog.FormatClock(iv.Start),
				dailylog.FormatClock(iv.Stop),
				strconv.FormatInt(int64(iv.Duration.Seconds()), 10),
				formatDuration(int64(iv.Duration.Seconds())),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatDuration(secs int64) string {
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
