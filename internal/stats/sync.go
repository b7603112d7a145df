package stats

import (
	"sort"
	"time"

	"github.com/sadopc/deskwatch/internal/catalog"
)

// SyncResult reports what SyncActualTimes changed.
type SyncResult struct {
	Updated []SubtaskKey
	Missing []SubtaskKey // logged pairs with no matching subtask
}

// SyncActualTimes overwrites the actual_time of every catalog subtask that
// has logged time in totals with that time in hours. Values typed in by
// hand are lost. Subtasks without logged time are left alone.
func SyncActualTimes(store *catalog.Store, totals map[SubtaskKey]time.Duration) (SyncResult, error) {
	var res SyncResult
	err := store.Update(func(doc *catalog.Document) error {
		res = SyncResult{}
		for _, k := range sortedKeys(totals) {
			if k.Subtask == "" {
				continue
			}
			t, ok := doc.Task(k.Task)
			if !ok {
				res.Missing = append(res.Missing, k)
				continue
			}
			st, ok := t.Subtask(k.Subtask)
			if !ok {
				res.Missing = append(res.Missing, k)
				continue
			}
			st.ActualTime = catalog.FormatHours(totals[k].Hours())
			res.Updated = append(res.Updated, k)
		}
		return nil
	})
	return res, err
}

func sortedKeys(m map[SubtaskKey]time.Duration) []SubtaskKey {
	keys := make([]SubtaskKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Label() < keys[j].Label() })
	return keys
}
