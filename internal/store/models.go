package store

import "time"

// Session is one run of the tracker from start to end.
type Session struct {
	ID        string
	StartedAt time.Time
	EndedAt   *time.Time
	Blocks    int
	Active    time.Duration
}

type Setting struct {
	Key   string
	Value string
}

// SessionStats sums the finished sessions of a period.
type SessionStats struct {
	Sessions int
	Blocks   int
	Active   time.Duration
}
