package store

import (
	"database/sql"
	"fmt"
	"time"
)

// StartSession records a session that has just started.
func (s *Store) StartSession(id string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		id, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

// EndSession closes a session with the number of completed blocks and
// its total active time.
func (s *Store) EndSession(id string, at time.Time, blocks int, active time.Duration) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, blocks = ?, active_seconds = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), blocks, int64(active.Seconds()), id,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, started_at, ended_at, blocks, active_seconds FROM sessions WHERE id = ?`, id,
	)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns the sessions started in [from, to), newest first.
func (s *Store) ListSessions(from, to time.Time) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, ended_at, blocks, active_seconds FROM sessions
		 WHERE started_at >= ? AND started_at < ?
		 ORDER BY started_at DESC`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// GetSessionStats sums the finished sessions started in [from, to).
func (s *Store) GetSessionStats(from, to time.Time) (SessionStats, error) {
	var st SessionStats
	var secs int64
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(blocks), 0), COALESCE(SUM(active_seconds), 0)
		FROM sessions
		WHERE ended_at IS NOT NULL
		  AND started_at >= ? AND started_at < ?`,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339),
	).Scan(&st.Sessions, &st.Blocks, &secs)
	if err != nil {
		return st, fmt.Errorf("session stats: %w", err)
	}
	st.Active = time.Duration(secs) * time.Second
	return st, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*Session, error) {
	sess := &Session{}
	var startedAt string
	var endedAt sql.NullString
	var secs int64
	if err := sc.Scan(&sess.ID, &startedAt, &endedAt, &sess.Blocks, &secs); err != nil {
		return nil, err
	}
	sess.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if endedAt.Valid {
		t, _ := time.Parse(time.RFC3339, endedAt.String)
		sess.EndedAt = &t
	}
	sess.Active = time.Duration(secs) * time.Second
	return sess, nil
}
