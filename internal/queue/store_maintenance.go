package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// DatabaseHealth describes the on-disk queue database for diagnostics.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// Stats returns job counts for every state, including zero counts.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	stats := make(map[State]int, len(AllStates))
	for _, st := range AllStates {
		stats[st] = 0
	}
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Health groups job counts into waiting, running, and terminal buckets.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	var health HealthSummary
	for state, count := range stats {
		health.Total += count
		switch {
		case state == StatePublished:
			health.Published += count
		case state == StateFailed:
			health.Failed += count
		case state.IsRunning():
			health.Running += count
		default:
			health.Waiting += count
		}
	}
	return health, nil
}

// CheckHealth inspects the database file and runs an integrity check.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM jobs").Scan(&health.TotalJobs); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count jobs: %w", err)
	}
	var result string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&result); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(result, "ok")
	return health, nil
}

// reclaimSet builds the SET clause that moves every running state back to its
// precondition state and refunds the attempt charged when the job was claimed.
func reclaimSet() (string, []any) {
	var state, attempts strings.Builder
	args := make([]any, 0, len(Stages)*5)
	state.WriteString("state = CASE state")
	for _, spec := range Stages {
		state.WriteString(" WHEN ? THEN ?")
		args = append(args, spec.Running, spec.Ready)
	}
	state.WriteString(" ELSE state END")
	attempts.WriteString("attempts_json = CASE state")
	for _, spec := range Stages {
		path := "$." + string(spec.Stage)
		attempts.WriteString(" WHEN ? THEN json_set(attempts_json, ?, MAX(COALESCE(json_extract(attempts_json, ?), 0) - 1, 0))")
		args = append(args, spec.Running, path, path)
	}
	attempts.WriteString(" ELSE attempts_json END")
	return state.String() + ",\n             " + attempts.String(), args
}

func runningStates() []any {
	out := make([]any, 0, len(Stages))
	for _, spec := range Stages {
		out = append(out, spec.Running)
	}
	return out
}

// ResetInProgress moves jobs left in an in-progress state back to their
// precondition state without charging the interrupted attempt. The daemon
// calls it once at startup.
func (s *Store) ResetInProgress(ctx context.Context) (int64, error) {
	setExpr, args := reclaimSet()
	running := runningStates()
	args = append(args, formatTime(s.now()))
	args = append(args, running...)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET `+setExpr+`,
             last_heartbeat = NULL, updated_at = MAX(updated_at, ?)
         WHERE state IN (`+makePlaceholders(len(running))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reset in-progress jobs: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat refreshes last_heartbeat for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	running := runningStates()
	args := append([]any{formatTime(s.now()), id}, running...)
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET last_heartbeat = ? WHERE id = ? AND state IN (`+makePlaceholders(len(running))+`)`,
		args...,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale returns in-flight jobs whose heartbeat is older than cutoff to
// their precondition state. The claimed attempt is refunded as in
// ResetInProgress.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	setExpr, args := reclaimSet()
	running := runningStates()
	args = append(args, formatTime(s.now()))
	args = append(args, running...)
	args = append(args, formatTime(cutoff))
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET `+setExpr+`,
             last_heartbeat = NULL, updated_at = MAX(updated_at, ?)
         WHERE state IN (`+makePlaceholders(len(running))+`)
           AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// GetCursor returns the persisted cursor for feed, or "" when none is stored.
func (s *Store) GetCursor(ctx context.Context, feed string) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx, `SELECT cursor FROM feed_cursors WHERE feed = ?`, feed).Scan(&cursor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get feed cursor: %w", err)
	}
	return cursor, nil
}

// SetCursor persists the cursor for feed. An empty cursor clears it.
func (s *Store) SetCursor(ctx context.Context, feed, cursor string) error {
	if cursor == "" {
		if _, err := s.execWithRetry(ctx, `DELETE FROM feed_cursors WHERE feed = ?`, feed); err != nil {
			return fmt.Errorf("clear feed cursor: %w", err)
		}
		return nil
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO feed_cursors (feed, cursor, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(feed) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at`,
		feed, cursor, formatTime(s.now()),
	); err != nil {
		return fmt.Errorf("set feed cursor: %w", err)
	}
	return nil
}
