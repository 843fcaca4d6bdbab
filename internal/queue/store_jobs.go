package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Create inserts a new job in the ingested state.
func (s *Store) Create(ctx context.Context, sourceRef string, payload json.RawMessage) (*Job, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return nil, errors.New("source_ref is required")
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, errors.New("payload is not valid JSON")
	}
	now := s.now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		SourceRef: sourceRef,
		State:     StateIngested,
		Payload:   payload,
		Attempts:  map[Stage]int{},
		Artifacts: map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	var payloadArg any
	if len(payload) > 0 {
		payloadArg = string(payload)
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (id, source_ref, state, payload, attempts_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, '{}', ?, ?)`,
		job.ID, job.SourceRef, job.State, payloadArg, formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSourceRef, sourceRef)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	return getJob(ctx, s.db, id)
}

func getJob(ctx context.Context, q queryer, id string) (*Job, error) {
	row := q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := loadArtifacts(ctx, q, job); err != nil {
		return nil, err
	}
	return job, nil
}

// FindActiveBySourceRef returns the non-failed job holding sourceRef, or nil.
func (s *Store) FindActiveBySourceRef(ctx context.Context, sourceRef string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE source_ref = ? AND state != ? LIMIT 1`,
		sourceRef, StateFailed)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find job by source_ref: %w", err)
	}
	if err := loadArtifacts(ctx, s.db, job); err != nil {
		return nil, err
	}
	return job, nil
}

// LatestBySourceRef returns the most recently created job for sourceRef in
// any state, or nil when the reference has never been ingested.
func (s *Store) LatestBySourceRef(ctx context.Context, sourceRef string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE source_ref = ?
         ORDER BY created_at DESC, id DESC LIMIT 1`,
		sourceRef)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest job by source_ref: %w", err)
	}
	if err := loadArtifacts(ctx, s.db, job); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns jobs in the given states ordered by updated_at then id.
// With no states it returns every job.
func (s *Store) List(ctx context.Context, states ...State) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state IN (` + makePlaceholders(len(states)) + `)`
		for _, st := range states {
			args = append(args, st)
		}
	}
	query += ` ORDER BY updated_at ASC, id ASC`
	return s.queryJobs(ctx, query, args...)
}

// ListReady returns up to limit jobs in state whose backoff has elapsed at now,
// oldest updated_at first.
func (s *Store) ListReady(ctx context.Context, state State, now time.Time, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE state = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
         ORDER BY updated_at ASC, id ASC
         LIMIT ?`,
		state, formatTime(now), limit,
	)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var jobs []*Job
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// The single pooled connection must be free before loading artifacts.
	rows.Close()
	if err := loadArtifacts(ctx, s.db, jobs...); err != nil {
		return nil, err
	}
	return jobs, nil
}
