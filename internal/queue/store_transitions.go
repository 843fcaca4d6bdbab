package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// TransitionOption adjusts the row written by Transition.
type TransitionOption func(*transitionChange)

type transitionChange struct {
	artifactName string
	artifactURI  string
	errRecord    *ErrorRecord
	attempts     map[Stage]int
	nextAttempt  *time.Time
}

// WithArtifact records a write-once artifact alongside the transition.
func WithArtifact(name, uri string) TransitionOption {
	return func(c *transitionChange) {
		c.artifactName = strings.TrimSpace(name)
		c.artifactURI = strings.TrimSpace(uri)
	}
}

// WithError stores rec as the job's last error.
func WithError(rec ErrorRecord) TransitionOption {
	return func(c *transitionChange) {
		r := rec
		c.errRecord = &r
	}
}

// WithAttempts sets the attempt counter for stage.
func WithAttempts(stage Stage, n int) TransitionOption {
	return func(c *transitionChange) {
		if c.attempts == nil {
			c.attempts = make(map[Stage]int)
		}
		if n < 0 {
			n = 0
		}
		c.attempts[stage] = n
	}
}

// WithNextAttemptAt holds the job back from dispatch until t.
func WithNextAttemptAt(t time.Time) TransitionOption {
	return func(c *transitionChange) {
		at := t.UTC()
		c.nextAttempt = &at
	}
}

// legalStage returns the stage that owns the move from -> to for job.
func legalStage(job *Job, from, to State) (StageSpec, bool) {
	for _, spec := range Stages {
		switch {
		case from == spec.Ready && to == spec.Running:
			return spec, true
		case from == spec.Running && (to == spec.Done || to == spec.Ready || to == StateFailed):
			return spec, true
		case from == StateFailed && to == spec.Ready && job.FailedStage == spec.Stage:
			return spec, true
		}
	}
	return StageSpec{}, false
}

// Transition moves job id from expected to next. It fails with ErrStaleState
// without touching the row when the stored state differs from expected.
func (s *Store) Transition(ctx context.Context, id string, expected, next State, opts ...TransitionOption) (*Job, error) {
	change := &transitionChange{}
	for _, opt := range opts {
		if opt != nil {
			opt(change)
		}
	}

	var updated *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		job, err := getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if job.State != expected {
			return fmt.Errorf("%w: job %s is %s, expected %s", ErrStaleState, id, job.State, expected)
		}
		spec, ok := legalStage(job, expected, next)
		if !ok {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, expected, next)
		}

		now := s.now().UTC()
		if now.Before(job.UpdatedAt) {
			now = job.UpdatedAt
		}
		applyImplicit(job, spec, expected, next, now)
		if change.errRecord != nil {
			rec := *change.errRecord
			if rec.At.IsZero() {
				rec.At = now
			}
			if rec.Stage == "" {
				rec.Stage = spec.Stage
			}
			job.LastError = &rec
		}
		for stage, n := range change.attempts {
			job.Attempts[stage] = n
		}
		if change.nextAttempt != nil {
			job.NextAttemptAt = change.nextAttempt
		}
		job.State = next
		job.UpdatedAt = now

		if change.artifactName != "" {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO job_artifacts (job_id, name, uri, created_at) VALUES (?, ?, ?, ?)`,
				id, change.artifactName, change.artifactURI, formatTime(now),
			); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: job %s %s", ErrArtifactExists, id, change.artifactName)
				}
				return fmt.Errorf("record artifact: %w", err)
			}
		}

		if err := writeJob(ctx, tx, job, expected); err != nil {
			return err
		}
		updated, err = getJob(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// applyImplicit sets the fields every transition of a given shape implies.
func applyImplicit(job *Job, spec StageSpec, from, to State, now time.Time) {
	switch {
	case to == spec.Running:
		job.LastHeartbeat = &now
		job.NextAttemptAt = nil
	case from == spec.Running && to == spec.Done:
		job.LastHeartbeat = nil
		job.NextAttemptAt = nil
		job.LastError = nil
		job.FailedStage = ""
		job.Attempts[spec.Stage] = 0
	case from == spec.Running && to == spec.Ready:
		job.LastHeartbeat = nil
	case from == spec.Running && to == StateFailed:
		job.LastHeartbeat = nil
		job.NextAttemptAt = nil
		job.FailedStage = spec.Stage
	case from == StateFailed:
		job.LastError = nil
		job.NextAttemptAt = nil
		job.FailedStage = ""
		job.Attempts[spec.Stage] = 0
	}
}

func writeJob(ctx context.Context, tx *sql.Tx, job *Job, expected State) error {
	attempts, err := encodeAttempts(job.Attempts)
	if err != nil {
		return err
	}
	var errKind, errMessage, errStage, errAt any
	if job.LastError != nil {
		errKind = job.LastError.Kind
		errMessage = job.LastError.Message
		errStage = nullableString(string(job.LastError.Stage))
		errAt = formatTime(job.LastError.At)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE jobs
         SET state = ?, attempts_json = ?, failed_stage = ?,
             last_error_kind = ?, last_error_message = ?, last_error_stage = ?, last_error_at = ?,
             next_attempt_at = ?, last_heartbeat = ?, updated_at = MAX(updated_at, ?)
         WHERE id = ? AND state = ?`,
		job.State, attempts, nullableString(string(job.FailedStage)),
		errKind, errMessage, errStage, errAt,
		nullableTime(job.NextAttemptAt), nullableTime(job.LastHeartbeat), formatTime(job.UpdatedAt),
		job.ID, expected,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateSourceRef, job.SourceRef)
		}
		return fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: job %s moved during update", ErrStaleState, job.ID)
	}
	return nil
}

// Retry returns a failed job to the precondition state of the stage that
// failed, with that stage's attempts reset.
func (s *Store) Retry(ctx context.Context, id string) (*Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State != StateFailed {
		return nil, fmt.Errorf("%w: job %s is %s, expected %s", ErrStaleState, id, job.State, StateFailed)
	}
	spec, ok := LookupStage(job.FailedStage)
	if !ok {
		return nil, fmt.Errorf("%w: job %s has no failed stage", ErrIllegalTransition, id)
	}
	return s.Transition(ctx, id, StateFailed, spec.Ready)
}
