package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, source_ref, state, payload, attempts_json, failed_stage, last_error_kind, last_error_message, last_error_stage, last_error_at, next_attempt_at, last_heartbeat, created_at, updated_at"

// timeLayout is fixed width so lexical order in SQLite matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		id           string
		sourceRef    string
		stateStr     string
		payload      sql.NullString
		attemptsRaw  sql.NullString
		failedStage  sql.NullString
		errKind      sql.NullString
		errMessage   sql.NullString
		errStage     sql.NullString
		errAt        sql.NullString
		nextAttempt  sql.NullString
		heartbeatRaw sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&id,
		&sourceRef,
		&stateStr,
		&payload,
		&attemptsRaw,
		&failedStage,
		&errKind,
		&errMessage,
		&errStage,
		&errAt,
		&nextAttempt,
		&heartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:          id,
		SourceRef:   sourceRef,
		State:       State(stateStr),
		FailedStage: Stage(failedStage.String),
		Attempts:    map[Stage]int{},
		Artifacts:   map[string]string{},
	}
	if payload.Valid && payload.String != "" {
		job.Payload = json.RawMessage(payload.String)
	}
	if attemptsRaw.Valid && attemptsRaw.String != "" {
		if err := json.Unmarshal([]byte(attemptsRaw.String), &job.Attempts); err != nil {
			return nil, fmt.Errorf("decode attempts for job %s: %w", id, err)
		}
	}
	if errKind.Valid && errKind.String != "" {
		record := &ErrorRecord{
			Kind:    errKind.String,
			Message: errMessage.String,
			Stage:   Stage(errStage.String),
		}
		if at, err := parseTime(errAt.String); err == nil {
			record.At = at
		}
		job.LastError = record
	}
	job.NextAttemptAt = parseNullTime(nextAttempt)
	job.LastHeartbeat = parseNullTime(heartbeatRaw)
	if created, err := parseTime(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTime(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func loadArtifacts(ctx context.Context, q queryer, jobs ...*Job) error {
	if len(jobs) == 0 {
		return nil
	}
	byID := make(map[string]*Job, len(jobs))
	args := make([]any, 0, len(jobs))
	for _, job := range jobs {
		byID[job.ID] = job
		args = append(args, job.ID)
	}
	rows, err := q.QueryContext(ctx,
		`SELECT job_id, name, uri FROM job_artifacts WHERE job_id IN (`+makePlaceholders(len(args))+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("load artifacts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var jobID, name, uri string
		if err := rows.Scan(&jobID, &name, &uri); err != nil {
			return fmt.Errorf("scan artifact: %w", err)
		}
		if job, ok := byID[jobID]; ok {
			job.Artifacts[name] = uri
		}
	}
	return rows.Err()
}

func encodeAttempts(attempts map[Stage]int) (string, error) {
	if len(attempts) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(attempts)
	if err != nil {
		return "", fmt.Errorf("encode attempts: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
