package api

import (
	"time"

	"castreel/internal/queue"
	"castreel/internal/workflow"
)

// FromJob converts a queue job to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:          job.ID,
		SourceRef:   job.SourceRef,
		State:       string(job.State),
		FailedStage: string(job.FailedStage),
		Payload:     job.Payload,
	}
	if len(job.Attempts) > 0 {
		dto.Attempts = make(map[string]int, len(job.Attempts))
		for stage, n := range job.Attempts {
			if n > 0 {
				dto.Attempts[string(stage)] = n
			}
		}
	}
	if len(job.Artifacts) > 0 {
		dto.Artifacts = make(map[string]string, len(job.Artifacts))
		for name, uri := range job.Artifacts {
			dto.Artifacts[name] = uri
		}
	}
	if rec := job.LastError; rec != nil {
		dto.LastError = &ErrorInfo{
			Kind:    rec.Kind,
			Message: rec.Message,
			Stage:   string(rec.Stage),
			At:      formatTime(rec.At),
		}
	}
	if job.NextAttemptAt != nil {
		dto.NextAttemptAt = formatTime(*job.NextAttemptAt)
	}
	if job.LastHeartbeat != nil {
		dto.LastHeartbeat = formatTime(*job.LastHeartbeat)
	}
	dto.CreatedAt = formatTime(job.CreatedAt)
	dto.UpdatedAt = formatTime(job.UpdatedAt)
	return dto
}

// FromJobs converts a slice of queue jobs into API DTOs.
func FromJobs(jobs []*queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromStatusSummary converts workflow diagnostics into the API shape.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:   summary.Running,
		LastError: summary.LastError,
		JobStats:  statsToStrings(summary.JobStats),
		Stages:    make([]StageStatus, 0, len(summary.Stages)),
	}
	if summary.LastJob != nil {
		job := FromJob(summary.LastJob)
		job.Payload = nil
		status.LastJob = &job
	}
	for _, stage := range summary.Stages {
		status.Stages = append(status.Stages, StageStatus{
			Name:     stage.Name,
			Label:    stage.Label,
			Limit:    stage.Limit,
			InFlight: stage.InFlight,
			Health:   StageHealth{Ready: stage.Health.Ready, Detail: stage.Health.Detail},
		})
	}
	return status
}

// FromStats builds Metrics from per-state counts. Every state is present.
func FromStats(stats map[queue.State]int) Metrics {
	metrics := Metrics{Counts: statsToStrings(stats)}
	for _, state := range queue.AllStates {
		count := stats[state]
		metrics.Total += count
		switch {
		case state == queue.StatePublished:
			metrics.Published += count
		case state == queue.StateFailed:
			metrics.Failed += count
		case state.IsRunning():
			metrics.Running += count
		default:
			metrics.Waiting += count
		}
	}
	return metrics
}

func statsToStrings(stats map[queue.State]int) map[string]int {
	out := make(map[string]int, len(queue.AllStates))
	for _, state := range queue.AllStates {
		out[string(state)] = stats[state]
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
