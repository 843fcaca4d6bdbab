package api

import (
	"testing"
	"time"

	"castreel/internal/queue"
	"castreel/internal/stage"
	"castreel/internal/workflow"
)

func TestFromJobCopiesFields(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	job := &queue.Job{
		ID:          "job-1",
		SourceRef:   "cast:42",
		State:       queue.StateFailed,
		Attempts:    map[queue.Stage]int{queue.StageGenerate: 3, queue.StageTranscribe: 0},
		FailedStage: queue.StageGenerate,
		LastError:   &queue.ErrorRecord{Kind: "retry_exhausted", Message: "503", Stage: queue.StageGenerate, At: at},
		Artifacts:   map[string]string{queue.ArtifactTranscript: "t:42"},
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	dto := FromJob(job)
	if dto.State != "failed" || dto.FailedStage != "generate" {
		t.Fatalf("unexpected state fields: %+v", dto)
	}
	if len(dto.Attempts) != 1 || dto.Attempts["generate"] != 3 {
		t.Fatalf("expected only non-zero attempts, got %v", dto.Attempts)
	}
	if dto.LastError == nil || dto.LastError.Kind != "retry_exhausted" || dto.LastError.At != "2026-03-04T05:06:07.000Z" {
		t.Fatalf("unexpected error info: %+v", dto.LastError)
	}
	if dto.Artifacts["transcript"] != "t:42" {
		t.Fatalf("unexpected artifacts: %v", dto.Artifacts)
	}
	if dto.NextAttemptAt != "" || dto.LastHeartbeat != "" {
		t.Fatalf("expected empty optional times, got %q %q", dto.NextAttemptAt, dto.LastHeartbeat)
	}
}

func TestFromStatsIncludesEveryState(t *testing.T) {
	metrics := FromStats(map[queue.State]int{
		queue.StateIngested:   2,
		queue.StateGenerating: 1,
		queue.StatePublished:  4,
		queue.StateFailed:     1,
	})
	if len(metrics.Counts) != len(queue.AllStates) {
		t.Fatalf("expected %d states, got %d", len(queue.AllStates), len(metrics.Counts))
	}
	if metrics.Total != 8 || metrics.Waiting != 2 || metrics.Running != 1 || metrics.Published != 4 || metrics.Failed != 1 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
	if metrics.Counts["transcribed"] != 0 {
		t.Fatalf("expected zero for transcribed, got %d", metrics.Counts["transcribed"])
	}
}

func TestFromStatusSummaryDropsPayload(t *testing.T) {
	summary := workflow.StatusSummary{
		Running: true,
		LastJob: &queue.Job{ID: "j", Payload: []byte(`{"id":"1"}`)},
		Stages: []workflow.StageStatus{
			{Name: "transcribe", Label: "Transcribe", Limit: 2, InFlight: 1, Health: stage.Check("transcribe", stage.Needs(false, "down"))},
		},
	}
	status := FromStatusSummary(summary)
	if !status.Running || status.LastJob == nil || status.LastJob.Payload != nil {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Stages) != 1 || status.Stages[0].Health.Ready || status.Stages[0].Health.Detail != "down" {
		t.Fatalf("unexpected stages %+v", status.Stages)
	}
}
