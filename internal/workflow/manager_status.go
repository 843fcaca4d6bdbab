package workflow

import (
	"context"

	"castreel/internal/logging"
	"castreel/internal/queue"
	"castreel/internal/stage"
)

// StageStatus describes one stage's dispatch state.
type StageStatus struct {
	Name     string
	Label    string
	Limit    int
	InFlight int
	Health   stage.Health
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running   bool
	LastError string
	LastJob   *queue.Job
	JobStats  map[queue.State]int
	Stages    []StageStatus
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastJob := m.lastJob
	runners := append([]*stageRunner(nil), m.runners...)
	poller := m.ingest
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	stages := make([]StageStatus, 0, len(runners)+1)
	if poller != nil {
		stages = append(stages, StageStatus{
			Name:   "ingest",
			Label:  deriveStageLabel("ingest"),
			Limit:  1,
			Health: poller.HealthCheck(ctx),
		})
	}
	for _, r := range runners {
		name := string(r.spec().Stage)
		stages = append(stages, StageStatus{
			Name:     name,
			Label:    deriveStageLabel(name),
			Limit:    int(r.limit),
			InFlight: int(r.inFlight.Load()),
			Health:   r.handler.HealthCheck(ctx),
		})
	}

	summary := StatusSummary{Running: running, JobStats: stats, Stages: stages}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastJob != nil {
		copy := *lastJob
		summary.LastJob = &copy
	}
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		copy := *job
		m.lastJob = &copy
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
