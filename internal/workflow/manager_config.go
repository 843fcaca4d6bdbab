package workflow

import (
	"castreel/internal/config"
	"castreel/internal/queue"
)

// ConfigureStages registers the concrete stage handlers the workflow will run.
// Stages without a handler are skipped; their jobs wait in the precondition
// state.
func (m *Manager) ConfigureStages(set StageSet) {
	runners := make([]*stageRunner, 0, len(queue.Stages))
	var prev *stageRunner
	for _, spec := range queue.Stages {
		handler := set.handlerFor(spec.Stage)
		if handler == nil {
			prev = nil
			continue
		}
		svc := m.serviceConfig(spec.Stage)
		policy := RetryPolicy{
			Backoff: Backoff{
				Base:   m.cfg.BackoffBase(),
				Max:    m.cfg.BackoffMax(),
				Jitter: m.cfg.Retry.Jitter,
				Rand:   m.random,
			},
			MaxAttempts: m.cfg.AttemptLimit(svc),
		}
		exec := NewExecutor(spec, handler, m.store, policy, m.logger)
		exec.notifier = m.notifier
		exec.now = m.now

		runner := newStageRunner(exec, handler, svc.MaxConcurrency)
		if prev != nil {
			prev.next = runner
		}
		prev = runner
		runners = append(runners, runner)
	}

	m.mu.Lock()
	m.runners = runners
	m.ingest = set.Ingest
	m.mu.Unlock()
}

func (m *Manager) serviceConfig(name queue.Stage) config.Service {
	switch name {
	case queue.StageTranscribe:
		return m.cfg.Transcription
	case queue.StageGenerate:
		return m.cfg.Generation
	default:
		return m.cfg.Publisher.Service
	}
}
