package workflow

import (
	"context"
	"errors"

	"castreel/internal/logging"
	"castreel/internal/queue"
)

func (m *Manager) onQueueStarted(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	m.mu.Lock()
	if m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = true
	m.queueStart = m.now()
	m.mu.Unlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not get queue stats for start notification")
		} else {
			logging.WarnWithContext(m.logger, "queue stats unavailable for start notification; notification skipped", "queue_stats_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "start notification will not be sent"),
			)
		}
		return
	}
	if err := m.notifier.NotifyQueueStarted(ctx, countActiveJobs(stats)); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send queue start notification")
		} else {
			m.logger.Debug("queue start notification failed", logging.Error(err))
		}
	}
}

func (m *Manager) checkQueueCompletion(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		logging.WarnWithContext(m.logger, "queue stats unavailable for completion notification; notification skipped", "queue_stats_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "completion notification will not be sent"),
		)
		return
	}
	if countActiveJobs(stats) > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	start := m.queueStart
	m.queueActive = false
	m.queueStart = m.now()
	m.mu.Unlock()

	duration := m.now().Sub(start)
	if err := m.notifier.NotifyQueueCompleted(ctx, stats[queue.StatePublished], stats[queue.StateFailed], duration); err != nil {
		m.logger.Debug("queue completion notification failed", logging.Error(err))
	}
}

// countActiveJobs counts jobs that have not reached a terminal state.
func countActiveJobs(stats map[queue.State]int) int {
	total := 0
	for state, count := range stats {
		if state.IsTerminal() {
			continue
		}
		total += count
	}
	return total
}
