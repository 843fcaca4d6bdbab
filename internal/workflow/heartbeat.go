package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"castreel/internal/logging"
	"castreel/internal/queue"
)

// HeartbeatMonitor manages job heartbeats and stale job reclamation.
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	now               func() time.Time
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:             store,
		logger:            logging.NewComponentLogger(logger, "workflow-heartbeat"),
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
		now:               time.Now,
	}
}

// Enabled reports whether stale reclamation is configured.
func (h *HeartbeatMonitor) Enabled() bool {
	return h != nil && h.heartbeatInterval > 0 && h.heartbeatTimeout > 0
}

// ReclaimStaleJobs returns in-flight jobs whose heartbeat expired to their
// precondition state.
func (h *HeartbeatMonitor) ReclaimStaleJobs(ctx context.Context) (int64, error) {
	if !h.Enabled() {
		return 0, nil
	}
	cutoff := h.now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		logging.WarnWithContext(h.logger, "reclaimed stale jobs", "heartbeat_reclaimed",
			logging.Int64("count", reclaimed),
			logging.Duration("timeout", h.heartbeatTimeout),
			logging.String(logging.FieldErrorHint, "a stage call outlived its heartbeat; check service timeouts"),
			logging.String(logging.FieldImpact, "reclaimed jobs will be dispatched again"),
		)
	}
	return reclaimed, nil
}

// StartLoop refreshes the heartbeat for jobID until ctx is cancelled.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID string) {
	defer wg.Done()
	if h == nil || h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat update cancelled")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}
}
