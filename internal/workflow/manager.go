package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"castreel/internal/config"
	"castreel/internal/logging"
	"castreel/internal/notifications"
	"castreel/internal/queue"
)

// Manager coordinates queue processing across the registered stages.
type Manager struct {
	cfg            *config.Config
	store          *queue.Store
	logger         *slog.Logger
	notifier       notifications.Service
	pollInterval   time.Duration
	ingestInterval time.Duration
	errorRetry     time.Duration
	now            func() time.Time
	random         func() float64

	heartbeat *HeartbeatMonitor

	runners []*stageRunner
	ingest  Poller

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	workCancel context.CancelFunc
	group      *errgroup.Group
	work       sync.WaitGroup
	lastErr    error
	lastJob    *queue.Job

	queueActive bool
	queueStart  time.Time
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithPollInterval overrides workflow.queue_poll_interval.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithIngestInterval overrides feed.poll_interval.
func WithIngestInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.ingestInterval = d
		}
	}
}

// WithClock replaces the clock used for backoff scheduling.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRandom replaces the jitter source.
func WithRandom(random func() float64) ManagerOption {
	return func(m *Manager) {
		m.random = random
	}
}

// WithNotifier replaces the ntfy-backed notifier (used in tests).
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		m.notifier = notifier
	}
}

// NewManager constructs a new workflow manager. Call ConfigureStages before
// Start.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	logger = logging.NewComponentLogger(logger, "workflow-manager")
	m := &Manager{
		cfg:            cfg,
		store:          store,
		logger:         logger,
		notifier:       notifications.NewService(cfg),
		pollInterval:   secondsOr(cfg.Workflow.QueuePollInterval, time.Second),
		ingestInterval: secondsOr(cfg.Feed.PollInterval, 30*time.Second),
		errorRetry:     secondsOr(cfg.Workflow.ErrorRetryInterval, 5*time.Second),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.heartbeat = NewHeartbeatMonitor(
		store,
		logger,
		time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
		time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
	)
	return m
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
