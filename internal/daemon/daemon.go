package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"castreel/internal/config"
	"castreel/internal/logging"
	"castreel/internal/notifications"
	"castreel/internal/preflight"
	"castreel/internal/queue"
	"castreel/internal/workflow"
)

// ErrAlreadyRunning is returned when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another castreel daemon instance is already running")

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu        sync.Mutex
	running   atomic.Bool
	startedAt atomic.Int64
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	Workflow     workflow.StatusSummary
	Database     queue.DatabaseHealth
	QueueDBPath  string
	LockFilePath string
}

// Metrics reports job counts per state.
type Metrics struct {
	Counts map[queue.State]int
	Health queue.HealthSummary
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg.API, d, logger)
	return d, nil
}

// Start acquires the daemon lock, recovers stranded jobs, and launches the
// workflow manager and API server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if err := d.start(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.startedAt.Store(time.Now().UnixNano())
	d.running.Store(true)
	d.logger.Info("castreel daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) start(ctx context.Context) error {
	if failed := preflight.Failed(preflight.RunAll(ctx, d.cfg)); len(failed) > 0 {
		details := make([]string, 0, len(failed))
		for _, r := range failed {
			details = append(details, r.Name+": "+r.Detail)
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(details, "; "))
	}

	reset, err := d.store.ResetInProgress(ctx)
	if err != nil {
		return fmt.Errorf("recover in-progress jobs: %w", err)
	}
	if reset > 0 {
		logging.WarnWithContext(d.logger, "returned interrupted jobs to their stage queue", "jobs_recovered",
			logging.Int64("count", reset),
			logging.String(logging.FieldImpact, "interrupted stage calls will be dispatched again"),
			logging.String(logging.FieldErrorHint, "the previous daemon exited with work in flight"),
		)
	}

	if err := d.workflow.Start(ctx); err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(); err != nil {
		d.workflow.Stop()
		return err
	}
	return nil
}

// Stop stops dispatching, waits for in-flight calls, and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("castreel daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start succeeded without a matching Stop.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the address the API server listens on, or "" when it is
// not serving.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// JobStatus returns one job. A missing id yields queue.ErrNotFound.
func (d *Daemon) JobStatus(ctx context.Context, id string) (*queue.Job, error) {
	return d.store.Get(ctx, strings.TrimSpace(id))
}

// ListJobs returns jobs filtered by optional states.
func (d *Daemon) ListJobs(ctx context.Context, states ...queue.State) ([]*queue.Job, error) {
	return d.store.List(ctx, states...)
}

// RetryJob moves a failed job back to the precondition state of the stage
// that failed.
func (d *Daemon) RetryJob(ctx context.Context, id string) (*queue.Job, error) {
	job, err := d.store.Retry(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	d.logger.Info("failed job re-queued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldSourceRef, job.SourceRef),
		logging.String("state", string(job.State)),
		logging.String(logging.FieldEventType, "job_retried"),
	)
	return job, nil
}

// Metrics returns job counts per state.
func (d *Daemon) Metrics(ctx context.Context) (Metrics, error) {
	counts, err := d.store.Stats(ctx)
	if err != nil {
		return Metrics{}, err
	}
	health, err := d.store.Health(ctx)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{Counts: counts, Health: health}, nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	dbHealth, err := d.store.CheckHealth(ctx)
	if err != nil {
		d.logger.Warn("database health check failed", logging.Error(err))
	}
	var startedAt time.Time
	if nanos := d.startedAt.Load(); nanos > 0 {
		startedAt = time.Unix(0, nanos)
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    startedAt,
		Workflow:     d.workflow.Status(ctx),
		Database:     dbHealth,
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
