package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"castreel/internal/logging"
	"castreel/internal/queue"
	"castreel/internal/services"
)

// Start begins background processing. Dispatch stops when ctx is cancelled
// or Stop is called; calls already in flight run on a separate context that
// only Stop cancels, after the shutdown grace.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if len(m.runners) == 0 && m.ingest == nil {
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	workCtx, workCancel := context.WithCancel(context.WithoutCancel(ctx))
	group, groupCtx := errgroup.WithContext(runCtx)

	for _, runner := range m.runners {
		group.Go(func() error {
			m.runStage(groupCtx, workCtx, runner)
			return nil
		})
	}
	if m.ingest != nil {
		group.Go(func() error {
			m.runIngest(groupCtx)
			return nil
		})
	}
	if m.heartbeat.Enabled() && len(m.runners) > 0 {
		group.Go(func() error {
			m.runReclaimer(groupCtx)
			return nil
		})
	}

	m.cancel = cancel
	m.workCancel = workCancel
	m.group = group
	m.running = true
	return nil
}

// Stop stops dispatching and waits for in-flight calls. Calls still running
// after workflow.shutdown_grace are cancelled; their jobs go back to the
// precondition state. A zero grace waits without bound.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	workCancel := m.workCancel
	group := m.group
	m.running = false
	m.cancel = nil
	m.workCancel = nil
	m.group = nil
	m.mu.Unlock()

	cancel()
	_ = group.Wait()

	done := make(chan struct{})
	go func() {
		m.work.Wait()
		close(done)
	}()

	grace := time.Duration(m.cfg.Workflow.ShutdownGrace) * time.Second
	if grace > 0 {
		timer := time.NewTimer(grace)
		select {
		case <-done:
			timer.Stop()
		case <-timer.C:
			logging.WarnWithContext(m.logger, "shutdown grace expired; cancelling in-flight calls", "shutdown_grace_expired",
				logging.Duration("grace", grace),
				logging.String(logging.FieldImpact, "cancelled calls count as transient failures and retry after backoff"),
				logging.String(logging.FieldErrorHint, "raise workflow.shutdown_grace if calls routinely run longer"),
			)
			workCancel()
			<-done
		}
	} else {
		<-done
	}
	workCancel()
}

// Running reports whether Start has been called without a matching Stop.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) runStage(ctx, workCtx context.Context, r *stageRunner) {
	spec := r.spec()
	logger := m.logger.With(logging.String(logging.FieldStage, string(spec.Stage)))
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := m.dispatchReady(ctx, workCtx, r); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			logging.ErrorWithContext(logger, "failed to dispatch ready jobs", "queue_fetch_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			if !sleepCtx(ctx, m.errorRetry) {
				return
			}
			continue
		}
		m.waitForWork(ctx, r)
	}
}

// dispatchReady claims ready jobs for r up to its free capacity and starts
// each on workCtx.
func (m *Manager) dispatchReady(ctx, workCtx context.Context, r *stageRunner) (int, error) {
	spec := r.spec()
	free := r.limit - r.inFlight.Load()
	if free <= 0 {
		return 0, nil
	}
	jobs, err := m.store.ListReady(ctx, spec.Ready, m.now(), int(free))
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, job := range jobs {
		if !r.sem.TryAcquire(1) {
			break
		}
		claimed, err := r.exec.Claim(ctx, job)
		if err != nil {
			r.sem.Release(1)
			if errors.Is(err, queue.ErrStaleState) || errors.Is(err, queue.ErrNotFound) {
				continue
			}
			return dispatched, err
		}
		if dispatched == 0 {
			m.onQueueStarted(ctx)
		}
		r.inFlight.Add(1)
		m.work.Add(1)
		go m.execute(workCtx, r, claimed)
		dispatched++
	}
	return dispatched, nil
}

func (m *Manager) execute(ctx context.Context, r *stageRunner, job *queue.Job) {
	defer m.work.Done()
	defer func() {
		r.inFlight.Add(-1)
		r.sem.Release(1)
		r.signal()
		r.next.signal()
	}()

	spec := r.spec()
	ctx = withStageContext(ctx, spec.Stage, job, uuid.NewString())
	m.setLastJob(job)

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	outcome, err := r.exec.Run(ctx, job)

	hbCancel()
	hbWG.Wait()

	if err != nil {
		m.setLastError(err)
	}
	if outcome == OutcomeFailed || (outcome == OutcomeSucceeded && spec.Done == queue.StatePublished) {
		m.checkQueueCompletion(context.WithoutCancel(ctx))
	}
}

func (m *Manager) waitForWork(ctx context.Context, r *stageRunner) {
	timer := time.NewTimer(m.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-r.wake:
	case <-timer.C:
	}
}

func (m *Manager) runIngest(ctx context.Context) {
	for {
		result, err := m.ingest.Poll(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil:
			m.setLastError(err)
			kind := services.Classify(err)
			logging.WarnWithContext(m.logger, "feed poll failed", "ingest_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorKind, string(kind)),
				logging.String(logging.FieldErrorHint, "check feed.base_url and feed availability"),
				logging.String(logging.FieldImpact, "new casts are picked up on the next poll"),
			)
		case result.Created > 0:
			m.wakeAll()
		}
		if !sleepCtx(ctx, m.ingestInterval) {
			return
		}
	}
}

func (m *Manager) runReclaimer(ctx context.Context) {
	interval := m.heartbeat.heartbeatInterval
	for {
		reclaimed, err := m.heartbeat.ReclaimStaleJobs(ctx)
		if err != nil && ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "reclaim stale jobs failed; stuck jobs may remain", "heartbeat_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		if reclaimed > 0 {
			m.wakeAll()
		}
		if !sleepCtx(ctx, interval) {
			return
		}
	}
}

func (m *Manager) wakeAll() {
	for _, r := range m.runners {
		r.signal()
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
