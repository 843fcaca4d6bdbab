package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"castreel/internal/logging"
	"castreel/internal/notifications"
	"castreel/internal/queue"
	"castreel/internal/services"
	"castreel/internal/stage"
)

// storeWriteTimeout bounds the result write after an adapter call. The write
// runs detached from the dispatch context so a shutdown mid-call still
// records what happened.
const storeWriteTimeout = 10 * time.Second

// Outcome is what one dispatch did to a job.
type Outcome string

const (
	// OutcomeSucceeded moved the job to the stage's postcondition state.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeRetrying returned the job to the precondition state with a backoff.
	OutcomeRetrying Outcome = "retrying"
	// OutcomeFailed moved the job to failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeStale means another writer moved the job; the result was dropped.
	OutcomeStale Outcome = "stale"
)

// RetryPolicy bounds transient retries for one stage.
type RetryPolicy struct {
	Backoff     Backoff
	MaxAttempts int
}

// Executor runs the per-job state machine for one stage.
type Executor struct {
	spec     queue.StageSpec
	handler  stage.Handler
	store    *queue.Store
	policy   RetryPolicy
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
}

// NewExecutor builds an executor for spec backed by handler.
func NewExecutor(spec queue.StageSpec, handler stage.Handler, store *queue.Store, policy RetryPolicy, logger *slog.Logger) *Executor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Executor{
		spec:    spec,
		handler: handler,
		store:   store,
		policy:  policy,
		logger:  logging.NewComponentLogger(logger, "workflow-"+string(spec.Stage)),
		now:     time.Now,
	}
}

// Stage returns the stage this executor drives.
func (e *Executor) Stage() queue.StageSpec { return e.spec }

// Claim moves job into the stage's running state and counts the attempt.
// queue.ErrStaleState means another dispatcher got there first.
func (e *Executor) Claim(ctx context.Context, job *queue.Job) (*queue.Job, error) {
	attempts := job.Attempt(e.spec.Stage) + 1
	return e.store.Transition(ctx, job.ID, e.spec.Ready, e.spec.Running,
		queue.WithAttempts(e.spec.Stage, attempts),
	)
}

// Run makes one adapter call for a claimed job and records the result. The
// returned error describes the stage failure or store problem; it is nil on
// success and for interrupted or stale dispatches.
func (e *Executor) Run(ctx context.Context, job *queue.Job) (Outcome, error) {
	logger := logging.WithContext(ctx, e.logger).With(logging.String(logging.FieldSourceRef, job.SourceRef))
	attempts := job.Attempt(e.spec.Stage)

	start := e.now()
	result, execErr := e.handler.Execute(ctx, job)
	elapsed := e.now().Sub(start)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()

	if execErr != nil && ctx.Err() != nil {
		// The call was cut off when the shutdown grace ran out.
		execErr = services.Wrap(services.ErrTransient, string(e.spec.Stage), "execute", "call cancelled at shutdown", execErr)
	}
	if execErr == nil && strings.TrimSpace(result.ArtifactURI) == "" {
		execErr = services.Wrap(services.ErrPermanent, string(e.spec.Stage), "execute", "stage returned no artifact", nil)
	}
	if execErr == nil {
		return e.succeed(writeCtx, logger, job, result, elapsed)
	}

	if services.IsPermanent(execErr) {
		return e.fail(writeCtx, logger, job, services.KindPermanent, execErr)
	}
	if attempts >= e.policy.MaxAttempts {
		exhausted := fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, execErr)
		return e.fail(writeCtx, logger, job, services.KindRetryExhausted, exhausted)
	}
	return e.retry(writeCtx, logger, job, attempts, execErr)
}

func (e *Executor) succeed(ctx context.Context, logger *slog.Logger, job *queue.Job, result stage.Result, elapsed time.Duration) (Outcome, error) {
	updated, err := e.store.Transition(ctx, job.ID, e.spec.Running, e.spec.Done,
		queue.WithArtifact(e.spec.Artifact, result.ArtifactURI),
	)
	if err != nil {
		return e.writeFailed(logger, job, err)
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("artifact", result.ArtifactURI),
		logging.Duration("elapsed", elapsed),
		logging.String("state", string(updated.State)),
	}
	if result.Detail != "" {
		attrs = append(attrs, logging.String("detail", result.Detail))
	}
	logger.Info("stage completed", logging.Args(attrs...)...)

	if e.spec.Done == queue.StatePublished && e.notifier != nil {
		if err := e.notifier.NotifyPublished(ctx, job.SourceRef, result.ArtifactURI); err != nil {
			logger.Debug("publish notification failed", logging.Error(err))
		}
	}
	return OutcomeSucceeded, nil
}

func (e *Executor) retry(ctx context.Context, logger *slog.Logger, job *queue.Job, attempts int, cause error) (Outcome, error) {
	delay := e.policy.Backoff.Delay(attempts - 1)
	next := e.now().Add(delay)
	_, err := e.store.Transition(ctx, job.ID, e.spec.Running, e.spec.Ready,
		queue.WithError(queue.ErrorRecord{Kind: string(services.KindTransient), Message: cause.Error()}),
		queue.WithNextAttemptAt(next),
	)
	if err != nil {
		return e.writeFailed(logger, job, err)
	}
	logging.WarnWithContext(logger, "stage attempt failed; retry scheduled", "stage_retry",
		logging.Error(cause),
		logging.String(logging.FieldErrorKind, string(services.KindTransient)),
		logging.Int("attempt", attempts),
		logging.Int("max_attempts", e.policy.MaxAttempts),
		logging.Duration("backoff", delay),
		logging.String(logging.FieldErrorHint, "check the "+string(e.spec.Stage)+" service"),
		logging.String(logging.FieldImpact, "job waits for backoff before the next attempt"),
	)
	return OutcomeRetrying, cause
}

func (e *Executor) fail(ctx context.Context, logger *slog.Logger, job *queue.Job, kind services.Kind, cause error) (Outcome, error) {
	_, err := e.store.Transition(ctx, job.ID, e.spec.Running, queue.StateFailed,
		queue.WithError(queue.ErrorRecord{Kind: string(kind), Message: cause.Error()}),
	)
	if err != nil {
		return e.writeFailed(logger, job, err)
	}
	attrs := []logging.Attr{
		logging.Error(cause),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.Int("attempt", job.Attempt(e.spec.Stage)),
		logging.String(logging.FieldErrorHint, "inspect the job and retry it once the cause is fixed"),
	}
	if service, operation, status, ok := services.Details(cause); ok {
		attrs = append(attrs,
			logging.String("service", service),
			logging.String("operation", operation),
			logging.Int("status", status),
		)
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failed", attrs...)

	if e.notifier != nil {
		if err := e.notifier.NotifyJobFailed(ctx, job.SourceRef, string(e.spec.Stage), string(kind), cause.Error()); err != nil {
			logger.Debug("failure notification failed", logging.Error(err))
		}
	}
	return OutcomeFailed, cause
}

func (e *Executor) writeFailed(logger *slog.Logger, job *queue.Job, err error) (Outcome, error) {
	if errors.Is(err, queue.ErrStaleState) || errors.Is(err, queue.ErrNotFound) {
		logging.WarnWithContext(logger, "job moved during dispatch; result dropped", "stage_result_stale",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for a second daemon or a reclaimed heartbeat"),
			logging.String(logging.FieldImpact, "the stage result for this attempt was not recorded"),
		)
		return OutcomeStale, nil
	}
	return "", fmt.Errorf("record %s result for job %s: %w", e.spec.Stage, job.ID, err)
}
