package workflow

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"castreel/internal/ingest"
	"castreel/internal/queue"
	"castreel/internal/stage"
)

// Poller is the ingest surface the manager drives on a timer.
type Poller interface {
	Poll(context.Context) (ingest.Result, error)
	HealthCheck(context.Context) stage.Health
}

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Ingest     Poller
	Transcribe stage.Handler
	Generate   stage.Handler
	Publish    stage.Handler
}

func (s StageSet) handlerFor(name queue.Stage) stage.Handler {
	switch name {
	case queue.StageTranscribe:
		return s.Transcribe
	case queue.StageGenerate:
		return s.Generate
	case queue.StagePublish:
		return s.Publish
	default:
		return nil
	}
}

// stageRunner is the dispatch state for one job-driven stage.
type stageRunner struct {
	exec     *Executor
	handler  stage.Handler
	limit    int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	wake     chan struct{}
	next     *stageRunner
}

func newStageRunner(exec *Executor, handler stage.Handler, limit int) *stageRunner {
	if limit <= 0 {
		limit = 1
	}
	return &stageRunner{
		exec:    exec,
		handler: handler,
		limit:   int64(limit),
		sem:     semaphore.NewWeighted(int64(limit)),
		wake:    make(chan struct{}, 1),
	}
}

func (r *stageRunner) spec() queue.StageSpec { return r.exec.Stage() }

// signal nudges the runner's loop without blocking.
func (r *stageRunner) signal() {
	if r == nil {
		return
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
}
