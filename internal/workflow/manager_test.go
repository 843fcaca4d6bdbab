package workflow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"castreel/internal/config"
	"castreel/internal/generation"
	"castreel/internal/ingest"
	"castreel/internal/publishing"
	"castreel/internal/queue"
	"castreel/internal/services"
	"castreel/internal/services/feed"
	"castreel/internal/testsupport"
	"castreel/internal/transcription"
)

type managerNotifier struct {
	mu        sync.Mutex
	published []string
	failed    []string
	started   int
	completed int
}

func (n *managerNotifier) NotifyPublished(_ context.Context, sourceRef, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, sourceRef)
	return nil
}

func (n *managerNotifier) NotifyJobFailed(_ context.Context, sourceRef, _, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, sourceRef)
	return nil
}

func (n *managerNotifier) NotifyQueueStarted(context.Context, int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started++
	return nil
}

func (n *managerNotifier) NotifyQueueCompleted(context.Context, int, int, time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed++
	return nil
}

func (n *managerNotifier) TestNotification(context.Context) error { return nil }

func (n *managerNotifier) counts() (published, failed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.published), len(n.failed)
}

type pipelineFakes struct {
	feed        *testsupport.FakeFeed
	transcriber testsupport.FakeTranscriber
	generator   testsupport.FakeGenerator
	publisher   testsupport.FakePublisher
}

func newPipelineFakes(casts ...feed.Cast) *pipelineFakes {
	return &pipelineFakes{
		feed:        testsupport.NewFakeFeed(map[string]feed.Page{"": {Casts: casts}}),
		transcriber: testsupport.FakeTranscriber{Recorder: testsupport.NewRecorder(testsupport.PrefixResponder("t:"))},
		generator:   testsupport.FakeGenerator{Recorder: testsupport.NewRecorder(testsupport.PrefixResponder("v:"))},
		publisher:   testsupport.FakePublisher{Recorder: testsupport.NewRecorder(testsupport.PrefixResponder("p:"))},
	}
}

func newTestManager(t *testing.T, cfg *config.Config, store *queue.Store, fakes *pipelineFakes, notifier *managerNotifier) *Manager {
	t.Helper()
	mgr := NewManager(cfg, store, nil,
		WithPollInterval(10*time.Millisecond),
		WithIngestInterval(20*time.Millisecond),
		WithNotifier(notifier),
	)
	mgr.ConfigureStages(StageSet{
		Ingest:     ingest.NewIngestorWithSource(cfg, fakes.feed, store, nil),
		Transcribe: transcription.NewTranscriberWithEngine(cfg, fakes.transcriber, nil),
		Generate:   generation.NewGeneratorWithBackend(cfg, fakes.generator, nil),
		Publish:    publishing.NewPublisherWithBackend(cfg, fakes.publisher, nil),
	})
	return mgr
}

func waitForJob(t *testing.T, store *queue.Store, sourceRef string, want queue.State) *queue.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last *queue.Job
	for time.Now().Before(deadline) {
		job, err := store.FindActiveBySourceRef(context.Background(), sourceRef)
		if err != nil {
			t.Fatalf("FindActiveBySourceRef: %v", err)
		}
		if job == nil {
			jobs, err := store.List(context.Background(), queue.StateFailed)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			for _, candidate := range jobs {
				if candidate.SourceRef == sourceRef {
					job = candidate
				}
			}
		}
		if job != nil {
			last = job
			if job.State == want {
				return job
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
	if last == nil {
		t.Fatalf("job %s never appeared", sourceRef)
	}
	t.Fatalf("job %s stuck in %s, want %s", sourceRef, last.State, want)
	return nil
}

func TestManagerDrivesCastToPublished(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	fakes := newPipelineFakes(testsupport.Cast("42", "alice", "gm"))
	notifier := &managerNotifier{}
	mgr := newTestManager(t, cfg, store, fakes, notifier)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { mgr.Stop() })

	job := waitForJob(t, store, "cast:42", queue.StatePublished)
	want := map[string]string{
		queue.ArtifactTranscript: "t:42",
		queue.ArtifactVideo:      "v:42",
		queue.ArtifactPublished:  "p:42",
	}
	for name, uri := range want {
		if got, _ := job.Artifact(name); got != uri {
			t.Fatalf("artifact %s = %q, want %q", name, got, uri)
		}
	}
	if job.LastError != nil {
		t.Fatalf("unexpected error record %+v", job.LastError)
	}
	// Redelivery by the feed must not create a second job.
	time.Sleep(60 * time.Millisecond)
	jobs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(jobs))
	}
	if published, _ := notifier.counts(); published != 1 {
		t.Fatalf("expected one publish notification, got %d", published)
	}
}

func TestManagerPermanentFailureStopsJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	fakes := newPipelineFakes(testsupport.Cast("7", "bob", "broken"))
	fakes.transcriber.Respond = func(testsupport.Call) (string, error) {
		return "", services.Wrap(services.ErrPermanent, "transcription", "submit", "unsupported media", nil)
	}
	notifier := &managerNotifier{}
	mgr := newTestManager(t, cfg, store, fakes, notifier)

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { mgr.Stop() })

	job := waitForJob(t, store, "cast:7", queue.StateFailed)
	if job.LastError == nil || job.LastError.Kind != string(services.KindPermanent) {
		t.Fatalf("unexpected error record %+v", job.LastError)
	}
	if _, ok := job.Artifact(queue.ArtifactTranscript); ok {
		t.Fatal("failed job must not carry a transcript")
	}
	if fakes.transcriber.Calls(job.ID) != 1 {
		t.Fatalf("expected one transcription call, got %d", fakes.transcriber.Calls(job.ID))
	}
	if fakes.generator.Total() != 0 {
		t.Fatalf("generator should not run, got %d calls", fakes.generator.Total())
	}
	if _, failed := notifier.counts(); failed != 1 {
		t.Fatalf("expected one failure notification, got %d", failed)
	}
}

func TestManagerRetriesTransientFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(3))
	store := testsupport.MustOpenStore(t, cfg)
	fakes := newPipelineFakes(testsupport.Cast("5", "carol", "retry me"))
	fakes.generator.Respond = func(c testsupport.Call) (string, error) {
		if c.Attempt < 3 {
			return "", services.Wrap(services.ErrTransient, "generation", "submit", "503", nil)
		}
		return "v:" + strings.TrimPrefix(c.SourceRef, "cast:"), nil
	}
	mgr := newTestManager(t, cfg, store, fakes, &managerNotifier{})

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { mgr.Stop() })

	job := waitForJob(t, store, "cast:5", queue.StatePublished)
	if fakes.generator.Calls(job.ID) != 3 {
		t.Fatalf("expected three generation calls, got %d", fakes.generator.Calls(job.ID))
	}
	if job.Attempt(queue.StageGenerate) != 0 {
		t.Fatalf("expected generate attempts reset, got %d", job.Attempt(queue.StageGenerate))
	}
}

func TestManagerHonorsConcurrencyLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConcurrency(2, 1, 3))
	store := testsupport.MustOpenStore(t, cfg)
	casts := make([]feed.Cast, 0, 6)
	for _, id := range []string{"1", "2", "3", "4", "5", "6"} {
		casts = append(casts, testsupport.Cast(id, "dave", "cast "+id))
	}
	fakes := newPipelineFakes(casts...)
	fakes.transcriber.Delay = 30 * time.Millisecond
	fakes.generator.Delay = 10 * time.Millisecond
	mgr := newTestManager(t, cfg, store, fakes, &managerNotifier{})

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { mgr.Stop() })

	for _, id := range []string{"1", "2", "3", "4", "5", "6"} {
		waitForJob(t, store, "cast:"+id, queue.StatePublished)
	}
	if got := fakes.transcriber.MaxInFlight(); got > 2 {
		t.Fatalf("transcription concurrency %d exceeded limit 2", got)
	}
	if got := fakes.generator.MaxInFlight(); got > 1 {
		t.Fatalf("generation concurrency %d exceeded limit 1", got)
	}
	if fakes.transcriber.Total() != 6 {
		t.Fatalf("expected six transcription calls, got %d", fakes.transcriber.Total())
	}
}

func TestManagerStopWaitsForInFlightCall(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "cast:21")
	fakes := newPipelineFakes()
	fakes.transcriber.Delay = 150 * time.Millisecond
	mgr := newTestManager(t, cfg, store, fakes, &managerNotifier{})

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for fakes.transcriber.Total() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fakes.transcriber.Total() == 0 {
		t.Fatal("transcription never dispatched")
	}
	mgr.Stop()

	got := testsupport.MustGet(t, store, job.ID)
	if got.State != queue.StateTranscribed {
		t.Fatalf("expected in-flight call to finish, got %s", got.State)
	}
	if fakes.generator.Total() != 0 {
		t.Fatalf("no dispatch expected after stop, got %d generation calls", fakes.generator.Total())
	}
	if mgr.Running() {
		t.Fatal("manager still running after Stop")
	}
}

func TestManagerStopCancelsAfterGrace(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.ShutdownGrace = 1
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "cast:22")
	fakes := newPipelineFakes()
	fakes.transcriber.Delay = time.Minute
	mgr := newTestManager(t, cfg, store, fakes, &managerNotifier{})

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for fakes.transcriber.Total() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	start := time.Now()
	mgr.Stop()
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("Stop took %v", elapsed)
	}

	got := testsupport.MustGet(t, store, job.ID)
	if got.State != queue.StateIngested || got.NextAttemptAt == nil {
		t.Fatalf("expected cancelled job back in ingested with a backoff, got %s", got.State)
	}
	if got.Attempt(queue.StageTranscribe) != 1 {
		t.Fatalf("cancelled attempt should count, got %d", got.Attempt(queue.StageTranscribe))
	}
	if got.LastError == nil || got.LastError.Kind != string(services.KindTransient) {
		t.Fatalf("expected transient error record, got %+v", got.LastError)
	}
}

func TestManagerStartRequiresStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := NewManager(cfg, store, nil)
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected error without stages")
	}

	mgr.ConfigureStages(StageSet{Transcribe: emptyHandler{}})
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected error on double start")
	}
}

func TestManagerStatusReportsStages(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConcurrency(4, 1, 2))
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewJob(t, store, "cast:1")
	mgr := newTestManager(t, cfg, store, newPipelineFakes(), &managerNotifier{})

	status := mgr.Status(context.Background())
	if status.Running {
		t.Fatal("expected manager not running")
	}
	if status.JobStats[queue.StateIngested] != 1 {
		t.Fatalf("unexpected job stats %v", status.JobStats)
	}
	if len(status.Stages) != 4 {
		t.Fatalf("expected ingest plus three stages, got %d", len(status.Stages))
	}
	transcribe := status.Stages[1]
	if transcribe.Name != "transcribe" || transcribe.Label != "Transcribe" || transcribe.Limit != 4 {
		t.Fatalf("unexpected transcribe status %+v", transcribe)
	}
	if !transcribe.Health.Ready {
		t.Fatalf("expected transcribe healthy, got %+v", transcribe.Health)
	}
}

func TestManagerReclaimsStaleHeartbeats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "cast:30")
	ctx := context.Background()
	if _, err := store.Transition(ctx, job.ID, queue.StateIngested, queue.StateTranscribing); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	monitor := NewHeartbeatMonitor(store, nil, time.Second, time.Minute)
	monitor.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	reclaimed, err := monitor.ReclaimStaleJobs(ctx)
	if err != nil {
		t.Fatalf("ReclaimStaleJobs: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected one reclaimed job, got %d", reclaimed)
	}
	if got := testsupport.MustGet(t, store, job.ID); got.State != queue.StateIngested {
		t.Fatalf("expected ingested after reclaim, got %s", got.State)
	}
}

func TestDeriveStageLabel(t *testing.T) {
	cases := map[string]string{
		"transcribe": "Transcribe",
		"generate":   "Generate",
		"":           "",
		"dead_lane":  "Dead Lane",
	}
	for input, want := range cases {
		if got := deriveStageLabel(input); got != want {
			t.Fatalf("deriveStageLabel(%q) = %q, want %q", input, got, want)
		}
	}
}
