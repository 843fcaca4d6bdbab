package transcription_test

import (
	"context"
	"errors"
	"testing"

	"castreel/internal/queue"
	"castreel/internal/services"
	"castreel/internal/services/transcribe"
	"castreel/internal/testsupport"
	"castreel/internal/transcription"
)

type captureEngine struct {
	req transcribe.Request
	err error
}

func (c *captureEngine) Submit(_ context.Context, req transcribe.Request) (transcribe.Handle, error) {
	c.req = req
	if c.err != nil {
		return transcribe.Handle{}, c.err
	}
	return transcribe.Handle{RunID: "r1", URI: "t:" + req.SourceRef}, nil
}

func TestTranscriberBuildsRequestFromCast(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	engine := &captureEngine{}
	handler := transcription.NewTranscriberWithEngine(cfg, engine, nil)

	job := &queue.Job{
		ID:        "job-1",
		SourceRef: "cast:42",
		Payload: []byte(`{"id":"42","author":{"username":"dwr"},"text":"gm @v and @ted.",` +
			`"embeds":[{"url":"https://example.com/a.mp4"}]}`),
	}
	result, err := handler.Execute(context.Background(), job)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ArtifactURI != "t:cast:42" {
		t.Fatalf("unexpected artifact %q", result.ArtifactURI)
	}
	if engine.req.JobID != "job-1" || engine.req.Author != "dwr" || engine.req.Text == "" {
		t.Fatalf("unexpected request: %+v", engine.req)
	}
	if len(engine.req.Mentions) != 2 {
		t.Fatalf("expected two mentions, got %v", engine.req.Mentions)
	}
	if len(engine.req.MediaURLs) != 1 {
		t.Fatalf("expected one media url, got %v", engine.req.MediaURLs)
	}
}

func TestTranscriberPassesThroughClassifiedErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	engine := &captureEngine{err: services.Wrap(services.ErrTransient, "transcription", "submit", "503", nil)}
	handler := transcription.NewTranscriberWithEngine(cfg, engine, nil)

	cast := testsupport.Cast("7", "a", "hi")
	_, err := handler.Execute(context.Background(), &queue.Job{ID: "j", SourceRef: "cast:7", Payload: cast.Raw})
	if services.Classify(err) != services.KindTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestTranscriberRejectsMissingPayload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	engine := &captureEngine{}
	handler := transcription.NewTranscriberWithEngine(cfg, engine, nil)

	_, err := handler.Execute(context.Background(), &queue.Job{ID: "j", SourceRef: "cast:1"})
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if engine.req.JobID != "" {
		t.Fatal("engine should not be called without a payload")
	}
}

func TestTranscriberHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if h := transcription.NewTranscriberWithEngine(cfg, &captureEngine{}, nil).HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("expected healthy, got %+v", h)
	}
	cfg.Transcription.BaseURL = ""
	if h := transcription.NewTranscriberWithEngine(cfg, &captureEngine{}, nil).HealthCheck(context.Background()); h.Ready {
		t.Fatal("expected unhealthy without base url")
	}
}
