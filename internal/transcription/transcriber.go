// Package transcription implements the transcribe stage: it sends a cast to
// the transcription workflow engine and records the transcript URI.
package transcription

import (
	"context"
	"log/slog"
	"strings"

	"castreel/internal/config"
	"castreel/internal/logging"
	"castreel/internal/queue"
	"castreel/internal/services/transcribe"
	"castreel/internal/stage"
)

// Transcriber is the transcribe stage handler.
type Transcriber struct {
	cfg    config.Service
	engine transcribe.Engine
	logger *slog.Logger
}

// NewTranscriber constructs the handler around the configured engine client.
func NewTranscriber(cfg *config.Config, logger *slog.Logger) *Transcriber {
	return NewTranscriberWithEngine(cfg, transcribe.NewClient(cfg.Transcription, nil), logger)
}

// NewTranscriberWithEngine allows injecting the engine (used in tests).
func NewTranscriberWithEngine(cfg *config.Config, engine transcribe.Engine, logger *slog.Logger) *Transcriber {
	return &Transcriber{
		cfg:    cfg.Transcription,
		engine: engine,
		logger: logging.NewComponentLogger(logger, "transcriber"),
	}
}

// Execute submits the job's cast and waits for the transcript.
func (t *Transcriber) Execute(ctx context.Context, job *queue.Job) (stage.Result, error) {
	logger := logging.WithContext(ctx, t.logger)
	cast, err := stage.DecodeCast(job)
	if err != nil {
		return stage.Result{}, err
	}
	req := transcribe.Request{
		JobID:     job.ID,
		SourceRef: job.SourceRef,
		Author:    strings.TrimSpace(cast.Author.Username),
		Text:      cast.Text,
		MediaURLs: cast.MediaURLs(),
		Mentions:  cast.Mentions(),
	}
	logger.Debug("submitting transcription",
		logging.String(logging.FieldSourceRef, job.SourceRef),
		logging.Int("media_count", len(req.MediaURLs)),
	)
	handle, err := t.engine.Submit(ctx, req)
	if err != nil {
		return stage.Result{}, err
	}
	return stage.Result{ArtifactURI: handle.URI, Detail: "run " + handle.RunID}, nil
}

// HealthCheck reports whether the engine endpoint is configured.
func (t *Transcriber) HealthCheck(context.Context) stage.Health {
	return stage.Check("transcribe",
		stage.Needs(t.engine != nil, "engine client unavailable"),
		stage.Configured("transcription.base_url", t.cfg.BaseURL),
	)
}
