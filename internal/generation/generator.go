// Package generation implements the generate stage: it renders a video from
// the transcript recorded by the transcribe stage.
package generation

import (
	"context"
	"log/slog"

	"castreel/internal/config"
	"castreel/internal/logging"
	"castreel/internal/queue"
	"castreel/internal/services/generate"
	"castreel/internal/stage"
)

// Generator is the generate stage handler.
type Generator struct {
	cfg     config.Service
	backend generate.Backend
	logger  *slog.Logger
}

// NewGenerator constructs the handler around the configured backend client.
func NewGenerator(cfg *config.Config, logger *slog.Logger) *Generator {
	return NewGeneratorWithBackend(cfg, generate.NewClient(cfg.Generation, nil), logger)
}

// NewGeneratorWithBackend allows injecting the backend (used in tests).
func NewGeneratorWithBackend(cfg *config.Config, backend generate.Backend, logger *slog.Logger) *Generator {
	return &Generator{
		cfg:     cfg.Generation,
		backend: backend,
		logger:  logging.NewComponentLogger(logger, "generator"),
	}
}

// Execute submits the transcript and waits for the rendered video.
func (g *Generator) Execute(ctx context.Context, job *queue.Job) (stage.Result, error) {
	transcriptURI, err := stage.RequireArtifact(job, queue.ArtifactTranscript)
	if err != nil {
		return stage.Result{}, err
	}
	// The caption is optional; a job without a readable payload still renders.
	var caption string
	if cast, castErr := stage.DecodeCast(job); castErr == nil {
		caption = stage.Caption(cast)
	}
	logging.WithContext(ctx, g.logger).Debug("submitting generation",
		logging.String("transcript_uri", transcriptURI),
	)
	handle, err := g.backend.Submit(ctx, generate.Request{
		JobID:         job.ID,
		SourceRef:     job.SourceRef,
		TranscriptURI: transcriptURI,
		Caption:       caption,
	})
	if err != nil {
		return stage.Result{}, err
	}
	return stage.Result{ArtifactURI: handle.URI, Detail: "run " + handle.RunID}, nil
}

// HealthCheck reports whether the backend endpoint is configured.
func (g *Generator) HealthCheck(context.Context) stage.Health {
	return stage.Check("generate",
		stage.Needs(g.backend != nil, "backend client unavailable"),
		stage.Configured("generation.base_url", g.cfg.BaseURL),
	)
}
