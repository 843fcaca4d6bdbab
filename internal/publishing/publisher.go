// Package publishing implements the publish stage: it hands the generated
// video to the configured publisher backend and records the published ref.
package publishing

import (
	"context"
	"fmt"
	"log/slog"

	"castreel/internal/config"
	"castreel/internal/logging"
	"castreel/internal/queue"
	"castreel/internal/services/publish"
	"castreel/internal/stage"
)

// Publisher is the publish stage handler.
type Publisher struct {
	cfg     config.Publisher
	backend publish.Publisher
	logger  *slog.Logger
}

// NewPublisher constructs the handler with the backend selected by
// publisher.kind.
func NewPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Publisher, error) {
	backend, err := publish.New(ctx, cfg.Publisher, nil)
	if err != nil {
		return nil, fmt.Errorf("publisher backend: %w", err)
	}
	return NewPublisherWithBackend(cfg, backend, logger), nil
}

// NewPublisherWithBackend allows injecting the backend (used in tests).
func NewPublisherWithBackend(cfg *config.Config, backend publish.Publisher, logger *slog.Logger) *Publisher {
	return &Publisher{
		cfg:     cfg.Publisher,
		backend: backend,
		logger:  logging.NewComponentLogger(logger, "publisher"),
	}
}

// Execute publishes the job's video.
func (p *Publisher) Execute(ctx context.Context, job *queue.Job) (stage.Result, error) {
	videoURI, err := stage.RequireArtifact(job, queue.ArtifactVideo)
	if err != nil {
		return stage.Result{}, err
	}
	var caption string
	if cast, castErr := stage.DecodeCast(job); castErr == nil {
		caption = stage.Caption(cast)
	}
	ref, err := p.backend.Publish(ctx, publish.Request{
		JobID:     job.ID,
		SourceRef: job.SourceRef,
		VideoURI:  videoURI,
		Caption:   caption,
	})
	if err != nil {
		return stage.Result{}, err
	}
	logging.WithContext(ctx, p.logger).Debug("video published",
		logging.String("published_ref", ref.Ref),
		logging.String("public_url", ref.URL),
	)
	return stage.Result{ArtifactURI: ref.Ref, Detail: ref.URL}, nil
}

// HealthCheck reports whether the selected backend has what it needs.
func (p *Publisher) HealthCheck(context.Context) stage.Health {
	target := stage.Configured("publisher.base_url", p.cfg.BaseURL)
	if p.cfg.Kind == config.PublisherKindS3 {
		target = stage.Configured("publisher.bucket", p.cfg.Bucket)
	}
	return stage.Check("publish",
		stage.Needs(p.backend != nil, "publisher backend unavailable"),
		target,
	)
}
