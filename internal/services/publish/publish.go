// Package publish delivers generated videos to their final destination.
//
// Two backends exist: an HTTP publisher service and an S3-compatible object
// store. Both return a PublishedRef that identifies the published video.
package publish

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"castreel/internal/config"
	"castreel/internal/services"
)

const serviceName = "publisher"

// Request describes one video to publish.
type Request struct {
	JobID     string `json:"job_id"`
	SourceRef string `json:"source_ref"`
	VideoURI  string `json:"video_uri"`
	Caption   string `json:"caption,omitempty"`
}

// Ref identifies a published video.
type Ref struct {
	Ref string `json:"ref"`
	URL string `json:"url,omitempty"`
}

// Publisher is the publishing contract the stage handler depends on.
type Publisher interface {
	Publish(ctx context.Context, req Request) (Ref, error)
}

// New returns the backend selected by cfg.Kind.
func New(ctx context.Context, cfg config.Publisher, client services.HTTPDoer) (Publisher, error) {
	switch cfg.Kind {
	case config.PublisherKindHTTP, "":
		return NewHTTPPublisher(cfg.Service, client), nil
	case config.PublisherKindS3:
		return NewS3Publisher(ctx, cfg, client)
	default:
		return nil, fmt.Errorf("publisher kind %q: %w", cfg.Kind, services.ErrConfiguration)
	}
}

// HTTPPublisher posts videos to the publisher service.
type HTTPPublisher struct {
	api     *services.JSONClient
	timeout time.Duration
}

// NewHTTPPublisher builds an HTTPPublisher from the [publisher] service settings.
func NewHTTPPublisher(cfg config.Service, client services.HTTPDoer) *HTTPPublisher {
	return &HTTPPublisher{
		api:     services.NewJSONClient(serviceName, cfg.BaseURL, cfg.APIKey, client),
		timeout: cfg.TimeoutDuration(),
	}
}

// Publish posts the request and returns the publisher's reference.
func (p *HTTPPublisher) Publish(ctx context.Context, req Request) (Ref, error) {
	if req.VideoURI == "" {
		return Ref{}, services.Wrap(services.ErrPermanent, serviceName, "publish", "video uri required", nil)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	var ref Ref
	if err := p.api.Do(ctx, "publish", http.MethodPost, "/v1/publish", req, &ref); err != nil {
		return Ref{}, err
	}
	if ref.Ref == "" {
		return Ref{}, services.Wrap(services.ErrPermanent, serviceName, "publish", "response missing ref", nil)
	}
	return ref, nil
}
