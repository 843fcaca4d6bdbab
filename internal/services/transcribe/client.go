// Package transcribe submits casts to the transcription workflow engine and
// waits for the resulting transcript.
package transcribe

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"castreel/internal/config"
	"castreel/internal/services"
)

const serviceName = "transcription"

// Request describes one cast to transcribe.
type Request struct {
	JobID     string   `json:"job_id"`
	SourceRef string   `json:"source_ref"`
	Author    string   `json:"author,omitempty"`
	Text      string   `json:"text"`
	MediaURLs []string `json:"media_urls,omitempty"`
	Mentions  []string `json:"mentions,omitempty"`
}

// Handle references a finished transcript.
type Handle struct {
	RunID string
	URI   string
}

// Engine is the transcription contract the stage handler depends on.
type Engine interface {
	Submit(ctx context.Context, req Request) (Handle, error)
}

// Client talks to the workflow engine HTTP API.
type Client struct {
	api          *services.JSONClient
	timeout      time.Duration
	pollInterval time.Duration
}

// NewClient builds a Client from the [transcription] config section.
func NewClient(cfg config.Service, client services.HTTPDoer) *Client {
	return &Client{
		api:          services.NewJSONClient(serviceName, cfg.BaseURL, cfg.APIKey, client),
		timeout:      cfg.TimeoutDuration(),
		pollInterval: cfg.PollDuration(),
	}
}

type runResponse struct {
	services.RunStatus
	TranscriptURI string `json:"transcript_uri"`
}

// Submit starts a transcription run and blocks until it completes, fails, or
// the configured timeout elapses.
func (c *Client) Submit(ctx context.Context, req Request) (Handle, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var run runResponse
	if err := c.api.Do(ctx, "submit", http.MethodPost, "/v1/transcriptions", req, &run); err != nil {
		return Handle{}, err
	}
	if run.ID == "" {
		return Handle{}, services.Wrap(services.ErrPermanent, serviceName, "submit", "response missing run id", nil)
	}

	runID := run.ID
	_, err := services.PollRun(ctx, serviceName, c.pollInterval, func(ctx context.Context) (services.RunStatus, error) {
		if run.Status == services.RunCompleted || run.Status == services.RunFailed {
			return run.RunStatus, nil
		}
		run = runResponse{}
		if err := c.api.Do(ctx, "poll", http.MethodGet, "/v1/transcriptions/"+url.PathEscape(runID), nil, &run); err != nil {
			return services.RunStatus{}, err
		}
		return run.RunStatus, nil
	})
	if err != nil {
		return Handle{}, err
	}
	if run.TranscriptURI == "" {
		return Handle{}, services.Wrap(services.ErrPermanent, serviceName, "poll", "completed run has no transcript_uri", nil)
	}
	return Handle{RunID: runID, URI: run.TranscriptURI}, nil
}
