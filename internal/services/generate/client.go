// Package generate drives the video generation backend.
package generate

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"castreel/internal/config"
	"castreel/internal/services"
)

const serviceName = "generation"

// Request asks the backend to render a video for a transcript.
type Request struct {
	JobID         string `json:"job_id"`
	SourceRef     string `json:"source_ref"`
	TranscriptURI string `json:"transcript_uri"`
	Caption       string `json:"caption,omitempty"`
}

// Handle references a rendered video.
type Handle struct {
	RunID string
	URI   string
}

// Backend is the generation contract the stage handler depends on.
type Backend interface {
	Submit(ctx context.Context, req Request) (Handle, error)
}

// Client talks to the generation backend HTTP API.
type Client struct {
	api          *services.JSONClient
	timeout      time.Duration
	pollInterval time.Duration
}

// NewClient builds a Client from the [generation] config section.
func NewClient(cfg config.Service, client services.HTTPDoer) *Client {
	return &Client{
		api:          services.NewJSONClient(serviceName, cfg.BaseURL, cfg.APIKey, client),
		timeout:      cfg.TimeoutDuration(),
		pollInterval: cfg.PollDuration(),
	}
}

type videoResponse struct {
	services.RunStatus
	VideoURI string `json:"video_uri"`
}

// Submit starts a render and waits for the video URI.
func (c *Client) Submit(ctx context.Context, req Request) (Handle, error) {
	if req.TranscriptURI == "" {
		return Handle{}, services.Wrap(services.ErrPermanent, serviceName, "submit", "transcript uri required", nil)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var video videoResponse
	if err := c.api.Do(ctx, "submit", http.MethodPost, "/v1/videos", req, &video); err != nil {
		return Handle{}, err
	}
	if video.ID == "" {
		return Handle{}, services.Wrap(services.ErrPermanent, serviceName, "submit", "response missing run id", nil)
	}

	runID := video.ID
	if _, err := services.PollRun(ctx, serviceName, c.pollInterval, func(ctx context.Context) (services.RunStatus, error) {
		if video.Status == services.RunCompleted || video.Status == services.RunFailed {
			return video.RunStatus, nil
		}
		video = videoResponse{}
		if err := c.api.Do(ctx, "poll", http.MethodGet, "/v1/videos/"+url.PathEscape(runID), nil, &video); err != nil {
			return services.RunStatus{}, err
		}
		return video.RunStatus, nil
	}); err != nil {
		return Handle{}, err
	}
	if video.VideoURI == "" {
		return Handle{}, services.Wrap(services.ErrPermanent, serviceName, "poll", "completed render has no video_uri", nil)
	}
	return Handle{RunID: runID, URI: video.VideoURI}, nil
}
