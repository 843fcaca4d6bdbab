package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"castreel/internal/config"
	"castreel/internal/queue"
	"castreel/internal/services"
)

const clientService = "castreeld"

// ErrDaemonUnavailable is returned when the daemon API cannot be reached.
var ErrDaemonUnavailable = errors.New("castreel daemon is not reachable")

// Client calls the daemon HTTP API.
type Client struct {
	json *services.JSONClient
}

// NewClient builds a client for the API bound at cfg.API.Bind.
func NewClient(cfg config.API, doer services.HTTPDoer) *Client {
	return &Client{json: services.NewJSONClient(clientService, BaseURL(cfg.Bind), cfg.Token, doer)}
}

// BaseURL turns a bind address into an http URL. Wildcard hosts dial
// loopback.
func BaseURL(bind string) string {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return ""
	}
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return strings.TrimRight(bind, "/")
	}
	switch {
	case strings.HasPrefix(bind, ":"):
		bind = "127.0.0.1" + bind
	case strings.HasPrefix(bind, "0.0.0.0:"):
		bind = "127.0.0.1" + strings.TrimPrefix(bind, "0.0.0.0")
	}
	return "http://" + bind
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var out DaemonStatus
	if err := c.do(ctx, "status", http.MethodGet, "/api/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Metrics fetches job counts.
func (c *Client) Metrics(ctx context.Context) (*Metrics, error) {
	var out Metrics
	if err := c.do(ctx, "metrics", http.MethodGet, "/api/metrics", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListJobs lists jobs, optionally filtered by state.
func (c *Client) ListJobs(ctx context.Context, states ...queue.State) ([]Job, error) {
	path := "/api/jobs"
	if len(states) > 0 {
		values := url.Values{}
		for _, state := range states {
			values.Add("state", string(state))
		}
		path += "?" + values.Encode()
	}
	var out JobListResponse
	if err := c.do(ctx, "list", http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// GetJob fetches one job. A missing job yields queue.ErrNotFound.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var out JobResponse
	if err := c.do(ctx, "get", http.MethodGet, "/api/jobs/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

// RetryJob asks the daemon to re-queue a failed job at its failed stage.
func (c *Client) RetryJob(ctx context.Context, id string) (*Job, error) {
	var out JobResponse
	if err := c.do(ctx, "retry", http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/retry", &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (*NotificationResponse, error) {
	var out NotificationResponse
	if err := c.do(ctx, "test_notification", http.MethodPost, "/api/notifications/test", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, out any) error {
	err := c.json.Do(ctx, operation, method, path, nil, out)
	if err == nil {
		return nil
	}
	_, _, status, ok := services.Details(err)
	switch {
	case ok && status == http.StatusNotFound:
		return fmt.Errorf("%w: %w", queue.ErrNotFound, err)
	case ok && status == http.StatusConflict:
		return fmt.Errorf("%w: %w", queue.ErrStaleState, err)
	case ok && status == 0 && errors.Is(err, services.ErrTransient):
		return fmt.Errorf("%w: %w", ErrDaemonUnavailable, err)
	}
	return err
}
