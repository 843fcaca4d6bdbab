package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPDoer describes the HTTP client used by adapters.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxErrorBody = 512

// StatusMarker maps an HTTP status to a failure marker. Timeouts, throttling
// and server errors are transient; every other non-2xx status is permanent.
func StatusMarker(status int) error {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return ErrTransient
	case status >= 500:
		return ErrTransient
	default:
		return ErrPermanent
	}
}

// JSONClient issues bearer-authenticated JSON requests against one service.
type JSONClient struct {
	Service string
	BaseURL string
	APIKey  string
	Client  HTTPDoer
}

// NewJSONClient builds a JSONClient with its own http.Client. The per-call
// deadline is applied by callers through the context.
func NewJSONClient(service, baseURL, apiKey string, client HTTPDoer) *JSONClient {
	if client == nil {
		client = &http.Client{}
	}
	return &JSONClient{
		Service: service,
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:  strings.TrimSpace(apiKey),
		Client:  client,
	}
}

// Do sends body (when non-nil) as JSON to method BaseURL+path and decodes the
// response into out (when non-nil). Errors are classified ServiceErrors.
func (c *JSONClient) Do(ctx context.Context, operation, method, path string, body, out any) error {
	if c.BaseURL == "" {
		return Wrap(ErrConfiguration, c.Service, operation, "base url not configured", nil)
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return Wrap(ErrPermanent, c.Service, operation, "encode request", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return Wrap(ErrPermanent, c.Service, operation, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if rid, ok := RequestIDFromContext(ctx); ok {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return Wrap(ErrTransient, c.Service, operation, "request failed", err)
	}
	defer resp.Body.Close()
	return DecodeResponse(c.Service, operation, resp, out)
}

// DecodeResponse classifies resp and decodes a JSON body into out when the
// status is 2xx. A body that does not decode is a permanent failure.
func DecodeResponse(service, operation string, resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return WrapStatus(service, operation, strings.TrimSpace(string(snippet)), resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isContextError(err) {
			return Wrap(ErrTransient, service, operation, "read response", err)
		}
		return Wrap(ErrPermanent, service, operation, "malformed response", err)
	}
	return nil
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// RunStatus is the common shape of an asynchronous engine run.
type RunStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Run states reported by asynchronous engines.
const (
	RunQueued    = "queued"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// PollRun repeatedly calls fetch until the run reaches a terminal state or ctx
// ends. A failed run is permanent; an expired ctx is transient.
func PollRun(ctx context.Context, service string, interval time.Duration, fetch func(context.Context) (RunStatus, error)) (RunStatus, error) {
	for {
		status, err := fetch(ctx)
		if err != nil {
			return status, err
		}
		switch strings.ToLower(status.Status) {
		case RunCompleted:
			return status, nil
		case RunFailed:
			msg := status.Error
			if msg == "" {
				msg = "run failed"
			}
			return status, Wrap(ErrPermanent, service, "poll", fmt.Sprintf("run %s: %s", status.ID, msg), nil)
		case RunQueued, RunRunning, "":
		default:
			return status, Wrap(ErrPermanent, service, "poll", fmt.Sprintf("run %s: unknown status %q", status.ID, status.Status), nil)
		}
		if err := Sleep(ctx, interval); err != nil {
			return status, Wrap(ErrTransient, service, "poll", "run did not finish in time", err)
		}
	}
}
