package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"castreel/internal/config"
)

const userAgent = "castreel/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyPublished(ctx context.Context, sourceRef, ref string) error
	NotifyJobFailed(ctx context.Context, sourceRef, stage, kind, message string) error
	NotifyQueueStarted(ctx context.Context, count int) error
	NotifyQueueCompleted(ctx context.Context, published, failed int, duration time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		published: cfg.Notifications.Published,
		failures:  cfg.Notifications.Failures,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	published bool
	failures  bool
}

func (n *ntfyService) NotifyPublished(ctx context.Context, sourceRef, ref string) error {
	if !n.published {
		return nil
	}
	message := fmt.Sprintf("Published %s", strings.TrimSpace(sourceRef))
	if ref = strings.TrimSpace(ref); ref != "" {
		message += "\n" + ref
	}
	return n.send(ctx, payload{
		title:   "castreel - Published",
		message: message,
		tags:    []string{"castreel", "publish", "completed"},
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, sourceRef, stage, kind, message string) error {
	if !n.failures {
		return nil
	}
	var b strings.Builder
	b.WriteString("Failed")
	if sourceRef = strings.TrimSpace(sourceRef); sourceRef != "" {
		b.WriteString(" ")
		b.WriteString(sourceRef)
	}
	if stage = strings.TrimSpace(stage); stage != "" {
		b.WriteString(" at ")
		b.WriteString(stage)
	}
	if kind = strings.TrimSpace(kind); kind != "" {
		fmt.Fprintf(&b, " (%s)", kind)
	}
	if message = strings.TrimSpace(message); message != "" {
		b.WriteString(": ")
		b.WriteString(message)
	}
	return n.send(ctx, payload{
		title:    "castreel - Job Failed",
		message:  b.String(),
		tags:     []string{"castreel", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyQueueStarted(ctx context.Context, count int) error {
	return n.send(ctx, payload{
		title:   "castreel - Queue Started",
		message: fmt.Sprintf("Started processing %d jobs", count),
		tags:    []string{"castreel", "queue", "started"},
	})
}

func (n *ntfyService) NotifyQueueCompleted(ctx context.Context, published, failed int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	title := "castreel - Queue Complete"
	message := fmt.Sprintf("Queue drained: %d published in %s", published, duration)
	if failed > 0 {
		title = "castreel - Queue Complete (with errors)"
		message = fmt.Sprintf("Queue drained: %d published, %d failed in %s", published, failed, duration)
	}
	return n.send(ctx, payload{
		title:   title,
		message: message,
		tags:    []string{"castreel", "queue", "completed"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "castreel - Test",
		message:  "Notification system test",
		tags:     []string{"castreel", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyPublished(context.Context, string, string) error                 { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string, string, string) error { return nil }
func (noopService) NotifyQueueStarted(context.Context, int) error                         { return nil }
func (noopService) NotifyQueueCompleted(context.Context, int, int, time.Duration) error   { return nil }
func (noopService) TestNotification(context.Context) error                                { return nil }
