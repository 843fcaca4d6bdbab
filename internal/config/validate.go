package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFeed(); err != nil {
		return err
	}
	if err := validateService("transcription", c.Transcription); err != nil {
		return err
	}
	if err := validateService("generation", c.Generation); err != nil {
		return err
	}
	if err := c.validatePublisher(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateFeed() error {
	if err := validateURL("feed.base_url", c.Feed.BaseURL); err != nil {
		return err
	}
	if c.Feed.ChannelID == "" {
		return errors.New("feed.channel_id must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"feed.follower_limit":      c.Feed.FollowerLimit,
		"feed.cast_limit":          c.Feed.CastLimit,
		"feed.total_cast_limit":    c.Feed.TotalCastLimit,
		"feed.poll_interval":       c.Feed.PollInterval,
		"feed.request_timeout":     c.Feed.RequestTimeout,
		"feed.max_pages_per_poll":  c.Feed.MaxPagesPerPoll,
		"feed.requests_per_minute": c.Feed.RequestsPerMin,
	}); err != nil {
		return err
	}
	for _, pattern := range c.Feed.ExcludeAuthors {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("feed.exclude_authors: invalid pattern %q", pattern)
		}
	}
	return nil
}

func validateService(section string, svc Service) error {
	if svc.BaseURL != "" {
		if err := validateURL(section+".base_url", svc.BaseURL); err != nil {
			return err
		}
	}
	if err := ensurePositiveMap(map[string]int{
		section + ".timeout":         svc.Timeout,
		section + ".poll_interval":   svc.PollInterval,
		section + ".max_concurrency": svc.MaxConcurrency,
	}); err != nil {
		return err
	}
	if svc.MaxAttempts < 0 {
		return fmt.Errorf("%s.max_attempts must be >= 0", section)
	}
	return nil
}

func (c *Config) validatePublisher() error {
	switch c.Publisher.Kind {
	case PublisherKindHTTP:
		return validateService("publisher", c.Publisher.Service)
	case PublisherKindS3:
		if c.Publisher.Bucket == "" {
			return errors.New("publisher.bucket must be set when publisher.kind is s3")
		}
		if c.Publisher.Endpoint != "" {
			if err := validateURL("publisher.endpoint", c.Publisher.Endpoint); err != nil {
				return err
			}
		}
		if c.Publisher.MaxUploadMB <= 0 {
			return errors.New("publisher.max_upload_mb must be positive")
		}
		if (c.Publisher.AccessKeyID == "") != (c.Publisher.SecretAccessKey == "") {
			return errors.New("publisher.access_key_id and publisher.secret_access_key must be set together")
		}
		return validateService("publisher", c.Publisher.Service)
	default:
		return fmt.Errorf("publisher.kind: unsupported value %q (use http or s3)", c.Publisher.Kind)
	}
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":  c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.shutdown_grace":       c.Workflow.ShutdownGrace,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts <= 0 {
		return errors.New("retry.max_attempts must be positive")
	}
	if c.Retry.BaseDelayMS <= 0 {
		return errors.New("retry.base_delay_ms must be positive")
	}
	if c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return errors.New("retry.max_delay_ms must be >= retry.base_delay_ms")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter >= 1 {
		return errors.New("retry.jitter must be in [0, 1)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validateURL(key, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must be set", key)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", key)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s is missing a host", key)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
