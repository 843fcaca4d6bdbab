package testsupport

import (
	"path/filepath"
	"testing"

	"castreel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry delays are shrunk to milliseconds and jitter is disabled so tests run
// fast and deterministically.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Feed.BaseURL = "http://feed.invalid"
	cfgVal.Transcription.BaseURL = "http://transcription.invalid"
	cfgVal.Generation.BaseURL = "http://generation.invalid"
	cfgVal.Publisher.BaseURL = "http://publisher.invalid"
	cfgVal.Retry.BaseDelayMS = 1
	cfgVal.Retry.MaxDelayMS = 8
	cfgVal.Retry.Jitter = 0
	cfgVal.Retry.MaxAttempts = 3
	cfgVal.Workflow.ShutdownGrace = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// BaseDir returns the temp directory backing cfg's paths.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// WithMaxAttempts overrides the default retry attempt limit.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry.MaxAttempts = n
	}
}

// WithConcurrency sets the per-stage concurrency limits.
func WithConcurrency(transcription, generation, publisher int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transcription.MaxConcurrency = transcription
		b.cfg.Generation.MaxConcurrency = generation
		b.cfg.Publisher.MaxConcurrency = publisher
	}
}

// WithNtfyTopic points notifications at the given endpoint.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}
