package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Feed contains configuration for the cast feed proxy.
type Feed struct {
	BaseURL         string   `toml:"base_url"`
	ChannelID       string   `toml:"channel_id"`
	FollowerLimit   int      `toml:"follower_limit"`
	CastLimit       int      `toml:"cast_limit"`
	TotalCastLimit  int      `toml:"total_cast_limit"`
	PollInterval    int      `toml:"poll_interval"`
	RequestTimeout  int      `toml:"request_timeout"`
	RequestsPerMin  int      `toml:"requests_per_minute"`
	ExcludeAuthors  []string `toml:"exclude_authors"`
	MaxPagesPerPoll int      `toml:"max_pages_per_poll"`
}

// Service describes one external HTTP service the pipeline dispatches to.
type Service struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Timeout        int    `toml:"timeout"`
	PollInterval   int    `toml:"poll_interval"`
	MaxConcurrency int    `toml:"max_concurrency"`
	MaxAttempts    int    `toml:"max_attempts"`
}

// Publisher contains the publishing backend configuration. Kind selects
// between the HTTP publisher and the S3 object store backend.
type Publisher struct {
	Service
	Kind              string `toml:"kind"`
	Bucket            string `toml:"bucket"`
	Prefix            string `toml:"prefix"`
	Region            string `toml:"region"`
	Endpoint          string `toml:"endpoint"`
	ForcePathStyle    bool   `toml:"force_path_style"`
	AccessKeyID       string `toml:"access_key_id"`
	SecretAccessKey   string `toml:"secret_access_key"`
	PublicURLTemplate string `toml:"public_url_template"`
	MaxUploadMB       int    `toml:"max_upload_mb"`
}

// MaxUploadBytes is the largest video the S3 backend buffers for upload.
func (p Publisher) MaxUploadBytes() int64 {
	return int64(p.MaxUploadMB) << 20
}

// Workflow contains configuration for orchestrator timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	ShutdownGrace      int `toml:"shutdown_grace"`
}

// Retry contains the backoff policy applied between transient failures.
type Retry struct {
	MaxAttempts int     `toml:"max_attempts"`
	BaseDelayMS int     `toml:"base_delay_ms"`
	MaxDelayMS  int     `toml:"max_delay_ms"`
	Jitter      float64 `toml:"jitter"`
}

// API contains the daemon HTTP API configuration.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Published      bool   `toml:"published"`
	Failures       bool   `toml:"failures"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for castreel.
//
// Configuration sections by subsystem:
//   - Paths: data (queue database, lock) and log directories
//   - Feed: cast feed proxy location, paging, and polling cadence
//   - Transcription / Generation: workflow engine and generation backend
//   - Publisher: http or s3 publishing backend
//   - Workflow: orchestrator polling, heartbeats, shutdown grace
//   - Retry: default backoff policy and attempt limit
//   - API: daemon HTTP API bind address
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Feed          Feed          `toml:"feed"`
	Transcription Service       `toml:"transcription"`
	Generation    Service       `toml:"generation"`
	Publisher     Publisher     `toml:"publisher"`
	Workflow      Workflow      `toml:"workflow"`
	Retry         Retry         `toml:"retry"`
	API           API           `toml:"api"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("castreel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the SQLite job database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockPath returns the location of the single-instance daemon lock.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "castreeld.lock")
}

// BackoffBase returns the base retry delay.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Retry.BaseDelayMS) * time.Millisecond
}

// BackoffMax returns the retry delay cap.
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Retry.MaxDelayMS) * time.Millisecond
}

// AttemptLimit resolves the max attempts for a service, falling back to [retry].
func (c *Config) AttemptLimit(svc Service) int {
	if svc.MaxAttempts > 0 {
		return svc.MaxAttempts
	}
	return c.Retry.MaxAttempts
}

// TimeoutDuration returns the per-call timeout for a service.
func (s Service) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// PollDuration returns how often a submitted run is polled for completion.
func (s Service) PollDuration() time.Duration {
	return time.Duration(s.PollInterval) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
