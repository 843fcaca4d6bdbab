package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFeed()
	c.normalizeService(&c.Transcription, "CASTREEL_TRANSCRIPTION_API_KEY")
	c.normalizeService(&c.Generation, "CASTREEL_GENERATION_API_KEY")
	c.normalizePublisher()
	c.normalizeLogging()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.Token = strings.TrimSpace(c.API.Token)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeFeed() {
	c.Feed.BaseURL = strings.TrimSpace(c.Feed.BaseURL)
	c.Feed.ChannelID = strings.TrimSpace(c.Feed.ChannelID)
	patterns := c.Feed.ExcludeAuthors[:0]
	for _, pattern := range c.Feed.ExcludeAuthors {
		if trimmed := strings.ToLower(strings.TrimSpace(pattern)); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	c.Feed.ExcludeAuthors = patterns
}

func (c *Config) normalizeService(svc *Service, keyEnv string) {
	svc.BaseURL = strings.TrimRight(strings.TrimSpace(svc.BaseURL), "/")
	svc.APIKey = strings.TrimSpace(svc.APIKey)
	if svc.APIKey == "" && keyEnv != "" {
		if value, ok := os.LookupEnv(keyEnv); ok {
			svc.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizePublisher() {
	c.normalizeService(&c.Publisher.Service, "CASTREEL_PUBLISHER_API_KEY")
	c.Publisher.Kind = strings.ToLower(strings.TrimSpace(c.Publisher.Kind))
	if c.Publisher.Kind == "" {
		c.Publisher.Kind = defaultPublisherKind
	}
	c.Publisher.Bucket = strings.TrimSpace(c.Publisher.Bucket)
	c.Publisher.Prefix = strings.Trim(strings.TrimSpace(c.Publisher.Prefix), "/")
	c.Publisher.Region = strings.TrimSpace(c.Publisher.Region)
	c.Publisher.Endpoint = strings.TrimSpace(c.Publisher.Endpoint)
	if c.Publisher.AccessKeyID == "" {
		c.Publisher.AccessKeyID = strings.TrimSpace(os.Getenv("CASTREEL_S3_ACCESS_KEY_ID"))
	}
	if c.Publisher.SecretAccessKey == "" {
		c.Publisher.SecretAccessKey = strings.TrimSpace(os.Getenv("CASTREEL_S3_SECRET_ACCESS_KEY"))
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
