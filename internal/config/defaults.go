package config

const (
	defaultConfigPath              = "~/.config/castreel/config.toml"
	defaultDataDir                 = "~/.local/share/castreel"
	defaultLogDir                  = "~/.local/share/castreel/logs"
	defaultFeedBaseURL             = "https://warpley.netlify.app/.netlify/functions/warpcast-api"
	defaultFeedChannelID           = "page"
	defaultFeedFollowerLimit       = 30
	defaultFeedCastLimit           = 50
	defaultFeedTotalCastLimit      = 100
	defaultFeedPollInterval        = 60
	defaultFeedRequestTimeout      = 30
	defaultFeedRequestsPerMinute   = 20
	defaultFeedMaxPagesPerPoll     = 5
	defaultServiceTimeout          = 600
	defaultServicePollInterval     = 5
	defaultTranscriptionConcurrent = 2
	defaultGenerationConcurrent    = 1
	defaultPublisherConcurrent     = 2
	defaultPublisherKind           = PublisherKindHTTP
	defaultPublisherMaxUploadMB    = 512
	defaultWorkflowPollInterval    = 2
	defaultErrorRetryInterval      = 10
	defaultHeartbeatInterval       = 15
	defaultHeartbeatTimeout        = 120
	defaultShutdownGrace           = 30
	defaultRetryMaxAttempts        = 5
	defaultRetryBaseDelayMS        = 2000
	defaultRetryMaxDelayMS         = 300000
	defaultRetryJitter             = 0.2
	defaultAPIBind                 = "127.0.0.1:7490"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
)

// Publisher backends.
const (
	PublisherKindHTTP = "http"
	PublisherKindS3   = "s3"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Feed: Feed{
			BaseURL:         defaultFeedBaseURL,
			ChannelID:       defaultFeedChannelID,
			FollowerLimit:   defaultFeedFollowerLimit,
			CastLimit:       defaultFeedCastLimit,
			TotalCastLimit:  defaultFeedTotalCastLimit,
			PollInterval:    defaultFeedPollInterval,
			RequestTimeout:  defaultFeedRequestTimeout,
			RequestsPerMin:  defaultFeedRequestsPerMinute,
			MaxPagesPerPoll: defaultFeedMaxPagesPerPoll,
		},
		Transcription: Service{
			Timeout:        defaultServiceTimeout,
			PollInterval:   defaultServicePollInterval,
			MaxConcurrency: defaultTranscriptionConcurrent,
		},
		Generation: Service{
			Timeout:        defaultServiceTimeout,
			PollInterval:   defaultServicePollInterval,
			MaxConcurrency: defaultGenerationConcurrent,
		},
		Publisher: Publisher{
			Service: Service{
				Timeout:        defaultServiceTimeout,
				PollInterval:   defaultServicePollInterval,
				MaxConcurrency: defaultPublisherConcurrent,
			},
			Kind:        defaultPublisherKind,
			MaxUploadMB: defaultPublisherMaxUploadMB,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultWorkflowPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			ShutdownGrace:      defaultShutdownGrace,
		},
		Retry: Retry{
			MaxAttempts: defaultRetryMaxAttempts,
			BaseDelayMS: defaultRetryBaseDelayMS,
			MaxDelayMS:  defaultRetryMaxDelayMS,
			Jitter:      defaultRetryJitter,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			Published:      true,
			Failures:       true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
