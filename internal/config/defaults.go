package config

const (
	defaultConfigPath             = "~/.config/feedplay/config.toml"
	defaultStateDir               = "~/.local/share/feedplay"
	defaultLogDir                 = "~/.local/share/feedplay/logs"
	defaultSettleMs               = 300
	defaultPostThreshold          = 0.8
	defaultCarouselThreshold      = 0.5
	defaultPostDwellMs            = 250
	defaultCarouselDwellMs        = 100
	defaultPrefetchMaxConcurrent  = 2
	defaultPrefetchDistance       = 1
	defaultFetchTimeoutSeconds    = 30
	defaultRetryMaxRetries        = 3
	defaultRetryInitialDelayMs    = 1000
	defaultRetryBackoffMultiplier = 2.0
	defaultRetryMaxDelayMs        = 10000
	defaultAnalyticsBatchSize     = 10
	defaultAnalyticsFlushMs       = 5000
	defaultAnalyticsBufferSize    = 256
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Playback: Playback{
			Autoplay: true,
			SettleMs: defaultSettleMs,
		},
		Visibility: Visibility{
			PostThreshold:     defaultPostThreshold,
			CarouselThreshold: defaultCarouselThreshold,
			PostDwellMs:       defaultPostDwellMs,
			CarouselDwellMs:   defaultCarouselDwellMs,
		},
		Prefetch: Prefetch{
			Enabled:             true,
			MaxConcurrent:       defaultPrefetchMaxConcurrent,
			Distance:            defaultPrefetchDistance,
			NextPost:            true,
			NextVideo:           true,
			FetchTimeoutSeconds: defaultFetchTimeoutSeconds,
		},
		Retry: Retry{
			Enabled:           true,
			MaxRetries:        defaultRetryMaxRetries,
			InitialDelayMs:    defaultRetryInitialDelayMs,
			BackoffMultiplier: defaultRetryBackoffMultiplier,
			MaxDelayMs:        defaultRetryMaxDelayMs,
		},
		Analytics: Analytics{
			Enabled:         true,
			LogToConsole:    true,
			Persist:         true,
			BatchSize:       defaultAnalyticsBatchSize,
			FlushIntervalMs: defaultAnalyticsFlushMs,
			BufferSize:      defaultAnalyticsBufferSize,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
