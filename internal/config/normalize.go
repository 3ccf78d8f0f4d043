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
	c.normalizeVisibility()
	c.normalizePrefetch()
	c.normalizeRetry()
	c.normalizeAnalytics()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("FEEDPLAY_STATE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.StateDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeVisibility() {
	// Accept percentages for people who copy values from viewability configs.
	if c.Visibility.PostThreshold > 1 && c.Visibility.PostThreshold <= 100 {
		c.Visibility.PostThreshold /= 100
	}
	if c.Visibility.CarouselThreshold > 1 && c.Visibility.CarouselThreshold <= 100 {
		c.Visibility.CarouselThreshold /= 100
	}
	if c.Visibility.MinDwellMs > 0 {
		if c.Visibility.PostDwellMs <= 0 {
			c.Visibility.PostDwellMs = c.Visibility.MinDwellMs
		}
		if c.Visibility.CarouselDwellMs <= 0 {
			c.Visibility.CarouselDwellMs = c.Visibility.MinDwellMs
		}
	}
}

func (c *Config) normalizePrefetch() {
	if c.Prefetch.FetchTimeoutSeconds < 0 {
		c.Prefetch.FetchTimeoutSeconds = 0
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.BackoffMultiplier < 1 {
		c.Retry.BackoffMultiplier = defaultRetryBackoffMultiplier
	}
	if c.Retry.MaxDelayMs > 0 && c.Retry.InitialDelayMs > c.Retry.MaxDelayMs {
		c.Retry.InitialDelayMs = c.Retry.MaxDelayMs
	}
}

func (c *Config) normalizeAnalytics() {
	if c.Analytics.BatchSize <= 0 {
		c.Analytics.BatchSize = defaultAnalyticsBatchSize
	}
	if c.Analytics.FlushIntervalMs <= 0 {
		c.Analytics.FlushIntervalMs = defaultAnalyticsFlushMs
	}
	if c.Analytics.BufferSize < c.Analytics.BatchSize {
		c.Analytics.BufferSize = max(defaultAnalyticsBufferSize, c.Analytics.BatchSize)
	}
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("FEEDPLAY_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "json", "console":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
