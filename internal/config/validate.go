package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePlayback(); err != nil {
		return err
	}
	if err := c.validateVisibility(); err != nil {
		return err
	}
	if err := c.validatePrefetch(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePlayback() error {
	if c.Playback.SettleMs < 0 {
		return errors.New("playback.settle_ms must be zero or positive")
	}
	if c.Playback.InitialPostIndex < 0 {
		return errors.New("playback.initial_post_index must be zero or positive")
	}
	return nil
}

func (c *Config) validateVisibility() error {
	if c.Visibility.PostThreshold <= 0 || c.Visibility.PostThreshold > 1 {
		return fmt.Errorf("visibility.post_threshold must be in (0, 1], got %v", c.Visibility.PostThreshold)
	}
	if c.Visibility.CarouselThreshold <= 0 || c.Visibility.CarouselThreshold > 1 {
		return fmt.Errorf("visibility.carousel_threshold must be in (0, 1], got %v", c.Visibility.CarouselThreshold)
	}
	if c.Visibility.PostDwellMs < 0 || c.Visibility.CarouselDwellMs < 0 {
		return errors.New("visibility dwell times must be zero or positive")
	}
	return nil
}

func (c *Config) validatePrefetch() error {
	if c.Prefetch.MaxConcurrent < 1 {
		return fmt.Errorf("prefetch.max_concurrent must be at least 1, got %d", c.Prefetch.MaxConcurrent)
	}
	if c.Prefetch.Distance < 1 {
		return fmt.Errorf("prefetch.distance must be at least 1, got %d", c.Prefetch.Distance)
	}
	return nil
}

func (c *Config) validateRetry() error {
	if !c.Retry.Enabled {
		return nil
	}
	if c.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries must be zero or positive")
	}
	if c.Retry.InitialDelayMs < 0 || c.Retry.MaxDelayMs < 0 {
		return errors.New("retry delays must be zero or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
