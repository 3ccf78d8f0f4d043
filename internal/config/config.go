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
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Playback contains per-tile state machine settings.
type Playback struct {
	Autoplay         bool `toml:"autoplay"`
	SettleMs         int  `toml:"settle_ms"`
	InitialPostIndex int  `toml:"initial_post_index"`
	// StrictInvariants turns a double-holder detection into a panic instead of
	// last-writer-wins recovery. Intended for tests and development builds.
	StrictInvariants bool `toml:"strict_invariants"`
}

// Visibility contains viewport debounce settings. Thresholds are fractions
// of the item area (0..1).
type Visibility struct {
	PostThreshold     float64 `toml:"post_threshold"`
	CarouselThreshold float64 `toml:"carousel_threshold"`
	// MinDwellMs seeds PostDwellMs and CarouselDwellMs when they are unset.
	MinDwellMs      int `toml:"min_dwell_ms"`
	PostDwellMs     int `toml:"post_dwell_ms"`
	CarouselDwellMs int `toml:"carousel_dwell_ms"`
}

// Prefetch contains the bounded prefetch queue settings.
type Prefetch struct {
	Enabled             bool `toml:"enabled"`
	MaxConcurrent       int  `toml:"max_concurrent"`
	Distance            int  `toml:"distance"`
	NextPost            bool `toml:"next_post"`
	NextVideo           bool `toml:"next_video"`
	FetchTimeoutSeconds int  `toml:"fetch_timeout_seconds"`
}

// Retry contains the backoff policy wrapped around the fetch primitive.
type Retry struct {
	Enabled           bool    `toml:"enabled"`
	MaxRetries        int     `toml:"max_retries"`
	InitialDelayMs    int     `toml:"initial_delay_ms"`
	BackoffMultiplier float64 `toml:"backoff_multiplier"`
	MaxDelayMs        int     `toml:"max_delay_ms"`
}

// Analytics contains lifecycle event delivery settings.
type Analytics struct {
	Enabled         bool `toml:"enabled"`
	LogToConsole    bool `toml:"log_to_console"`
	Persist         bool `toml:"persist"`
	BatchSize       int  `toml:"batch_size"`
	FlushIntervalMs int  `toml:"flush_interval_ms"`
	BufferSize      int  `toml:"buffer_size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for feedplay.
//
// Configuration sections by subsystem:
//   - Paths: state (database, lock) and log directories
//   - Playback: autoplay, settle delay, initial post
//   - Visibility: post/carousel thresholds and dwell times
//   - Prefetch: concurrency cap, distance, next post/video toggles
//   - Retry: backoff policy for the fetch primitive
//   - Analytics: event batching and persistence
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Playback   Playback   `toml:"playback"`
	Visibility Visibility `toml:"visibility"`
	Prefetch   Prefetch   `toml:"prefetch"`
	Retry      Retry      `toml:"retry"`
	Analytics  Analytics  `toml:"analytics"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The bool reports
// whether the file existed; defaults are used when it did not.
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
		decoder.DisallowUnknownFields()
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

	projectPath, err := filepath.Abs("feedplay.toml")
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

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file holding analytics events and the
// prefetch ledger.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "feedplay.db")
}

// LockPath returns the lock file guarding single-writer access to the state dir.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "feedplay.lock")
}

// SettleDelay returns the Loading to Ready settle window.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Playback.SettleMs) * time.Millisecond
}

// PostDwell returns the dwell time for vertical feed visibility.
func (c *Config) PostDwell() time.Duration {
	return time.Duration(c.Visibility.PostDwellMs) * time.Millisecond
}

// CarouselDwell returns the dwell time for horizontal carousel visibility.
func (c *Config) CarouselDwell() time.Duration {
	return time.Duration(c.Visibility.CarouselDwellMs) * time.Millisecond
}

// FetchTimeout returns the per-task prefetch timeout; zero disables it.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Prefetch.FetchTimeoutSeconds) * time.Second
}

// FlushInterval returns the analytics batch flush interval.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Analytics.FlushIntervalMs) * time.Millisecond
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
