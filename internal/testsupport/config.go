package testsupport

import (
	"path/filepath"
	"testing"
	"time"

	"feedplay/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Strict invariants are on so a double holder fails the test loudly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Playback.StrictInvariants = true
	cfgVal.Retry.Enabled = false

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

// WithSettleDelay overrides the Loading to Ready settle window.
func WithSettleDelay(d time.Duration) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Playback.SettleMs = int(d / time.Millisecond)
	}
}

// WithAutoplay toggles autoplay.
func WithAutoplay(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Playback.Autoplay = enabled
	}
}

// WithMaxConcurrent overrides the prefetch concurrency cap.
func WithMaxConcurrent(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Prefetch.MaxConcurrent = n
	}
}

// WithPrefetchDisabled turns prefetching off.
func WithPrefetchDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Prefetch.Enabled = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
