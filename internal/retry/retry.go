package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"feedplay/internal/config"
	"feedplay/internal/logging"
	"feedplay/internal/prefetch"
	"feedplay/internal/services"
)

// Policy describes the backoff schedule. The delay before retry n (1-based)
// is InitialDelay * Multiplier^(n-1), capped at MaxDelay, with no jitter.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// Retryable decides whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool
	// NewTimer supplies the wait timer for one Do call; nil uses a real timer.
	NewTimer func() backoff.Timer
	// OnRetry is called before each wait with the upcoming attempt number.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns 3 retries starting at 1s, doubling, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     10 * time.Second,
		Retryable:    IsRetryable,
	}
}

// uncapped stands in for MaxDelay when the policy sets no ceiling.
const uncapped = time.Duration(math.MaxInt64 / 4)

// backOff returns a fresh exponential schedule for p, unbounded in count.
func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(p.InitialDelay, 0)
	b.RandomizationFactor = 0
	b.Multiplier = max(p.Multiplier, 1)
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = uncapped
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Delay returns the wait before retry attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.InitialDelay <= 0 {
		return 0
	}
	b := p.backOff()
	var d time.Duration
	for range attempt {
		d = b.NextBackOff()
	}
	return d
}

// Do calls fn until it succeeds, the error is not retryable, retries are
// exhausted, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	retries := max(p.MaxRetries, 0)
	var (
		calls     int
		permanent bool
	)
	operation := func() error {
		calls++
		err := fn(ctx)
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(calls, err, delay)
		}
	}
	var timer backoff.Timer
	if p.NewTimer != nil {
		timer = p.NewTimer()
	}
	schedule := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(retries)), ctx)
	err := backoff.RetryNotifyWithTimer(operation, schedule, notify, timer)
	if err == nil || permanent || retries == 0 || ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("failed after %d attempts: %w", calls, err)
}

var retryableMessages = []string{
	"network request failed",
	"timeout",
	"connection",
	"econnrefused",
	"etimedout",
	"enotfound",
}

// IsRetryable reports whether err looks transient: errors tagged
// services.ErrTransient, deadline and connection errnos, and messages
// mentioning timeouts or connection failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, services.ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range retryableMessages {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// Fetcher wraps a prefetch.Fetcher with a retry policy.
type Fetcher struct {
	next   prefetch.Fetcher
	policy Policy
	logger *slog.Logger
}

// NewFetcher returns next wrapped with policy. Retries are logged at debug.
func NewFetcher(next prefetch.Fetcher, policy Policy, logger *slog.Logger) *Fetcher {
	return &Fetcher{next: next, policy: policy, logger: logging.NewComponentLogger(logger, "retry")}
}

// Fetch retries next.Fetch according to the policy.
func (f *Fetcher) Fetch(ctx context.Context, url string) error {
	p := f.policy
	userHook := p.OnRetry
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		f.logger.Debug("retrying fetch",
			logging.String("url", url),
			logging.Int("attempt", attempt),
			logging.Int("max_retries", p.MaxRetries),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if userHook != nil {
			userHook(attempt, err, delay)
		}
	}
	return Do(ctx, p, func(ctx context.Context) error {
		return f.next.Fetch(ctx, url)
	})
}

// FromConfig builds a policy from the [retry] config section. A disabled
// section yields a policy with no retries.
func FromConfig(cfg config.Retry) Policy {
	p := DefaultPolicy()
	if !cfg.Enabled {
		p.MaxRetries = 0
		return p
	}
	p.MaxRetries = cfg.MaxRetries
	p.InitialDelay = time.Duration(cfg.InitialDelayMs) * time.Millisecond
	p.Multiplier = cfg.BackoffMultiplier
	p.MaxDelay = time.Duration(cfg.MaxDelayMs) * time.Millisecond
	return p
}
