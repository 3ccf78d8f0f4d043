package retry_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"feedplay/internal/config"
	"feedplay/internal/prefetch"
	"feedplay/internal/retry"
	"feedplay/internal/services"
)

// recordingTimer fires immediately and keeps every requested delay.
type recordingTimer struct {
	delays *[]time.Duration
	c      chan time.Time
}

func (r *recordingTimer) Start(d time.Duration) {
	*r.delays = append(*r.delays, d)
	r.c <- time.Time{}
}

func (r *recordingTimer) Stop() {}

func (r *recordingTimer) C() <-chan time.Time { return r.c }

func recordingTimers(delays *[]time.Duration) func() backoff.Timer {
	return func() backoff.Timer {
		return &recordingTimer{delays: delays, c: make(chan time.Time, 1)}
	}
}

func TestDelaySchedule(t *testing.T) {
	p := retry.DefaultPolicy()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Fatalf("Delay(%d) = %s, want %s", i+1, got, w)
		}
	}
	if p.Delay(0) != 0 {
		t.Fatal("attempt 0 must not wait")
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	var delays []time.Duration
	p := retry.DefaultPolicy()
	p.NewTimer = recordingTimers(&delays)

	calls := 0
	err := retry.Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("network request failed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("unexpected delays %v", delays)
	}
}

func TestDoStopsAfterMaxRetries(t *testing.T) {
	var delays []time.Duration
	p := retry.DefaultPolicy()
	p.NewTimer = recordingTimers(&delays)
	var attempts []int
	p.OnRetry = func(attempt int, _ error, _ time.Duration) { attempts = append(attempts, attempt) }

	calls := 0
	sentinel := errors.New("connection reset by peer")
	err := retry.Do(context.Background(), p, func(context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) || !strings.Contains(err.Error(), "failed after 4 attempts") {
		t.Fatalf("expected last error wrapped, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 1 try plus 3 retries, got %d calls", calls)
	}
	if len(attempts) != 3 || attempts[2] != 3 {
		t.Fatalf("unexpected retry callbacks %v", attempts)
	}
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	var delays []time.Duration
	p := retry.DefaultPolicy()
	p.NewTimer = recordingTimers(&delays)
	calls := 0
	err := retry.Do(context.Background(), p, func(context.Context) error {
		calls++
		return errors.New("404 not found")
	})
	if err == nil || calls != 1 || len(delays) != 0 {
		t.Fatalf("permanent error retried: calls=%d delays=%v err=%v", calls, delays, err)
	}
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.DefaultPolicy()
	p.InitialDelay = time.Hour
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- retry.Do(ctx, p, func(context.Context) error {
			calls++
			return errors.New("timeout")
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not stop on cancellation")
	}
}

func TestDoWithoutRetriesReturnsFirstError(t *testing.T) {
	p := retry.DefaultPolicy()
	p.MaxRetries = 0
	sentinel := errors.New("timeout")
	calls := 0
	err := retry.Do(context.Background(), p, func(context.Context) error {
		calls++
		return sentinel
	})
	if err != sentinel || calls != 1 {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestDelayWithoutCeiling(t *testing.T) {
	p := retry.Policy{InitialDelay: 100 * time.Millisecond, Multiplier: 3}
	if got := p.Delay(4); got != 2700*time.Millisecond {
		t.Fatalf("Delay(4) = %s", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Network request failed"), true},
		{errors.New("dial tcp: ECONNREFUSED"), true},
		{errors.New("getaddrinfo ENOTFOUND cdn"), true},
		{fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{services.Wrap(services.ErrTransient, "cdn", "get", "throttled", nil), true},
		{errors.New("unsupported codec"), false},
	}
	for _, tt := range tests {
		if got := retry.IsRetryable(tt.err); got != tt.want {
			t.Fatalf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestFetcherWrapsPrefetchFetcher(t *testing.T) {
	var delays []time.Duration
	p := retry.DefaultPolicy()
	p.NewTimer = recordingTimers(&delays)
	calls := 0
	inner := prefetch.FetcherFunc(func(_ context.Context, url string) error {
		calls++
		if url != "clip.mp4" {
			t.Fatalf("unexpected url %q", url)
		}
		if calls == 1 {
			return errors.New("ETIMEDOUT")
		}
		return nil
	})
	f := retry.NewFetcher(inner, p, nil)
	if err := f.Fetch(context.Background(), "clip.mp4"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls != 2 || len(delays) != 1 {
		t.Fatalf("calls=%d delays=%v", calls, delays)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().Retry
	p := retry.FromConfig(cfg)
	if p.MaxRetries != 3 || p.InitialDelay != time.Second || p.MaxDelay != 10*time.Second || p.Multiplier != 2 {
		t.Fatalf("unexpected policy %+v", p)
	}
	cfg.Enabled = false
	if p := retry.FromConfig(cfg); p.MaxRetries != 0 {
		t.Fatalf("disabled retry still retries: %d", p.MaxRetries)
	}
}
