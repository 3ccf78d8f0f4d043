package simulate

import (
	"context"
	"sync"
	"time"

	"feedplay/internal/services"
)

// Fetcher is a simulated network: every fetch takes Latency of wall time
// and URLs listed as failing always return a transient error.
type Fetcher struct {
	latency time.Duration
	fail    map[string]struct{}

	mu    sync.Mutex
	calls map[string]int
}

// NewFetcher builds a fetcher from script settings.
func NewFetcher(settings FetchSettings) *Fetcher {
	f := &Fetcher{
		latency: time.Duration(settings.LatencyMs) * time.Millisecond,
		fail:    make(map[string]struct{}, len(settings.Fail)),
		calls:   make(map[string]int),
	}
	for _, url := range settings.Fail {
		f.fail[url] = struct{}{}
	}
	return f
}

// Fetch waits out the latency, honouring ctx, then succeeds or fails.
func (f *Fetcher) Fetch(ctx context.Context, url string) error {
	f.mu.Lock()
	f.calls[url]++
	f.mu.Unlock()

	if f.latency > 0 {
		timer := time.NewTimer(f.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if _, ok := f.fail[url]; ok {
		return services.Wrap(services.ErrTransient, "simulate", "fetch", url, nil)
	}
	return nil
}

// Calls returns how many times url was fetched.
func (f *Fetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}
