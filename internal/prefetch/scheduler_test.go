package prefetch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"feedplay/internal/prefetch"
)

// gatedFetcher blocks each fetch until the test releases it.
type gatedFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	order    []string
	gates    map[string]chan error
	started  chan string
	current  int
	peak     int
	fallback error
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{
		calls:   map[string]int{},
		gates:   map[string]chan error{},
		started: make(chan string, 64),
	}
}

func (f *gatedFetcher) gate(url string) chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.gates[url]
	if !ok {
		ch = make(chan error, 1)
		f.gates[url] = ch
	}
	return ch
}

func (f *gatedFetcher) Fetch(ctx context.Context, url string) error {
	gate := f.gate(url)
	f.mu.Lock()
	f.calls[url]++
	f.order = append(f.order, url)
	f.current++
	if f.current > f.peak {
		f.peak = f.current
	}
	f.mu.Unlock()
	f.started <- url

	var err error
	select {
	case err = <-gate:
	case <-ctx.Done():
		err = ctx.Err()
	}

	f.mu.Lock()
	f.current--
	f.mu.Unlock()
	return err
}

func (f *gatedFetcher) release(url string, err error) { f.gate(url) <- err }

func (f *gatedFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *gatedFetcher) peakConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

func expectStarted(t *testing.T, f *gatedFetcher, want string) {
	t.Helper()
	select {
	case got := <-f.started:
		if got != want {
			t.Fatalf("expected %s to start, got %s", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s to start", want)
	}
}

// expectStartedAny waits for len(want) starts in any order.
func expectStartedAny(t *testing.T, f *gatedFetcher, want ...string) {
	t.Helper()
	pending := make(map[string]bool, len(want))
	for _, w := range want {
		pending[w] = true
	}
	for range want {
		select {
		case got := <-f.started:
			if !pending[got] {
				t.Fatalf("unexpected start of %s, waiting for %v", got, want)
			}
			delete(pending, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %v to start", want)
		}
	}
}

func expectNoStart(t *testing.T, f *gatedFetcher) {
	t.Helper()
	select {
	case got := <-f.started:
		t.Fatalf("unexpected start of %s", got)
	case <-time.After(30 * time.Millisecond):
	}
}

func waitIdle(t *testing.T, s *prefetch.Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

func TestDuplicateScheduleFetchesOnce(t *testing.T) {
	f := newGatedFetcher()
	s := prefetch.NewScheduler(context.Background(), f, prefetch.Options{MaxConcurrent: 2})

	if !s.Schedule("a.mp4") {
		t.Fatal("first schedule rejected")
	}
	if s.Schedule("a.mp4") {
		t.Fatal("duplicate schedule accepted")
	}
	expectStarted(t, f, "a.mp4")
	if s.IsCached("a.mp4") {
		t.Fatal("url cached before the fetch resolved")
	}

	f.release("a.mp4", nil)
	waitIdle(t, s)
	if !s.IsCached("a.mp4") {
		t.Fatal("url not cached after success")
	}
	if s.Schedule("a.mp4") {
		t.Fatal("cached url re-enqueued")
	}
	if got := f.callCount("a.mp4"); got != 1 {
		t.Fatalf("fetch invoked %d times", got)
	}
}

func TestFiveTasksRespectCap(t *testing.T) {
	f := newGatedFetcher()
	s := prefetch.NewScheduler(context.Background(), f, prefetch.Options{MaxConcurrent: 2})
	urls := []string{"t1", "t2", "t3", "t4", "t5"}
	for _, u := range urls {
		s.Schedule(u)
	}
	expectStartedAny(t, f, "t1", "t2")
	expectNoStart(t, f)

	stats := s.Stats()
	if stats.InFlight != 2 || stats.Queued != 3 || stats.MaxConcurrent != 2 {
		t.Fatalf("unexpected stats after scheduling: %+v", stats)
	}

	f.release("t1", nil)
	expectStarted(t, f, "t3")
	expectNoStart(t, f)
	if stats := s.Stats(); stats.InFlight != 2 || stats.Queued != 2 {
		t.Fatalf("unexpected stats after first completion: %+v", stats)
	}

	for _, pair := range [][2]string{{"t2", "t4"}, {"t3", "t5"}} {
		f.release(pair[0], nil)
		expectStarted(t, f, pair[1])
	}
	f.release("t4", nil)
	f.release("t5", nil)
	waitIdle(t, s)

	if peak := f.peakConcurrent(); peak != 2 {
		t.Fatalf("peak concurrency %d", peak)
	}
	if stats := s.Stats(); stats.Cached != 5 || stats.Completed != 5 || stats.InFlight != 0 {
		t.Fatalf("unexpected final stats %+v", stats)
	}
}

func TestFailureIsDiscardedNotRetried(t *testing.T) {
	f := newGatedFetcher()
	rec := &memoryRecorder{}
	s := prefetch.NewScheduler(context.Background(), f, prefetch.Options{MaxConcurrent: 1, Recorder: rec})

	s.Schedule("bad.mp4")
	expectStarted(t, f, "bad.mp4")
	f.release("bad.mp4", errors.New("connection reset"))
	waitIdle(t, s)

	if s.IsCached("bad.mp4") {
		t.Fatal("failed url cached")
	}
	if f.callCount("bad.mp4") != 1 {
		t.Fatal("scheduler retried on its own")
	}
	stats := s.Stats()
	if stats.Failed != 1 || stats.Completed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	records := rec.all()
	if len(records) != 1 || records[0].Outcome != prefetch.OutcomeFailed || records[0].Error != "connection reset" {
		t.Fatalf("unexpected records %+v", records)
	}

	// A failed url may be scheduled again by the caller.
	if !s.Schedule("bad.mp4") {
		t.Fatal("failed url could not be rescheduled")
	}
	expectStarted(t, f, "bad.mp4")
	f.release("bad.mp4", nil)
	waitIdle(t, s)
}

func TestResetClearsCacheButKeepsInFlightCounted(t *testing.T) {
	f := newGatedFetcher()
	rec := &memoryRecorder{}
	s := prefetch.NewScheduler(context.Background(), f, prefetch.Options{MaxConcurrent: 1, Recorder: rec})

	s.Schedule("done")
	expectStarted(t, f, "done")
	f.release("done", nil)
	waitIdle(t, s)

	s.Schedule("slow")
	s.Schedule("queued")
	expectStarted(t, f, "slow")

	s.Reset()
	stats := s.Stats()
	if stats.Cached != 0 || stats.Queued != 0 || stats.InFlight != 1 {
		t.Fatalf("unexpected stats after reset %+v", stats)
	}

	s.Schedule("fresh")
	expectNoStart(t, f)

	f.release("slow", nil)
	expectStarted(t, f, "fresh")
	f.release("fresh", nil)
	waitIdle(t, s)

	if s.IsCached("slow") {
		t.Fatal("result from before the reset was cached")
	}
	if s.IsCached("queued") || f.callCount("queued") != 0 {
		t.Fatal("queued task survived reset")
	}
	if !s.IsCached("fresh") {
		t.Fatal("post-reset fetch not cached")
	}
	var discarded bool
	for _, r := range rec.all() {
		if r.URL == "slow" && r.Outcome == prefetch.OutcomeDiscarded {
			discarded = true
		}
	}
	if !discarded {
		t.Fatalf("expected discarded record, got %+v", rec.all())
	}
}

func TestRescheduleAfterResetAdoptsInFlightFetch(t *testing.T) {
	f := newGatedFetcher()
	rec := &memoryRecorder{}
	s := prefetch.NewScheduler(context.Background(), f, prefetch.Options{MaxConcurrent: 2, Recorder: rec})

	s.Schedule("slow")
	expectStarted(t, f, "slow")
	s.Reset()

	if !s.Schedule("slow") {
		t.Fatal("reschedule after reset rejected")
	}
	if s.Schedule("slow") {
		t.Fatal("second reschedule accepted")
	}
	expectNoStart(t, f)
	if stats := s.Stats(); stats.InFlight != 1 || stats.Queued != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	f.release("slow", nil)
	waitIdle(t, s)
	if got := f.callCount("slow"); got != 1 {
		t.Fatalf("fetch invoked %d times", got)
	}
	if !s.IsCached("slow") {
		t.Fatal("adopted fetch not cached")
	}
	records := rec.all()
	if len(records) != 1 || records[0].Outcome != prefetch.OutcomeCached {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestEmptyURLIgnored(t *testing.T) {
	s := prefetch.NewScheduler(context.Background(), newGatedFetcher(), prefetch.Options{})
	if s.Schedule("") {
		t.Fatal("empty url accepted")
	}
	if stats := s.Stats(); stats.MaxConcurrent != 1 || stats.Queued != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestTimeoutFailsSlowFetch(t *testing.T) {
	f := newGatedFetcher()
	s := prefetch.NewScheduler(context.Background(), f, prefetch.Options{MaxConcurrent: 1, Timeout: 20 * time.Millisecond})
	s.Schedule("stuck")
	waitIdle(t, s)
	if stats := s.Stats(); stats.Failed != 1 {
		t.Fatalf("expected timeout failure, got %+v", stats)
	}
}

func TestWaitIdleHonoursContext(t *testing.T) {
	f := newGatedFetcher()
	s := prefetch.NewScheduler(context.Background(), f, prefetch.Options{MaxConcurrent: 1})
	s.Schedule("never")
	expectStarted(t, f, "never")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.WaitIdle(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	f.release("never", nil)
	waitIdle(t, s)
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []prefetch.FetchRecord
}

func (r *memoryRecorder) RecordFetch(_ context.Context, rec prefetch.FetchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *memoryRecorder) all() []prefetch.FetchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]prefetch.FetchRecord, len(r.records))
	copy(out, r.records)
	return out
}
