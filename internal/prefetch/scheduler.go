package prefetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"feedplay/internal/logging"
	"feedplay/internal/services"
)

// Fetcher retrieves one URL. Implementations live outside the core.
type Fetcher interface {
	Fetch(ctx context.Context, url string) error
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) error

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, url string) error { return f(ctx, url) }

// Outcome labels a finished fetch.
type Outcome string

const (
	OutcomeCached Outcome = "cached"
	OutcomeFailed Outcome = "failed"
	// OutcomeDiscarded marks a fetch that succeeded after a Reset; its
	// result is not cached.
	OutcomeDiscarded Outcome = "discarded"
)

// FetchRecord describes one finished task.
type FetchRecord struct {
	URL      string
	Outcome  Outcome
	Started  time.Time
	Finished time.Time
	Error    string
}

// Duration returns how long the fetch ran.
func (r FetchRecord) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Recorder receives a record for every finished task.
type Recorder interface {
	RecordFetch(ctx context.Context, rec FetchRecord) error
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Cached        int   `json:"cached"`
	Queued        int   `json:"queued"`
	InFlight      int   `json:"in_flight"`
	MaxConcurrent int   `json:"max_concurrent"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
}

// Options configures a Scheduler.
type Options struct {
	MaxConcurrent int
	// Timeout bounds each fetch; zero disables it.
	Timeout  time.Duration
	Logger   *slog.Logger
	Recorder Recorder
	Now      func() time.Time
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	ctx      context.Context
	fetcher  Fetcher
	max      int
	timeout  time.Duration
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	mu   sync.Mutex
	idle *sync.Cond

	cache  map[string]struct{}
	queued map[string]struct{}
	// active maps an in-flight URL to the generation that owns its result.
	active   map[string]uint64
	queue    []string
	inFlight int
	// settling counts finished tasks still logging or recording.
	settling   int
	generation uint64
	completed  int64
	failed     int64
}

// NewScheduler returns a scheduler whose tasks run under ctx.
func NewScheduler(ctx context.Context, fetcher Fetcher, opts Options) *Scheduler {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Scheduler{
		ctx:      ctx,
		fetcher:  fetcher,
		max:      opts.MaxConcurrent,
		timeout:  opts.Timeout,
		logger:   logging.NewComponentLogger(opts.Logger, "prefetch"),
		recorder: opts.Recorder,
		now:      opts.Now,
		cache:    make(map[string]struct{}),
		queued:   make(map[string]struct{}),
		active:   make(map[string]uint64),
	}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// Schedule enqueues url unless it is cached, queued, or in flight, then
// starts as many tasks as the cap allows. It reports whether url was added.
// A URL still in flight from before a Reset is not fetched again; the
// running task is adopted and its result cached.
func (s *Scheduler) Schedule(url string) bool {
	if url == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[url]; ok {
		return false
	}
	if _, ok := s.queued[url]; ok {
		return false
	}
	if gen, ok := s.active[url]; ok {
		if gen == s.generation {
			return false
		}
		s.active[url] = s.generation
		return true
	}
	s.queue = append(s.queue, url)
	s.queued[url] = struct{}{}
	s.drainLocked()
	return true
}

func (s *Scheduler) drainLocked() {
	for s.inFlight < s.max && len(s.queue) > 0 {
		url := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.queued, url)
		s.active[url] = s.generation
		s.inFlight++
		go s.run(url)
	}
}

func (s *Scheduler) run(url string) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	started := s.now()
	err := s.fetcher.Fetch(ctx, url)
	rec := FetchRecord{URL: url, Started: started, Finished: s.now()}

	s.mu.Lock()
	s.inFlight--
	current := s.active[url] == s.generation
	delete(s.active, url)
	switch {
	case err != nil:
		s.failed++
		rec.Outcome = OutcomeFailed
		rec.Error = err.Error()
	case current:
		s.completed++
		s.cache[url] = struct{}{}
		rec.Outcome = OutcomeCached
	default:
		s.completed++
		rec.Outcome = OutcomeDiscarded
	}
	s.settling++
	s.drainLocked()
	s.mu.Unlock()

	if err != nil {
		wrapped := services.Wrap(services.ErrPrefetch, "prefetch", "fetch", url, err)
		logging.WarnWithContext(s.logger, "prefetch failed", "prefetch_failed",
			logging.String("url", url),
			logging.String(logging.FieldErrorHint, "the item will be fetched on demand"),
			logging.String(logging.FieldImpact, "slower start for this item"),
			logging.String(logging.FieldErrorKind, services.Kind(wrapped)),
			logging.Error(wrapped),
		)
	} else {
		s.logger.Debug("prefetch complete",
			logging.String("url", url),
			logging.String("outcome", string(rec.Outcome)),
			logging.Duration("duration", rec.Duration()),
		)
	}
	if s.recorder != nil {
		if rerr := s.recorder.RecordFetch(context.WithoutCancel(s.ctx), rec); rerr != nil {
			logging.WarnWithContext(s.logger, "prefetch record failed", "prefetch_record_failed",
				logging.String("url", url),
				logging.String("outcome", string(rec.Outcome)),
				logging.String(logging.FieldErrorHint, "check the state directory is writable"),
				logging.String(logging.FieldImpact, "prefetch history row lost"),
				logging.Error(rerr),
			)
		}
	}

	s.mu.Lock()
	s.settling--
	if s.idleLocked() {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

func (s *Scheduler) idleLocked() bool {
	return s.inFlight == 0 && s.settling == 0 && len(s.queue) == 0
}

// Reset clears the cache and the pending queue. Tasks already in flight run
// to completion and keep counting against the cap, but their results are
// not cached unless the URL is scheduled again before they finish.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.cache = make(map[string]struct{})
	s.queued = make(map[string]struct{})
	s.queue = nil
	if s.idleLocked() {
		s.idle.Broadcast()
	}
}

// Stats returns the current counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Cached:        len(s.cache),
		Queued:        len(s.queue),
		InFlight:      s.inFlight,
		MaxConcurrent: s.max,
		Completed:     s.completed,
		Failed:        s.failed,
	}
}

// IsCached reports whether url has been fetched since the last Reset.
func (s *Scheduler) IsCached(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cache[url]
	return ok
}

// Queued returns the pending URLs in FIFO order.
func (s *Scheduler) Queued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queue))
	copy(out, s.queue)
	return out
}

// WaitIdle blocks until nothing is queued or in flight and every finished
// task has been recorded, or ctx is done.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.idle.Broadcast()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.idleLocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.idle.Wait()
	}
	return nil
}
