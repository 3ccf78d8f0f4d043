package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"feedplay/internal/logging"
)

// Flusher persists a batch of events.
type Flusher interface {
	FlushEvents(ctx context.Context, events []Event) error
}

// FlusherFunc adapts a function to Flusher.
type FlusherFunc func(ctx context.Context, events []Event) error

// FlushEvents calls f.
func (f FlusherFunc) FlushEvents(ctx context.Context, events []Event) error {
	return f(ctx, events)
}

// BatchOptions tunes batching.
type BatchOptions struct {
	Size     int
	Interval time.Duration
	Buffer   int
}

// BatchStats reports delivery counters.
type BatchStats struct {
	Flushed       int64
	Dropped       int64
	FailedFlushes int64
}

// BatchSink buffers events on a channel and flushes them from a single
// background goroutine when the batch fills or the interval elapses.
// LogEvent never blocks: a full buffer drops the event and counts it.
type BatchSink struct {
	flusher  Flusher
	size     int
	interval time.Duration
	logger   *slog.Logger

	events chan Event
	stop   chan struct{}
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	closed    atomic.Bool

	flushed atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewBatchSink constructs a sink; call Start before logging events.
func NewBatchSink(flusher Flusher, opts BatchOptions, logger *slog.Logger) *BatchSink {
	if opts.Size <= 0 {
		opts.Size = 10
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Buffer < opts.Size {
		opts.Buffer = opts.Size * 4
	}
	return &BatchSink{
		flusher:  flusher,
		size:     opts.Size,
		interval: opts.Interval,
		logger:   logging.NewComponentLogger(logger, "analytics"),
		events:   make(chan Event, opts.Buffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the flush loop. The loop exits when ctx is cancelled or
// Close is called, flushing whatever is buffered.
func (b *BatchSink) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.run(ctx)
	})
}

// LogEvent enqueues an event without blocking.
func (b *BatchSink) LogEvent(e Event) {
	if b.closed.Load() {
		b.dropped.Add(1)
		return
	}
	select {
	case b.events <- e:
	default:
		b.dropped.Add(1)
	}
}

// Close stops the loop and waits for the final flush.
func (b *BatchSink) Close() {
	b.closed.Store(true)
	b.stopOnce.Do(func() { close(b.stop) })
	b.startOnce.Do(func() { close(b.done) })
	<-b.done
}

// Stats returns the delivery counters.
func (b *BatchSink) Stats() BatchStats {
	return BatchStats{
		Flushed:       b.flushed.Load(),
		Dropped:       b.dropped.Load(),
		FailedFlushes: b.failed.Load(),
	}
}

func (b *BatchSink) run(ctx context.Context) {
	defer close(b.done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	batch := make([]Event, 0, b.size)
	for {
		select {
		case e := <-b.events:
			batch = append(batch, e)
			if len(batch) >= b.size {
				batch = b.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = b.flush(ctx, batch)
		case <-b.stop:
			b.drain(context.WithoutCancel(ctx), batch)
			return
		case <-ctx.Done():
			b.drain(context.WithoutCancel(ctx), batch)
			return
		}
	}
}

func (b *BatchSink) drain(ctx context.Context, batch []Event) {
	for {
		select {
		case e := <-b.events:
			batch = append(batch, e)
		default:
			b.flush(ctx, batch)
			return
		}
	}
}

func (b *BatchSink) flush(ctx context.Context, batch []Event) []Event {
	if len(batch) == 0 {
		return batch
	}
	if b.flusher != nil {
		if err := b.flusher.FlushEvents(ctx, batch); err != nil {
			b.failed.Add(1)
			logging.WarnWithContext(b.logger, "analytics flush failed", "analytics_flush_failed",
				logging.Int("events", len(batch)),
				logging.String(logging.FieldErrorHint, "check the state directory is writable"),
				logging.String(logging.FieldImpact, "analytics batch discarded"),
				logging.Error(err),
			)
			return batch[:0]
		}
	}
	b.flushed.Add(int64(len(batch)))
	return make([]Event, 0, b.size)
}
