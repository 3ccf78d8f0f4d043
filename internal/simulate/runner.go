package simulate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedplay/internal/analytics"
	"feedplay/internal/config"
	"feedplay/internal/logging"
	"feedplay/internal/prefetch"
	"feedplay/internal/session"
	"feedplay/internal/visibility"
)

// Options configures a run.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Sink receives events alongside the report's own capture.
	Sink     analytics.Sink
	Recorder prefetch.Recorder
	// Fetcher replaces the simulated fetcher built from the script.
	Fetcher   prefetch.Fetcher
	SessionID string
	// Start is the virtual clock origin; defaults to the wall clock.
	Start time.Time
	// Pace is wall time waited between steps, for live displays.
	Pace time.Duration
	// Observe is called after every step.
	Observe func(StepResult)
}

// StepResult captures the session after one step.
type StepResult struct {
	Index    int              `json:"index"`
	Step     Step             `json:"step"`
	Elapsed  time.Duration    `json:"elapsed"`
	Session  session.Snapshot `json:"session"`
	Playing  []string         `json:"playing"`
	Warnings []string         `json:"warnings,omitempty"`
}

// Report is the outcome of a run.
type Report struct {
	Name       string            `json:"name"`
	SessionID  string            `json:"session_id"`
	Steps      []StepResult      `json:"steps"`
	Events     []analytics.Event `json:"events"`
	Prefetch   prefetch.Stats    `json:"prefetch"`
	MaxPlaying int               `json:"max_playing"`
	Elapsed    time.Duration     `json:"elapsed"`
}

// EventCounts tallies the captured events by type.
func (r *Report) EventCounts() map[analytics.EventType]int {
	counts := make(map[analytics.EventType]int)
	for _, e := range r.Events {
		counts[e.Type]++
	}
	return counts
}

// Final returns the last step result, or false for an empty run.
func (r *Report) Final() (StepResult, bool) {
	if len(r.Steps) == 0 {
		return StepResult{}, false
	}
	return r.Steps[len(r.Steps)-1], true
}

type virtualClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *virtualClock) elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(c.start)
}

// Run replays script against a fresh session. Only setup failures and
// context cancellation are returned as errors; everything the session
// reports shows up in the Report.
func Run(ctx context.Context, script *Script, opts Options) (*Report, error) {
	if script == nil {
		return nil, fmt.Errorf("simulate: nil script")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("simulate: config is required")
	}
	logger := logging.NewComponentLogger(opts.Logger, "simulate")

	start := opts.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}
	clock := &virtualClock{start: start, now: start}

	memory := analytics.NewMemorySink(0)
	sinks := analytics.MultiSink{memory}
	if opts.Sink != nil {
		sinks = append(sinks, opts.Sink)
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher(script.Fetch)
	}

	sess, err := session.New(ctx, session.Params{
		Config:   opts.Config,
		Feed:     script.Snapshot(),
		Fetcher:  fetcher,
		Sink:     sinks,
		Recorder: opts.Recorder,
		Logger:   opts.Logger,
		Now:      clock.Now,
		ID:       opts.SessionID,
	})
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	stage := NewStage()
	report := &Report{Name: script.Name, SessionID: sess.ID()}
	logger.Info("simulation started",
		logging.String(logging.FieldSessionID, sess.ID()),
		logging.Int("steps", len(script.Steps)),
	)

	for i, step := range script.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		var warnings []string
		if err := apply(ctx, sess, stage, clock, script, step); err != nil {
			warnings = append(warnings, err.Error())
		}
		if playing := stage.Playing(); len(playing) > 1 {
			warnings = append(warnings, fmt.Sprintf("%d players playing at once", len(playing)))
		}
		result := StepResult{
			Index:    i + 1,
			Step:     step,
			Elapsed:  clock.elapsed(),
			Session:  sess.Snapshot(),
			Playing:  stage.Playing(),
			Warnings: warnings,
		}
		report.Steps = append(report.Steps, result)
		logger.Debug("step applied",
			logging.Int("step", result.Index),
			logging.String("action", string(step.Action)),
			logging.String("active_video", result.Session.ActiveVideo),
			logging.String("holder", result.Session.Holder),
		)
		if opts.Observe != nil {
			opts.Observe(result)
		}
		if opts.Pace > 0 {
			if err := sleep(ctx, opts.Pace); err != nil {
				return report, err
			}
		}
	}

	report.Events = memory.Events()
	report.Prefetch = sess.PrefetchStats()
	report.MaxPlaying = stage.MaxPlaying()
	report.Elapsed = clock.elapsed()
	logger.Info("simulation finished",
		logging.Int("events", len(report.Events)),
		logging.Int("max_playing", report.MaxPlaying),
		logging.Duration("virtual_elapsed", report.Elapsed),
	)
	return report, nil
}

func apply(ctx context.Context, sess *session.Session, stage *Stage, clock *virtualClock, script *Script, step Step) error {
	switch step.Action {
	case ActionMount:
		for _, id := range step.targets(script.Snapshot()) {
			sess.OnTileMount(id, stage.Player(id))
		}
	case ActionUnmount:
		for _, id := range step.targets(script.Snapshot()) {
			sess.OnTileUnmount(id)
			stage.Player(id).unmount()
		}
	case ActionVisibility:
		scope, err := visibility.ParseScope(step.Scope)
		if err != nil {
			return err
		}
		sess.OnVisibilityChanged(scope, step.Post, step.Index, step.visible(), step.Coverage)
	case ActionAdvance:
		clock.advance(time.Duration(step.Ms) * time.Millisecond)
		sess.Tick()
	case ActionTick:
		sess.Tick()
	case ActionTap:
		sess.OnUserToggle(step.Video)
	case ActionLoaded:
		sess.OnLoaded(step.Video)
	case ActionProgress:
		sess.OnProgress(step.Video, step.PositionMs)
	case ActionEnded:
		sess.OnEnded(step.Video)
	case ActionError:
		sess.OnError(step.Video, step.Reason)
	case ActionRetry:
		sess.OnRetry(step.Video)
	case ActionFailPlay:
		reason := step.Reason
		if reason == "" {
			reason = "playback failed"
		}
		stage.FailNextPlay(step.Video, reason)
	case ActionPauseAll:
		sess.PauseAll()
	case ActionResetPrefetch:
		sess.ResetPrefetchCache()
	case ActionPrefetchPrevious:
		sess.PrefetchPrevious()
	case ActionWaitPrefetch:
		if err := sess.WaitPrefetch(ctx); err != nil {
			return fmt.Errorf("wait prefetch: %w", err)
		}
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
