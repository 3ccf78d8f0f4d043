package playback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"feedplay/internal/analytics"
	"feedplay/internal/arbiter"
	"feedplay/internal/logging"
	"feedplay/internal/services"
)

// TileParams wires a tile to its collaborators.
type TileParams struct {
	VideoID   string
	PostID    string
	SessionID string
	Handle    arbiter.ControlHandle
	Arbiter   *arbiter.Arbiter
	Sink      analytics.Sink
	Config    Config
	Logger    *slog.Logger
	Now       func() time.Time
	// OnPreempt is called with the previous holder's ID when this tile's
	// grant displaced another video, or when a double-holder recovery paused
	// a stale one.
	OnPreempt func(ctx context.Context, videoID string)
}

// Tile is one mounted video. It is not safe for concurrent use; the owning
// session serializes every call.
type Tile struct {
	videoID   string
	postID    string
	sessionID string
	cfg       Config
	handle    arbiter.ControlHandle
	arb       *arbiter.Arbiter
	sink      analytics.Sink
	logger    *slog.Logger
	now       func() time.Time
	onPreempt func(ctx context.Context, videoID string)

	state State
}

// NewTile mounts a tile in Loading. It does not register the handle with
// the arbiter; the caller owns registration.
func NewTile(p TileParams) *Tile {
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Sink == nil {
		p.Sink = analytics.Nop()
	}
	logger := logging.NewComponentLogger(p.Logger, "playback").With(
		logging.String(logging.FieldVideoID, p.VideoID),
	)
	t := &Tile{
		videoID:   p.VideoID,
		postID:    p.PostID,
		sessionID: p.SessionID,
		cfg:       p.Config,
		handle:    p.Handle,
		arb:       p.Arbiter,
		sink:      p.Sink,
		logger:    logger,
		now:       p.Now,
		onPreempt: p.OnPreempt,
	}
	t.state, _ = Transition(t.cfg, State{}, Mounted{At: t.now()})
	return t
}

// VideoID returns the tile's video.
func (t *Tile) VideoID() string { return t.videoID }

// PostID returns the post the tile belongs to.
func (t *Tile) PostID() string { return t.postID }

// State returns a copy of the current state.
func (t *Tile) State() State { return t.state }

// Status returns the current status.
func (t *Tile) Status() Status { return t.state.Status }

// Dispatch applies an event and runs the resulting effects. Effects that
// produce follow-up events (a grant, a failed start) are applied in order
// before Dispatch returns.
func (t *Tile) Dispatch(ctx context.Context, ev Event) State {
	queue := []Event{ev}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		prev := t.state.Status
		var effects []Effect
		t.state, effects = Transition(t.cfg, t.state, next)
		if prev != t.state.Status {
			t.logger.Debug("tile transition",
				logging.String("event", EventName(next)),
				logging.String("from", prev.String()),
				logging.String("to", t.state.Status.String()),
			)
		}
		for _, eff := range effects {
			if follow := t.execute(ctx, eff); follow != nil {
				queue = append(queue, follow)
			}
		}
	}
	return t.state
}

func (t *Tile) execute(ctx context.Context, eff Effect) Event {
	switch e := eff.(type) {
	case RequestGrant:
		return t.requestGrant(ctx)
	case ReleaseGrant:
		if t.arb != nil {
			t.arb.RequestPause(t.videoID)
		}
	case StartPlayer:
		return t.startPlayer(ctx)
	case PausePlayer:
		if t.handle == nil {
			return nil
		}
		if err := t.handle.Pause(ctx); err != nil {
			t.logger.Debug("player pause failed",
				logging.String(logging.FieldEventType, "arbitration_race"),
				logging.Error(services.Wrap(services.ErrArbitrationRace, "playback", "pause", t.videoID, err)),
			)
		}
	case SeekPlayer:
		if t.handle != nil {
			t.handle.Seek(e.PositionMs)
		}
	case Emit:
		t.sink.LogEvent(analytics.Event{
			Type:      e.Type,
			VideoID:   t.videoID,
			PostID:    t.postID,
			SessionID: t.sessionID,
			Timestamp: t.now(),
			Metadata:  e.Metadata,
		})
	}
	return nil
}

func (t *Tile) requestGrant(ctx context.Context) Event {
	if t.arb == nil {
		return Granted{}
	}
	preempted, err := t.arb.RequestPlay(ctx, t.videoID)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, arbiter.ErrNotRegistered) {
			level = slog.LevelDebug
		}
		t.logger.Log(ctx, level, "play request refused",
			logging.String(logging.FieldEventType, "grant_denied"),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.Error(err),
		)
		return Denied{}
	}
	if preempted != "" && t.onPreempt != nil {
		t.onPreempt(ctx, preempted)
	}
	return Granted{}
}

func (t *Tile) startPlayer(ctx context.Context) Event {
	if t.arb != nil && !t.arb.IsHolder(t.videoID) {
		t.logger.Debug("start skipped, grant lost",
			logging.String(logging.FieldEventType, "arbitration_race"),
		)
		return Preempted{}
	}
	if t.handle == nil {
		return nil
	}
	if err := t.handle.Play(ctx); err != nil {
		wrapped := services.Wrap(services.ErrPlayback, "playback", "start player", t.videoID, err)
		logging.WarnWithContext(t.logger, "player failed to start", "playback_start_failed",
			logging.String(logging.FieldErrorHint, "tap retry on the tile"),
			logging.String(logging.FieldImpact, "video shows error state"),
			logging.String(logging.FieldErrorKind, services.Kind(wrapped)),
			logging.Error(wrapped),
		)
		return Failed{Reason: err.Error()}
	}
	if t.arb == nil {
		return nil
	}
	// Strict arbiters panic here on a double holder; others recover.
	stale, _ := t.arb.ConfirmPlaying(ctx, t.videoID)
	if stale != "" && t.onPreempt != nil {
		t.onPreempt(ctx, stale)
	}
	return nil
}
