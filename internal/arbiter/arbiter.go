package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"feedplay/internal/logging"
	"feedplay/internal/services"
)

// ControlHandle is the play/pause capability a mounted tile hands to the
// arbiter. Implementations must not call back into the arbiter.
type ControlHandle interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(positionMs int64)
}

// ErrNotRegistered is returned by RequestPlay for a video without a mounted handle.
var ErrNotRegistered = errors.New("video not registered")

// Option customizes an Arbiter.
type Option func(*Arbiter)

// WithLogger sets the logger used for arbitration diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Arbiter) {
		a.logger = logging.NewComponentLogger(logger, "arbiter")
	}
}

// WithStrictInvariants makes ConfirmPlaying panic on a double-holder
// detection instead of recovering.
func WithStrictInvariants(strict bool) Option {
	return func(a *Arbiter) {
		a.strict = strict
	}
}

// Arbiter owns the single holder slot and the videoID to handle registry.
type Arbiter struct {
	mu      sync.Mutex
	handles map[string]ControlHandle
	holder  string
	strict  bool
	logger  *slog.Logger
}

// New constructs an empty arbiter.
func New(opts ...Option) *Arbiter {
	a := &Arbiter{
		handles: make(map[string]ControlHandle),
		logger:  logging.NewComponentLogger(nil, "arbiter"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register stores the control handle for a mounted tile. Registering an ID
// again replaces its handle; the holder slot is untouched.
func (a *Arbiter) Register(videoID string, handle ControlHandle) {
	if videoID == "" || handle == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handles[videoID] = handle
}

// Unregister removes the handle for an unmounted tile and clears the holder
// slot if that tile held it. Another video is never promoted. It reports
// whether the video was the holder.
func (a *Arbiter) Unregister(videoID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.handles, videoID)
	if a.holder != "" && a.holder == videoID {
		a.holder = ""
		return true
	}
	return false
}

// RequestPlay authorizes videoID to play. When another video holds the slot
// it is paused first, best effort, and its ID is returned as preempted.
// Calling RequestPlay for the current holder is a no-op.
func (a *Arbiter) RequestPlay(ctx context.Context, videoID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.handles[videoID]; !ok {
		return "", services.Wrap(services.ErrPlayback, "arbiter", "request play", videoID, ErrNotRegistered)
	}
	if a.holder == videoID {
		return "", nil
	}
	preempted := a.holder
	if preempted != "" {
		a.pauseLocked(ctx, preempted, "preempt")
	}
	a.holder = videoID
	a.logger.Debug("play granted",
		logging.String(logging.FieldVideoID, videoID),
		logging.String("preempted", preempted),
	)
	return preempted, nil
}

// RequestPause releases the slot if videoID holds it. It reports whether the
// slot was released.
func (a *Arbiter) RequestPause(videoID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder == "" || a.holder != videoID {
		return false
	}
	a.holder = ""
	return true
}

// PauseAll clears the slot and sends a best-effort pause to every registered
// handle. It backs the app-background transition.
func (a *Arbiter) PauseAll(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.holder = ""
	for _, id := range a.sortedIDsLocked() {
		a.pauseLocked(ctx, id, "pause_all")
	}
}

// ConfirmPlaying audits the slot after videoID's player actually started.
// A mismatch means two videos believed they were authorized. In strict mode
// that panics; otherwise the last writer wins, the stale holder is paused and
// its ID returned so the caller can move that tile out of Playing.
func (a *Arbiter) ConfirmPlaying(ctx context.Context, videoID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder == videoID {
		return "", nil
	}
	stale := a.holder
	err := services.Wrap(services.ErrInvariant, "arbiter", "confirm playing",
		fmt.Sprintf("video %q started while holder is %q", videoID, stale), nil)
	if a.strict {
		panic(err)
	}
	a.logger.Error("single playback invariant violated",
		logging.String(logging.FieldEventType, "invariant_violation"),
		logging.String(logging.FieldVideoID, videoID),
		logging.String("stale_holder", stale),
		logging.String(logging.FieldErrorKind, services.Kind(err)),
		logging.Error(err),
	)
	if stale != "" {
		a.pauseLocked(ctx, stale, "invariant_recovery")
	}
	if _, ok := a.handles[videoID]; ok {
		a.holder = videoID
	} else {
		a.holder = ""
	}
	return stale, err
}

// Holder returns the authorized video ID, or "" when the slot is empty.
func (a *Arbiter) Holder() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder
}

// IsHolder reports whether videoID currently holds the slot.
func (a *Arbiter) IsHolder(videoID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return videoID != "" && a.holder == videoID
}

// Registered returns the number of mounted tiles.
func (a *Arbiter) Registered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.handles)
}

// RegisteredIDs returns the mounted video IDs in sorted order.
func (a *Arbiter) RegisteredIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sortedIDsLocked()
}

// Reset drops every handle and clears the slot without issuing commands.
func (a *Arbiter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handles = make(map[string]ControlHandle)
	a.holder = ""
}

func (a *Arbiter) pauseLocked(ctx context.Context, videoID, reason string) {
	handle, ok := a.handles[videoID]
	if !ok {
		a.logger.Debug("pause skipped for unmounted tile",
			logging.String(logging.FieldEventType, "arbitration_race"),
			logging.String(logging.FieldVideoID, videoID),
			logging.String("reason", reason),
		)
		return
	}
	if err := handle.Pause(ctx); err != nil {
		wrapped := services.Wrap(services.ErrArbitrationRace, "arbiter", "pause", videoID, err)
		a.logger.Debug("pause failed",
			logging.String(logging.FieldEventType, "arbitration_race"),
			logging.String(logging.FieldVideoID, videoID),
			logging.String("reason", reason),
			logging.String(logging.FieldErrorKind, services.Kind(wrapped)),
			logging.Error(wrapped),
		)
	}
}

func (a *Arbiter) sortedIDsLocked() []string {
	ids := make([]string, 0, len(a.handles))
	for id := range a.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
