package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"feedplay/internal/analytics"
	"feedplay/internal/arbiter"
	"feedplay/internal/config"
	"feedplay/internal/feed"
	"feedplay/internal/logging"
	"feedplay/internal/playback"
	"feedplay/internal/prefetch"
	"feedplay/internal/retry"
	"feedplay/internal/services"
	"feedplay/internal/visibility"
)

// Params wires a session to its collaborators.
type Params struct {
	Config  *config.Config
	Feed    feed.Snapshot
	Fetcher prefetch.Fetcher
	Sink    analytics.Sink
	// Recorder receives the prefetch ledger; optional.
	Recorder prefetch.Recorder
	Logger   *slog.Logger
	// Now drives settle and dwell timing; defaults to time.Now.
	Now func() time.Time
	// ID overrides the generated session identifier.
	ID string
}

// Session coordinates playback and prefetch for one feed screen.
type Session struct {
	id     string
	ctx    context.Context
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
	sink   analytics.Sink

	arb      *arbiter.Arbiter
	rec      *visibility.Reconciler
	sched    *prefetch.Scheduler
	planner  *prefetch.Planner
	tileCfg  playback.Config
	prefetch bool

	mu    sync.Mutex
	snap  feed.Snapshot
	tiles map[string]*playback.Tile
}

// New validates the feed and builds a session positioned at the configured
// initial post. The fetcher is wrapped with the configured retry policy.
func New(ctx context.Context, p Params) (*Session, error) {
	if p.Config == nil {
		return nil, services.Wrap(services.ErrConfiguration, "session", "new", "config is required", nil)
	}
	if err := p.Feed.Validate(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "session", "new", "invalid feed", err)
	}
	if p.Fetcher == nil && p.Config.Prefetch.Enabled {
		return nil, services.Wrap(services.ErrConfiguration, "session", "new", "prefetch enabled without a fetcher", nil)
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	if p.Sink == nil {
		p.Sink = analytics.Nop()
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	cfg := p.Config
	logger := logging.NewComponentLogger(p.Logger, "session").With(logging.String(logging.FieldSessionID, id))

	s := &Session{
		id:     id,
		ctx:    services.WithSessionID(ctx, id),
		cfg:    cfg,
		logger: logger,
		now:    p.Now,
		sink:   p.Sink,
		arb: arbiter.New(
			arbiter.WithLogger(p.Logger),
			arbiter.WithStrictInvariants(cfg.Playback.StrictInvariants),
		),
		rec: visibility.NewReconciler(visibility.Options{
			PostThreshold:     cfg.Visibility.PostThreshold,
			CarouselThreshold: cfg.Visibility.CarouselThreshold,
			PostDwell:         cfg.PostDwell(),
			CarouselDwell:     cfg.CarouselDwell(),
			InitialPost:       clampPost(cfg.Playback.InitialPostIndex, p.Feed),
		}),
		planner: prefetch.NewPlanner(prefetch.PlannerOptions{
			Enabled:   cfg.Prefetch.Enabled,
			Distance:  cfg.Prefetch.Distance,
			NextPost:  cfg.Prefetch.NextPost,
			NextVideo: cfg.Prefetch.NextVideo,
		}),
		tileCfg: playback.Config{
			Autoplay:    cfg.Playback.Autoplay,
			SettleDelay: cfg.SettleDelay(),
		},
		prefetch: cfg.Prefetch.Enabled,
		snap:     p.Feed,
		tiles:    make(map[string]*playback.Tile),
	}

	fetcher := p.Fetcher
	if fetcher == nil {
		fetcher = prefetch.FetcherFunc(func(context.Context, string) error { return nil })
	}
	if cfg.Retry.Enabled {
		fetcher = retry.NewFetcher(fetcher, retry.FromConfig(cfg.Retry), p.Logger)
	}
	s.sched = prefetch.NewScheduler(s.ctx, fetcher, prefetch.Options{
		MaxConcurrent: cfg.Prefetch.MaxConcurrent,
		Timeout:       cfg.FetchTimeout(),
		Logger:        p.Logger,
		Recorder:      p.Recorder,
		Now:           p.Now,
	})

	s.mu.Lock()
	s.schedulePrefetchLocked()
	s.mu.Unlock()

	logger.Info("session started",
		logging.Int("posts", p.Feed.Len()),
		logging.Int("videos", p.Feed.VideoCount()),
		logging.Int("initial_post", s.rec.Active().Post),
	)
	return s, nil
}

// ID returns the session identifier stamped on events and ledger rows.
func (s *Session) ID() string { return s.id }

// SetFeed swaps the feed snapshot, returns the reconciler to the initial
// post, and re-applies activation to mounted tiles. Tiles whose videos left
// the feed stay mounted, inactive, until the UI unmounts them.
func (s *Session) SetFeed(snap feed.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return services.Wrap(services.ErrConfiguration, "session", "set feed", "invalid feed", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.rec.Reset(clampPost(s.cfg.Playback.InitialPostIndex, snap))
	s.applyActivationLocked()
	s.schedulePrefetchLocked()
	s.logger.Info("feed replaced", logging.Int("posts", snap.Len()))
	return nil
}

// OnTileMount registers a tile's control handle. A video unknown to the
// current feed mounts but never becomes active.
func (s *Session) OnTileMount(videoID string, handle arbiter.ControlHandle) {
	if videoID == "" || handle == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tiles[videoID]; exists {
		s.unmountLocked(videoID)
	}
	postID := ""
	if p, _, ok := s.snap.Locate(videoID); ok {
		postID = s.snap.Posts[p].ID
	} else {
		s.logger.Debug("mounted video not in feed", logging.String(logging.FieldVideoID, videoID))
	}

	s.arb.Register(videoID, handle)
	tile := playback.NewTile(playback.TileParams{
		VideoID:   videoID,
		PostID:    postID,
		SessionID: s.id,
		Handle:    handle,
		Arbiter:   s.arb,
		Sink:      s.sink,
		Config:    s.tileCfg,
		Logger:    s.logger,
		Now:       s.now,
		OnPreempt: s.preemptLocked,
	})
	s.tiles[videoID] = tile
	if s.isActiveLocked(videoID) {
		s.deactivateOthersLocked(videoID)
		tile.Dispatch(s.tileCtx(tile), playback.ActiveChanged{Active: true, At: s.now()})
	}
}

// OnTileUnmount drops the tile and its handle. If it held the playback slot
// the slot is cleared; no other video is promoted.
func (s *Session) OnTileUnmount(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unmountLocked(videoID)
}

// OnVisibilityChanged feeds one viewport sample. coveragePercent is 0..100.
// For the post scope index is the post index and postIndex is ignored; for
// the carousel scope postIndex names the post owning the carousel.
// Out-of-range indexes are ignored.
func (s *Session) OnVisibilityChanged(scope visibility.Scope, postIndex, index int, visible bool, coveragePercent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch scope {
	case visibility.ScopePost:
		if _, ok := s.snap.Post(index); !ok {
			return
		}
	case visibility.ScopeCarousel:
		if _, ok := s.snap.Video(postIndex, index); !ok {
			return
		}
	default:
		return
	}
	sample := visibility.Sample{
		Index:    index,
		Visible:  visible,
		Coverage: coveragePercent / 100,
		At:       s.now(),
	}
	if _, changed := s.rec.Observe(scope, postIndex, sample); changed {
		s.positionChangedLocked()
	}
}

// Tick advances time-driven logic: pending dwell promotions and tile settle
// windows. Hosts call it from their frame or timer loop.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, changed := s.rec.Tick(now); changed {
		s.positionChangedLocked()
	}
	for _, tile := range s.sortedTilesLocked() {
		tile.Dispatch(s.tileCtx(tile), playback.Tick{At: now})
	}
}

// OnUserToggle handles a tap on a tile.
func (s *Session) OnUserToggle(videoID string) {
	s.dispatch(videoID, playback.Tapped{})
}

// OnLoaded reports the player can decode the media.
func (s *Session) OnLoaded(videoID string) {
	s.dispatch(videoID, playback.Loaded{})
}

// OnProgress reports the player position.
func (s *Session) OnProgress(videoID string, positionMs int64) {
	s.dispatch(videoID, playback.Progress{PositionMs: positionMs})
}

// OnEnded reports the player reached the end.
func (s *Session) OnEnded(videoID string) {
	s.dispatch(videoID, playback.Ended{})
}

// OnError reports a player failure; the tile enters the Error status.
func (s *Session) OnError(videoID, reason string) {
	s.dispatch(videoID, playback.Failed{Reason: reason})
}

// OnRetry re-enters Loading for a tile in the Error status.
func (s *Session) OnRetry(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tile, ok := s.tiles[videoID]; ok {
		tile.Dispatch(s.tileCtx(tile), playback.Retry{At: s.now()})
	}
}

// PauseAll is the app-background hook: the slot is cleared, every handle
// is told to pause, and playing tiles move to Paused.
func (s *Session) PauseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arb.PauseAll(s.ctx)
	for _, tile := range s.sortedTilesLocked() {
		tile.Dispatch(s.tileCtx(tile), playback.Backgrounded{})
	}
	s.logger.Info("all playback paused")
}

// ResetPrefetchCache clears the prefetch cache and pending queue.
func (s *Session) ResetPrefetchCache() {
	s.sched.Reset()
	s.logger.Info("prefetch cache reset")
}

// PrefetchStats returns the scheduler counters.
func (s *Session) PrefetchStats() prefetch.Stats {
	return s.sched.Stats()
}

// PrefetchPrevious schedules the first video of the post above the active
// one. It returns how many URLs were newly queued.
func (s *Session) PrefetchPrevious() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.ScheduleAll(s.planner.PlanPrevious(s.snap, s.rec.Active().Post))
}

// WaitPrefetch blocks until the prefetch queue drains or ctx is done.
func (s *Session) WaitPrefetch(ctx context.Context) error {
	return s.sched.WaitIdle(ctx)
}

// Active returns the active position and the video ID at it.
func (s *Session) Active() (visibility.Position, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.rec.Active()
	v, _ := s.snap.Video(pos.Post, pos.Video)
	return pos, v.ID
}

// TileStatus returns the state of a mounted tile.
func (s *Session) TileStatus(videoID string) (playback.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tile, ok := s.tiles[videoID]
	if !ok {
		return playback.State{}, false
	}
	return tile.State(), true
}

// Holder returns the video authorized to play, or "".
func (s *Session) Holder() string {
	return s.arb.Holder()
}

// MountedCount returns the number of mounted tiles.
func (s *Session) MountedCount() int {
	return s.arb.Registered()
}

// Close pauses everything and drops all tiles.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arb.PauseAll(s.ctx)
	s.arb.Reset()
	s.tiles = make(map[string]*playback.Tile)
	s.logger.Info("session closed")
}

func (s *Session) dispatch(videoID string, ev playback.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tile, ok := s.tiles[videoID]
	if !ok {
		s.logger.Debug("event for unmounted tile",
			logging.String(logging.FieldVideoID, videoID),
			logging.String("event", playback.EventName(ev)),
		)
		return
	}
	tile.Dispatch(s.tileCtx(tile), ev)
}

func (s *Session) positionChangedLocked() {
	pos := s.rec.Active()
	v, _ := s.snap.Video(pos.Post, pos.Video)
	s.logger.Debug("active position changed",
		logging.Int("post", pos.Post),
		logging.Int("video", pos.Video),
		logging.String(logging.FieldVideoID, v.ID),
	)
	s.applyActivationLocked()
	s.schedulePrefetchLocked()
}

// applyActivationLocked deactivates every tile but the active one before
// activating it, so a pause always precedes the next grant.
func (s *Session) applyActivationLocked() {
	pos := s.rec.Active()
	target, _ := s.snap.Video(pos.Post, pos.Video)
	s.deactivateOthersLocked(target.ID)
	if tile, ok := s.tiles[target.ID]; ok {
		tile.Dispatch(s.tileCtx(tile), playback.ActiveChanged{Active: true, At: s.now()})
	}
}

func (s *Session) deactivateOthersLocked(activeID string) {
	now := s.now()
	for _, tile := range s.sortedTilesLocked() {
		if tile.VideoID() == activeID {
			continue
		}
		tile.Dispatch(s.tileCtx(tile), playback.ActiveChanged{Active: false, At: now})
	}
}

func (s *Session) schedulePrefetchLocked() {
	if !s.prefetch {
		return
	}
	pos := s.rec.Active()
	s.sched.ScheduleAll(s.planner.Plan(s.snap, pos.Post, pos.Video))
}

func (s *Session) isActiveLocked(videoID string) bool {
	pos := s.rec.Active()
	v, ok := s.snap.Video(pos.Post, pos.Video)
	return ok && v.ID == videoID
}

// preemptLocked runs inside a tile dispatch, already under s.mu.
func (s *Session) preemptLocked(ctx context.Context, videoID string) {
	if tile, ok := s.tiles[videoID]; ok {
		tile.Dispatch(ctx, playback.Preempted{})
	}
}

func (s *Session) unmountLocked(videoID string) {
	if _, ok := s.tiles[videoID]; !ok {
		return
	}
	if s.arb.Unregister(videoID) {
		s.logger.Debug("holder unmounted", logging.String(logging.FieldVideoID, videoID))
	}
	delete(s.tiles, videoID)
}

func (s *Session) sortedTilesLocked() []*playback.Tile {
	ids := make([]string, 0, len(s.tiles))
	for id := range s.tiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*playback.Tile, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.tiles[id])
	}
	return out
}

func (s *Session) tileCtx(tile *playback.Tile) context.Context {
	ctx := services.WithVideoID(s.ctx, tile.VideoID())
	return services.WithPostID(ctx, tile.PostID())
}

func clampPost(index int, snap feed.Snapshot) int {
	if index < 0 || snap.Len() == 0 {
		return 0
	}
	if index >= snap.Len() {
		return snap.Len() - 1
	}
	return index
}

// String renders the active position for logs and CLI output.
func (s *Session) String() string {
	pos, id := s.Active()
	return fmt.Sprintf("session %s at post %d video %d (%s)", s.id, pos.Post, pos.Video, id)
}
