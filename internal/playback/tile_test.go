package playback_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"feedplay/internal/analytics"
	"feedplay/internal/arbiter"
	"feedplay/internal/playback"
)

type fakeHandle struct {
	plays   int
	pauses  int
	seeks   []int64
	playErr error
	// onPlay runs once inside the next Play call.
	onPlay func()
}

func (h *fakeHandle) Play(context.Context) error {
	h.plays++
	if fn := h.onPlay; fn != nil {
		h.onPlay = nil
		fn()
	}
	return h.playErr
}

func (h *fakeHandle) Pause(context.Context) error {
	h.pauses++
	return nil
}

func (h *fakeHandle) Seek(ms int64) { h.seeks = append(h.seeks, ms) }

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

type harness struct {
	arb   *arbiter.Arbiter
	sink  *analytics.MemorySink
	clock *clock
	tiles map[string]*playback.Tile
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		arb:   arbiter.New(arbiter.WithStrictInvariants(true)),
		sink:  analytics.NewMemorySink(0),
		clock: &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		tiles: map[string]*playback.Tile{},
	}
}

func (h *harness) mount(videoID string, handle *fakeHandle, cfg playback.Config) *playback.Tile {
	h.arb.Register(videoID, handle)
	tile := playback.NewTile(playback.TileParams{
		VideoID: videoID,
		PostID:  "p1",
		Handle:  handle,
		Arbiter: h.arb,
		Sink:    h.sink,
		Config:  cfg,
		Now:     h.clock.Now,
		OnPreempt: func(ctx context.Context, id string) {
			if other, ok := h.tiles[id]; ok {
				other.Dispatch(ctx, playback.Preempted{})
			}
		},
	})
	h.tiles[videoID] = tile
	return tile
}

func TestTileStartsPlayerOnlyAfterGrant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	handle := &fakeHandle{}
	tile := h.mount("v1", handle, playback.Config{Autoplay: true, SettleDelay: 300 * time.Millisecond})

	tile.Dispatch(ctx, playback.ActiveChanged{Active: true, At: h.clock.Now()})
	if handle.plays != 0 || h.arb.Holder() != "" {
		t.Fatal("player started before settle")
	}

	tile.Dispatch(ctx, playback.Tick{At: h.clock.Advance(300 * time.Millisecond)})
	if tile.Status() != playback.StatusPlaying {
		t.Fatalf("expected playing, got %v", tile.Status())
	}
	if handle.plays != 1 || h.arb.Holder() != "v1" {
		t.Fatalf("plays=%d holder=%q", handle.plays, h.arb.Holder())
	}
	types := h.sink.Types()
	want := []analytics.EventType{analytics.EventFirstFrame, analytics.EventPlaybackStart}
	if len(types) != len(want) || types[0] != want[0] || types[1] != want[1] {
		t.Fatalf("unexpected events %v", types)
	}
	if ttff := h.sink.Events()[0].Metadata["ttff_ms"]; ttff != int64(300) {
		t.Fatalf("unexpected ttff %v", ttff)
	}
}

func TestSecondTilePreemptsFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	cfg := playback.Config{Autoplay: true}
	first, second := &fakeHandle{}, &fakeHandle{}
	t1 := h.mount("v1", first, cfg)
	t2 := h.mount("v2", second, cfg)

	t1.Dispatch(ctx, playback.ActiveChanged{Active: true, At: h.clock.Now()})
	t2.Dispatch(ctx, playback.ActiveChanged{Active: true, At: h.clock.Now()})

	if h.arb.Holder() != "v2" {
		t.Fatalf("holder = %q", h.arb.Holder())
	}
	if t1.Status() != playback.StatusPaused || t2.Status() != playback.StatusPlaying {
		t.Fatalf("statuses v1=%v v2=%v", t1.Status(), t2.Status())
	}
	if first.pauses != 1 {
		t.Fatalf("expected arbiter to pause v1 once, got %d", first.pauses)
	}
}

func TestDoubleHolderRecoveryPausesStaleTile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.arb = arbiter.New()
	cfg := playback.Config{Autoplay: true}
	first, second := &fakeHandle{}, &fakeHandle{}
	t1 := h.mount("v1", first, cfg)
	t2 := h.mount("v2", second, cfg)

	t1.Dispatch(ctx, playback.ActiveChanged{Active: true, At: h.clock.Now()})
	// v1 wins the slot back while v2's player is still starting.
	second.onPlay = func() { t1.Dispatch(ctx, playback.Tapped{}) }
	t2.Dispatch(ctx, playback.ActiveChanged{Active: true, At: h.clock.Now()})

	if h.arb.Holder() != "v2" {
		t.Fatalf("expected last writer v2 to hold, got %q", h.arb.Holder())
	}
	if t1.Status() != playback.StatusPaused {
		t.Fatalf("stale tile left in %v", t1.Status())
	}
	if first.pauses != 2 {
		t.Fatalf("expected v1 paused by preemption and recovery, got %d", first.pauses)
	}
	var stalePauses int
	for _, e := range h.sink.Events() {
		if e.VideoID == "v1" && e.Type == analytics.EventPlaybackPause {
			stalePauses++
		}
	}
	if stalePauses != 2 {
		t.Fatalf("expected two pause events for v1, got %d", stalePauses)
	}
}

func TestFailedPlayBecomesErrorState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	handle := &fakeHandle{playErr: errors.New("decoder unavailable")}
	tile := h.mount("v1", handle, playback.Config{Autoplay: true})

	state := tile.Dispatch(ctx, playback.ActiveChanged{Active: true, At: h.clock.Now()})
	if state.Status != playback.StatusError || state.Reason != "decoder unavailable" {
		t.Fatalf("unexpected state %+v", state)
	}
	if h.arb.Holder() != "" {
		t.Fatalf("failed tile kept the slot: %q", h.arb.Holder())
	}

	handle.playErr = nil
	tile.Dispatch(ctx, playback.Retry{At: h.clock.Advance(time.Second)})
	if tile.Status() != playback.StatusPlaying {
		t.Fatalf("expected retry to reach playing, got %v", tile.Status())
	}
}

func TestUnregisteredTileIsDenied(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	handle := &fakeHandle{}
	tile := h.mount("v1", handle, playback.Config{Autoplay: true})
	h.arb.Unregister("v1")

	state := tile.Dispatch(ctx, playback.ActiveChanged{Active: true, At: h.clock.Now()})
	if state.Status != playback.StatusReady || state.WantsPlay {
		t.Fatalf("unexpected state %+v", state)
	}
	if handle.plays != 0 {
		t.Fatal("player started without a grant")
	}
}

func TestEndedSeeksToStart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	handle := &fakeHandle{}
	tile := h.mount("v1", handle, playback.Config{Autoplay: true})
	tile.Dispatch(ctx, playback.ActiveChanged{Active: true, At: h.clock.Now()})
	tile.Dispatch(ctx, playback.Progress{PositionMs: 9000})
	tile.Dispatch(ctx, playback.Ended{})

	if tile.Status() != playback.StatusPaused {
		t.Fatalf("expected paused, got %v", tile.Status())
	}
	if len(handle.seeks) != 1 || handle.seeks[0] != 0 {
		t.Fatalf("expected seek to 0, got %v", handle.seeks)
	}
	if h.arb.Holder() != "" {
		t.Fatal("completed tile kept the slot")
	}
}
