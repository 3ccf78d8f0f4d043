package arbiter_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"feedplay/internal/arbiter"
	"feedplay/internal/services"
)

type recordingHandle struct {
	mu       sync.Mutex
	pauses   int
	plays    int
	pauseErr error
}

func (h *recordingHandle) Play(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plays++
	return nil
}

func (h *recordingHandle) Pause(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauses++
	return h.pauseErr
}

func (h *recordingHandle) Seek(int64) {}

func (h *recordingHandle) pauseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pauses
}

func TestRequestPlayPreemptsPreviousHolder(t *testing.T) {
	ctx := context.Background()
	a := arbiter.New()
	h1, h2 := &recordingHandle{}, &recordingHandle{}
	a.Register("v1", h1)
	a.Register("v2", h2)

	if preempted, err := a.RequestPlay(ctx, "v1"); err != nil || preempted != "" {
		t.Fatalf("RequestPlay(v1) = %q, %v", preempted, err)
	}
	preempted, err := a.RequestPlay(ctx, "v2")
	if err != nil {
		t.Fatalf("RequestPlay(v2): %v", err)
	}
	if preempted != "v1" {
		t.Fatalf("expected v1 preempted, got %q", preempted)
	}
	if h1.pauseCount() != 1 {
		t.Fatalf("expected v1 paused once, got %d", h1.pauseCount())
	}
	if a.Holder() != "v2" || !a.IsHolder("v2") || a.IsHolder("v1") {
		t.Fatalf("unexpected holder %q", a.Holder())
	}
	if h2.plays != 0 {
		t.Fatal("arbiter must not start the new holder's player")
	}
}

func TestRequestPlayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a := arbiter.New()
	h1, h2 := &recordingHandle{}, &recordingHandle{}
	a.Register("v1", h1)
	a.Register("v2", h2)

	if _, err := a.RequestPlay(ctx, "v1"); err != nil {
		t.Fatalf("RequestPlay: %v", err)
	}
	preempted, err := a.RequestPlay(ctx, "v1")
	if err != nil || preempted != "" {
		t.Fatalf("second RequestPlay = %q, %v", preempted, err)
	}
	if a.Holder() != "v1" {
		t.Fatalf("holder = %q", a.Holder())
	}
	if h1.pauseCount() != 0 || h2.pauseCount() != 0 {
		t.Fatalf("expected zero pause commands, got v1=%d v2=%d", h1.pauseCount(), h2.pauseCount())
	}
}

func TestRequestPlayRejectsUnregisteredVideo(t *testing.T) {
	a := arbiter.New()
	_, err := a.RequestPlay(context.Background(), "ghost")
	if !errors.Is(err, arbiter.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if !errors.Is(err, services.ErrPlayback) {
		t.Fatalf("expected playback marker, got %v", err)
	}
	if a.Holder() != "" {
		t.Fatalf("holder should remain empty, got %q", a.Holder())
	}
}

func TestPauseErrorsAreSwallowed(t *testing.T) {
	ctx := context.Background()
	a := arbiter.New()
	a.Register("v1", &recordingHandle{pauseErr: errors.New("player released")})
	a.Register("v2", &recordingHandle{})

	if _, err := a.RequestPlay(ctx, "v1"); err != nil {
		t.Fatalf("RequestPlay(v1): %v", err)
	}
	if _, err := a.RequestPlay(ctx, "v2"); err != nil {
		t.Fatalf("pause failure leaked into RequestPlay: %v", err)
	}
	if a.Holder() != "v2" {
		t.Fatalf("holder = %q", a.Holder())
	}
}

func TestUnregisterClearsHolderWithoutPromotion(t *testing.T) {
	ctx := context.Background()
	a := arbiter.New()
	a.Register("v1", &recordingHandle{})
	a.Register("v2", &recordingHandle{})
	if _, err := a.RequestPlay(ctx, "v1"); err != nil {
		t.Fatalf("RequestPlay: %v", err)
	}

	if a.Unregister("v2") {
		t.Fatal("v2 was not the holder")
	}
	if !a.Unregister("v1") {
		t.Fatal("expected v1 to have been the holder")
	}
	if a.Holder() != "" {
		t.Fatalf("expected empty slot, got %q", a.Holder())
	}
	if a.Registered() != 0 {
		t.Fatalf("expected no registered handles, got %d", a.Registered())
	}
}

func TestRequestPauseOnlyReleasesHolder(t *testing.T) {
	ctx := context.Background()
	a := arbiter.New()
	a.Register("v1", &recordingHandle{})
	a.Register("v2", &recordingHandle{})
	if _, err := a.RequestPlay(ctx, "v1"); err != nil {
		t.Fatalf("RequestPlay: %v", err)
	}
	if a.RequestPause("v2") {
		t.Fatal("non-holder pause must be a no-op")
	}
	if a.Holder() != "v1" {
		t.Fatalf("holder changed to %q", a.Holder())
	}
	if !a.RequestPause("v1") || a.Holder() != "" {
		t.Fatalf("expected slot released, holder=%q", a.Holder())
	}
}

func TestPauseAllPausesEveryHandle(t *testing.T) {
	a := arbiter.New()
	handles := map[string]*recordingHandle{"v1": {}, "v2": {}, "v3": {pauseErr: errors.New("gone")}}
	for id, h := range handles {
		a.Register(id, h)
	}
	if _, err := a.RequestPlay(context.Background(), "v2"); err != nil {
		t.Fatalf("RequestPlay: %v", err)
	}
	a.PauseAll(context.Background())
	if a.Holder() != "" {
		t.Fatalf("expected empty slot, got %q", a.Holder())
	}
	for id, h := range handles {
		if h.pauseCount() != 1 {
			t.Fatalf("%s paused %d times", id, h.pauseCount())
		}
	}
	if got := strings.Join(a.RegisteredIDs(), ","); got != "v1,v2,v3" {
		t.Fatalf("unexpected registered ids %q", got)
	}
}

func TestSingleHolderAcrossRandomSequences(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))
	ids := []string{"v0", "v1", "v2", "v3"}
	a := arbiter.New()
	for _, id := range ids {
		a.Register(id, &recordingHandle{})
	}
	playing := map[string]bool{}

	for step := 0; step < 2000; step++ {
		id := ids[rng.IntN(len(ids))]
		switch rng.IntN(4) {
		case 0, 1:
			preempted, err := a.RequestPlay(ctx, id)
			if errors.Is(err, arbiter.ErrNotRegistered) {
				continue
			}
			if err != nil {
				t.Fatalf("step %d: %v", step, err)
			}
			delete(playing, preempted)
			playing[id] = true
		case 2:
			if a.RequestPause(id) {
				delete(playing, id)
			}
		case 3:
			a.Unregister(id)
			delete(playing, id)
			a.Register(id, &recordingHandle{})
		}
		if len(playing) > 1 {
			t.Fatalf("step %d: %d authorized videos: %v", step, len(playing), playing)
		}
		if holder := a.Holder(); holder != "" && !playing[holder] {
			t.Fatalf("step %d: holder %q not tracked", step, holder)
		}
	}
}

func TestConfirmPlayingRecoversWithLastWriterWins(t *testing.T) {
	ctx := context.Background()
	a := arbiter.New()
	stale := &recordingHandle{}
	a.Register("v1", stale)
	a.Register("v2", &recordingHandle{})
	if _, err := a.RequestPlay(ctx, "v1"); err != nil {
		t.Fatalf("RequestPlay: %v", err)
	}
	if stale, err := a.ConfirmPlaying(ctx, "v1"); err != nil || stale != "" {
		t.Fatalf("holder confirmation failed: %q %v", stale, err)
	}

	staleID, err := a.ConfirmPlaying(ctx, "v2")
	if !errors.Is(err, services.ErrInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
	if staleID != "v1" {
		t.Fatalf("expected stale holder v1 reported, got %q", staleID)
	}
	if a.Holder() != "v2" {
		t.Fatalf("expected last writer v2 to hold, got %q", a.Holder())
	}
	if stale.pauseCount() != 1 {
		t.Fatalf("expected stale holder force-paused once, got %d", stale.pauseCount())
	}
}

func TestConfirmPlayingPanicsInStrictMode(t *testing.T) {
	a := arbiter.New(arbiter.WithStrictInvariants(true))
	a.Register("v1", &recordingHandle{})
	a.Register("v2", &recordingHandle{})
	if _, err := a.RequestPlay(context.Background(), "v1"); err != nil {
		t.Fatalf("RequestPlay: %v", err)
	}
	defer func() {
		recovered := recover()
		if recovered == nil {
			t.Fatal("expected panic in strict mode")
		}
		err, ok := recovered.(error)
		if !ok || !errors.Is(err, services.ErrInvariant) {
			t.Fatalf("unexpected panic value %v", recovered)
		}
	}()
	_, _ = a.ConfirmPlaying(context.Background(), "v2")
}

func TestResetDropsHandles(t *testing.T) {
	a := arbiter.New()
	h := &recordingHandle{}
	a.Register("v1", h)
	if _, err := a.RequestPlay(context.Background(), "v1"); err != nil {
		t.Fatalf("RequestPlay: %v", err)
	}
	a.Reset()
	if a.Holder() != "" || a.Registered() != 0 {
		t.Fatalf("reset left holder=%q registered=%d", a.Holder(), a.Registered())
	}
	if h.pauseCount() != 0 {
		t.Fatal("reset must not command handles")
	}
}
