package playback

import (
	"testing"
	"time"

	"feedplay/internal/analytics"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func run(t *testing.T, cfg Config, events ...Event) (State, []Effect) {
	t.Helper()
	s, _ := Transition(cfg, State{}, Mounted{At: t0})
	var all []Effect
	for _, ev := range events {
		var effects []Effect
		s, effects = Transition(cfg, s, ev)
		all = append(all, effects...)
	}
	return s, all
}

func effectNames(effects []Effect) []string {
	names := make([]string, 0, len(effects))
	for _, eff := range effects {
		names = append(names, EffectName(eff))
	}
	return names
}

func emitted(effects []Effect) []analytics.EventType {
	var out []analytics.EventType
	for _, eff := range effects {
		if e, ok := eff.(Emit); ok {
			out = append(out, e.Type)
		}
	}
	return out
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSettleDelayPromotesLoadingToReady(t *testing.T) {
	cfg := Config{Autoplay: true, SettleDelay: 300 * time.Millisecond}

	s, effects := run(t, cfg, ActiveChanged{Active: true, At: at(100)}, Tick{At: at(399)})
	if s.Status != StatusLoading || len(effects) != 0 {
		t.Fatalf("promoted before settle delay: %v %v", s.Status, effectNames(effects))
	}

	s, effects = Transition(cfg, s, Tick{At: at(400)})
	if s.Status != StatusReady {
		t.Fatalf("expected ready, got %v", s.Status)
	}
	if got := effectNames(effects); !equalNames(got, []string{"emit", "request_grant"}) {
		t.Fatalf("unexpected effects %v", got)
	}
	ttff := effects[0].(Emit)
	if ttff.Type != analytics.EventFirstFrame || ttff.Metadata["ttff_ms"] != int64(400) {
		t.Fatalf("unexpected first frame event %+v", ttff)
	}
	if !s.WantsPlay {
		t.Fatal("expected outstanding grant request")
	}

	// Further ticks must not repeat the grant request.
	s, effects = Transition(cfg, s, Tick{At: at(900)})
	if len(effects) != 0 {
		t.Fatalf("repeated effects %v", effectNames(effects))
	}
}

func TestWithoutAutoplayReadyWaitsForTap(t *testing.T) {
	cfg := Config{SettleDelay: 0}
	s, effects := run(t, cfg, ActiveChanged{Active: true, At: at(10)})
	if s.Status != StatusReady {
		t.Fatalf("expected ready, got %v", s.Status)
	}
	if got := effectNames(effects); !equalNames(got, []string{"emit"}) {
		t.Fatalf("unexpected effects %v", got)
	}

	s, effects = Transition(cfg, s, Tapped{})
	if got := effectNames(effects); !equalNames(got, []string{"request_grant"}) {
		t.Fatalf("tap should request grant, got %v", got)
	}
	if s.Status != StatusReady {
		t.Fatal("tile must not play before the grant")
	}

	s, effects = Transition(cfg, s, Granted{})
	if s.Status != StatusPlaying {
		t.Fatalf("expected playing after grant, got %v", s.Status)
	}
	if got := effectNames(effects); !equalNames(got, []string{"start_player", "emit"}) {
		t.Fatalf("unexpected effects %v", got)
	}
}

func TestTapWhilePlayingPausesAndReleases(t *testing.T) {
	cfg := Config{Autoplay: true}
	s, _ := run(t, cfg, ActiveChanged{Active: true, At: at(0)}, Granted{})
	if s.Status != StatusPlaying {
		t.Fatalf("setup: expected playing, got %v", s.Status)
	}
	s, effects := Transition(cfg, s, Tapped{})
	if s.Status != StatusPaused {
		t.Fatalf("expected paused, got %v", s.Status)
	}
	if got := effectNames(effects); !equalNames(got, []string{"pause_player", "release_grant", "emit"}) {
		t.Fatalf("unexpected effects %v", got)
	}
	if types := emitted(effects); types[0] != analytics.EventPlaybackPause {
		t.Fatalf("expected pause event, got %v", types)
	}
}

func TestBecomingInactiveWhilePlayingPauses(t *testing.T) {
	cfg := Config{Autoplay: true}
	s, _ := run(t, cfg, ActiveChanged{Active: true, At: at(0)}, Granted{})
	s, effects := Transition(cfg, s, ActiveChanged{Active: false, At: at(50)})
	if s.Status != StatusPaused || s.Active {
		t.Fatalf("unexpected state %+v", s)
	}
	if got := effectNames(effects); !equalNames(got, []string{"pause_player", "release_grant", "emit"}) {
		t.Fatalf("unexpected effects %v", got)
	}
}

func TestReactivatedPausedTileAutoplaysAfterSettle(t *testing.T) {
	cfg := Config{Autoplay: true, SettleDelay: 100 * time.Millisecond}
	s, _ := run(t, cfg,
		ActiveChanged{Active: true, At: at(0)},
		Tick{At: at(100)},
		Granted{},
		ActiveChanged{Active: false, At: at(200)},
	)
	if s.Status != StatusPaused {
		t.Fatalf("setup: expected paused, got %v", s.Status)
	}
	s, effects := Transition(cfg, s, ActiveChanged{Active: true, At: at(300)})
	if len(effects) != 0 {
		t.Fatalf("grant requested before settle: %v", effectNames(effects))
	}
	s, effects = Transition(cfg, s, Tick{At: at(400)})
	if got := effectNames(effects); !equalNames(got, []string{"request_grant"}) {
		t.Fatalf("expected grant request only, got %v", got)
	}
	if s.Status != StatusPaused {
		t.Fatalf("status changed before grant: %v", s.Status)
	}
}

func TestEndedPausesRewindsAndCompletes(t *testing.T) {
	cfg := Config{Autoplay: true}
	s, _ := run(t, cfg, ActiveChanged{Active: true, At: at(0)}, Granted{}, Progress{PositionMs: 14500})
	if s.PositionMs != 14500 {
		t.Fatalf("progress not recorded: %d", s.PositionMs)
	}
	s, effects := Transition(cfg, s, Ended{})
	if s.Status != StatusPaused || s.PositionMs != 0 {
		t.Fatalf("unexpected state %+v", s)
	}
	if got := effectNames(effects); !equalNames(got, []string{"seek_player", "release_grant", "emit"}) {
		t.Fatalf("unexpected effects %v", got)
	}
	if types := emitted(effects); len(types) != 1 || types[0] != analytics.EventPlaybackComplete {
		t.Fatalf("expected single complete event, got %v", types)
	}
}

func TestFailureFromAnyStateThenRetry(t *testing.T) {
	cfg := Config{Autoplay: true}
	for _, setup := range [][]Event{
		nil,
		{ActiveChanged{Active: true, At: at(0)}},
		{ActiveChanged{Active: true, At: at(0)}, Granted{}},
	} {
		s, _ := run(t, cfg, setup...)
		wasPlaying := s.Status == StatusPlaying
		s, effects := Transition(cfg, s, Failed{Reason: "decode error"})
		if s.Status != StatusError || s.Reason != "decode error" {
			t.Fatalf("expected error state, got %+v", s)
		}
		if types := emitted(effects); len(types) != 1 || types[0] != analytics.EventPlaybackError {
			t.Fatalf("expected one error event, got %v", types)
		}
		if wasPlaying && effectNames(effects)[0] != "release_grant" {
			t.Fatalf("playing tile must release its grant, got %v", effectNames(effects))
		}

		// A second failure while already in Error is not a new transition.
		if _, again := Transition(cfg, s, Failed{Reason: "still broken"}); len(again) != 0 {
			t.Fatalf("repeated failure emitted %v", effectNames(again))
		}
	}

	s, _ := run(t, cfg, ActiveChanged{Active: true, At: at(0)}, Granted{}, Failed{Reason: "network"})
	s, effects := Transition(cfg, s, Tapped{})
	if len(effects) != 0 || s.Status != StatusError {
		t.Fatal("tap must not leave error state")
	}
	s, effects = Transition(cfg, s, Retry{At: at(500)})
	// Zero settle delay and still active: straight back to Ready and a new grant.
	if s.Status != StatusReady {
		t.Fatalf("expected ready after retry, got %v", s.Status)
	}
	first := effects[0].(Emit)
	if first.Type != analytics.EventFirstFrame || first.Metadata["after_retry"] != true {
		t.Fatalf("unexpected event after retry %+v", first)
	}
	if _, ok := first.Metadata["ttff_ms"]; ok {
		t.Fatal("time to first frame must be reported once per mount")
	}
}

func TestRetryOnlyFromError(t *testing.T) {
	cfg := Config{}
	s, _ := run(t, cfg, ActiveChanged{Active: true, At: at(0)})
	next, effects := Transition(cfg, s, Retry{At: at(10)})
	if next != s || len(effects) != 0 {
		t.Fatalf("retry outside error changed state: %+v", next)
	}
}

func TestLoadedMarksDecodableOnly(t *testing.T) {
	s, effects := run(t, Config{}, Loaded{})
	if s.Status != StatusLoading || !s.Decodable || len(effects) != 0 {
		t.Fatalf("unexpected result %+v %v", s, effectNames(effects))
	}
}

func TestPreemptedAndBackgroundedPauseWithoutPlayerCommand(t *testing.T) {
	cfg := Config{Autoplay: true}
	for _, ev := range []Event{Preempted{}, Backgrounded{}} {
		s, _ := run(t, cfg, ActiveChanged{Active: true, At: at(0)}, Granted{})
		s, effects := Transition(cfg, s, ev)
		if s.Status != StatusPaused {
			t.Fatalf("%s: expected paused, got %v", EventName(ev), s.Status)
		}
		if got := effectNames(effects); !equalNames(got, []string{"emit"}) {
			t.Fatalf("%s: unexpected effects %v", EventName(ev), got)
		}
	}
}

func TestStaleGrantIsReturned(t *testing.T) {
	s, _ := run(t, Config{}, ActiveChanged{Active: true, At: at(0)})
	s, effects := Transition(Config{}, s, Granted{})
	if s.Status != StatusReady {
		t.Fatalf("unrequested grant started playback: %v", s.Status)
	}
	if got := effectNames(effects); !equalNames(got, []string{"release_grant"}) {
		t.Fatalf("unexpected effects %v", got)
	}
}

func TestEveryStatusChangeEmitsAtMostOneEvent(t *testing.T) {
	cfg := Config{Autoplay: true}
	s, _ := Transition(cfg, State{}, Mounted{At: t0})
	script := []Event{
		ActiveChanged{Active: true, At: at(0)}, Denied{}, Tapped{}, Granted{}, Progress{PositionMs: 10},
		Tapped{}, Tapped{}, Granted{}, Preempted{}, Tapped{}, Granted{}, Ended{},
		Failed{Reason: "x"}, Retry{At: at(10)}, Granted{}, Backgrounded{},
		ActiveChanged{Active: false, At: at(20)},
	}
	for i, ev := range script {
		prev := s.Status
		var effects []Effect
		s, effects = Transition(cfg, s, ev)
		n := len(emitted(effects))
		if prev == s.Status && n != 0 {
			t.Fatalf("step %d (%s): event emitted without status change", i, EventName(ev))
		}
		if n > 1 {
			t.Fatalf("step %d (%s): %d events emitted", i, EventName(ev), n)
		}
		if prev != s.Status && s.Status != StatusLoading && n != 1 {
			t.Fatalf("step %d (%s): %v -> %v emitted %d events", i, EventName(ev), prev, s.Status, n)
		}
	}
}
