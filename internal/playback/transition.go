package playback

import "feedplay/internal/analytics"

// Transition computes the next state and the effects to run for one event.
// It never mutates its input and never performs I/O.
func Transition(cfg Config, s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case Mounted:
		return State{Status: StatusLoading, LoadingSince: e.At}, nil
	case ActiveChanged:
		if e.Active {
			return activate(cfg, s, e)
		}
		return deactivate(s)
	case Tick:
		return settle(cfg, s, e)
	case Loaded:
		s.Decodable = true
		return s, nil
	case Progress:
		if e.PositionMs >= 0 {
			s.PositionMs = e.PositionMs
		}
		return s, nil
	case Ended:
		if s.Status != StatusPlaying {
			return s, nil
		}
		s.Status = StatusPaused
		s.WantsPlay = false
		s.PositionMs = 0
		return s, []Effect{
			SeekPlayer{PositionMs: 0},
			ReleaseGrant{},
			Emit{Type: analytics.EventPlaybackComplete},
		}
	case Failed:
		return fail(s, e.Reason)
	case Tapped:
		return tap(s)
	case Granted:
		if !s.WantsPlay || (s.Status != StatusReady && s.Status != StatusPaused) {
			// Stale grant; hand the slot back.
			s.WantsPlay = false
			return s, []Effect{ReleaseGrant{}}
		}
		s.WantsPlay = false
		s.Status = StatusPlaying
		return s, []Effect{
			StartPlayer{},
			Emit{Type: analytics.EventPlaybackStart, Metadata: map[string]any{"position_ms": s.PositionMs}},
		}
	case Denied:
		s.WantsPlay = false
		return s, nil
	case Preempted, Backgrounded:
		s.WantsPlay = false
		if s.Status != StatusPlaying {
			return s, nil
		}
		s.Status = StatusPaused
		return s, []Effect{pauseEvent(s, EventName(ev))}
	case Retry:
		if s.Status != StatusError {
			return s, nil
		}
		s.Status = StatusLoading
		s.Reason = ""
		s.Settled = false
		s.WantsPlay = false
		if s.Active {
			s.ActiveSince = e.At
		}
		return settle(cfg, s, Tick{At: e.At})
	default:
		return s, nil
	}
}

func activate(cfg Config, s State, e ActiveChanged) (State, []Effect) {
	if !s.Active {
		s.Active = true
		s.ActiveSince = e.At
		s.Settled = false
	}
	return settle(cfg, s, Tick{At: e.At})
}

func deactivate(s State) (State, []Effect) {
	if !s.Active {
		return s, nil
	}
	s.Active = false
	s.Settled = false
	var effects []Effect
	if s.WantsPlay {
		s.WantsPlay = false
		effects = append(effects, ReleaseGrant{})
	}
	if s.Status == StatusPlaying {
		s.Status = StatusPaused
		effects = append(effects, PausePlayer{}, ReleaseGrant{}, pauseEvent(s, "inactive"))
	}
	return s, effects
}

// settle promotes an active tile once it has been active for the settle
// delay: Loading becomes Ready, and with autoplay the tile asks for the slot.
func settle(cfg Config, s State, e Tick) (State, []Effect) {
	if !s.Active || s.Settled {
		return s, nil
	}
	switch s.Status {
	case StatusLoading, StatusReady, StatusPaused:
	default:
		return s, nil
	}
	if e.At.Sub(s.ActiveSince) < cfg.SettleDelay {
		return s, nil
	}
	s.Settled = true

	var effects []Effect
	if s.Status == StatusLoading {
		s.Status = StatusReady
		meta := map[string]any{}
		if !s.FirstFrameReported {
			s.FirstFrameReported = true
			meta["ttff_ms"] = e.At.Sub(s.LoadingSince).Milliseconds()
		} else {
			meta["after_retry"] = true
		}
		effects = append(effects, Emit{Type: analytics.EventFirstFrame, Metadata: meta})
	}
	if cfg.Autoplay && !s.WantsPlay {
		s.WantsPlay = true
		effects = append(effects, RequestGrant{})
	}
	return s, effects
}

func fail(s State, reason string) (State, []Effect) {
	if reason == "" {
		reason = "unknown error"
	}
	if s.Status == StatusError {
		s.Reason = reason
		return s, nil
	}
	var effects []Effect
	if s.Status == StatusPlaying || s.WantsPlay {
		effects = append(effects, ReleaseGrant{})
	}
	s.Status = StatusError
	s.Reason = reason
	s.WantsPlay = false
	s.Settled = false
	effects = append(effects, Emit{Type: analytics.EventPlaybackError, Metadata: map[string]any{"reason": reason}})
	return s, effects
}

func tap(s State) (State, []Effect) {
	switch s.Status {
	case StatusReady, StatusPaused:
		if s.WantsPlay {
			return s, nil
		}
		s.WantsPlay = true
		return s, []Effect{RequestGrant{}}
	case StatusPlaying:
		s.Status = StatusPaused
		return s, []Effect{PausePlayer{}, ReleaseGrant{}, pauseEvent(s, "user")}
	default:
		return s, nil
	}
}

func pauseEvent(s State, cause string) Emit {
	return Emit{
		Type:     analytics.EventPlaybackPause,
		Metadata: map[string]any{"position_ms": s.PositionMs, "cause": cause},
	}
}
