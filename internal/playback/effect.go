package playback

import "feedplay/internal/analytics"

// Effect is a side effect requested by Transition.
type Effect interface {
	effectName() string
}

// RequestGrant asks the arbiter for the playback slot.
type RequestGrant struct{}

// ReleaseGrant returns the slot if the tile holds it.
type ReleaseGrant struct{}

// StartPlayer invokes the control handle's play capability.
type StartPlayer struct{}

// PausePlayer invokes the control handle's pause capability.
type PausePlayer struct{}

// SeekPlayer moves the player position.
type SeekPlayer struct{ PositionMs int64 }

// Emit sends one analytics event.
type Emit struct {
	Type     analytics.EventType
	Metadata map[string]any
}

func (RequestGrant) effectName() string { return "request_grant" }
func (ReleaseGrant) effectName() string { return "release_grant" }
func (StartPlayer) effectName() string  { return "start_player" }
func (PausePlayer) effectName() string  { return "pause_player" }
func (SeekPlayer) effectName() string   { return "seek_player" }
func (Emit) effectName() string         { return "emit" }

// EffectName returns a stable label for logging.
func EffectName(eff Effect) string {
	if eff == nil {
		return ""
	}
	return eff.effectName()
}
