package playback

import "time"

// Status is the externally visible playback status of a tile.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusPlaying
	StatusPaused
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Config holds the knobs the transition function reads.
type Config struct {
	Autoplay    bool
	SettleDelay time.Duration
}

// State is the full per-tile state. The zero value is not meaningful; tiles
// start from the result of a Mounted event.
type State struct {
	Status Status
	// Reason is set while Status is StatusError.
	Reason string

	Active      bool
	ActiveSince time.Time
	// Settled is set once the tile has been active for the settle delay.
	Settled bool
	// WantsPlay marks an outstanding grant request.
	WantsPlay bool

	LoadingSince       time.Time
	FirstFrameReported bool
	Decodable          bool
	PositionMs         int64
}
