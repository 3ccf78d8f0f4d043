package playback

import "time"

// Event is a tagged input to Transition.
type Event interface {
	eventName() string
}

// Mounted starts a tile in Loading.
type Mounted struct{ At time.Time }

// ActiveChanged carries the reconciler's isActive decision for the tile.
type ActiveChanged struct {
	Active bool
	At     time.Time
}

// Tick re-evaluates the settle window at the given time.
type Tick struct{ At time.Time }

// Loaded reports that the player can decode the media.
type Loaded struct{}

// Progress reports the playback position.
type Progress struct{ PositionMs int64 }

// Ended reports the player reached the end of the media.
type Ended struct{}

// Failed reports a player decode or network failure.
type Failed struct{ Reason string }

// Tapped is a user toggle.
type Tapped struct{}

// Granted reports the arbiter authorized the tile to play.
type Granted struct{}

// Denied reports the arbiter refused a grant request.
type Denied struct{}

// Preempted reports the tile lost the slot to another video.
type Preempted struct{}

// Retry re-enters Loading from Error.
type Retry struct{ At time.Time }

// Backgrounded reports the app moved to the background.
type Backgrounded struct{}

func (Mounted) eventName() string       { return "mounted" }
func (ActiveChanged) eventName() string { return "active_changed" }
func (Tick) eventName() string          { return "tick" }
func (Loaded) eventName() string        { return "loaded" }
func (Progress) eventName() string      { return "progress" }
func (Ended) eventName() string         { return "ended" }
func (Failed) eventName() string        { return "failed" }
func (Tapped) eventName() string        { return "tapped" }
func (Granted) eventName() string       { return "granted" }
func (Denied) eventName() string        { return "denied" }
func (Preempted) eventName() string     { return "preempted" }
func (Retry) eventName() string         { return "retry" }
func (Backgrounded) eventName() string  { return "backgrounded" }

// EventName returns a stable label for logging.
func EventName(ev Event) string {
	if ev == nil {
		return ""
	}
	return ev.eventName()
}
