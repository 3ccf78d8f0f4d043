// Package playback implements the per-tile playback state machine.
//
// Transition is a pure function from (State, Event) to the next State and
// the Effects to perform. Tile owns one mounted video, feeds it events, and
// executes the resulting effects against the arbiter, the player control
// handle, and the analytics sink. A tile starts its player only after the
// arbiter has granted it the playback slot.
//
// Time enters only through event timestamps, so every transition is
// reproducible in tests without timers.
package playback
