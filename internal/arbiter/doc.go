// Package arbiter guarantees that at most one video in a feed session is
// authorized to play at any instant.
//
// Tiles register a ControlHandle when they mount. RequestPlay pauses the
// previous holder and grants the slot under a single lock, so there is no
// window in which two videos hold authorization. The arbiter never starts a
// player itself; the caller's state machine does that after the grant.
//
// Handle failures are expected races with tiles that are already unmounting.
// They are logged at debug level and never returned to callers.
package arbiter
