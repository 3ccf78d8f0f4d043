// Package simulate replays scripted feed interactions against a session.
//
// A Script lists a feed (inline or by path) and an ordered set of steps:
// visibility samples, taps, player callbacks, mounts, clock advances and
// lifecycle hooks. Run drives a session on a virtual clock with simulated
// player handles and a simulated fetcher, and returns a Report with the
// active position and slot holder after every step plus the emitted
// analytics events. The CLI uses it for `feedplay simulate` and
// `feedplay watch`.
package simulate
