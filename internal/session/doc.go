// Package session is the feed screen's coordinator. A Session owns one
// arbiter, one visibility reconciler, one prefetch scheduler, and the
// playback tiles mounted for the current feed snapshot, and exposes the
// operations the UI layer calls: visibility changes, taps, mount/unmount,
// player callbacks, and the app-background hook.
//
// Every exposed operation runs under the session mutex, standing in for the
// UI event loop. Prefetch fetches run on their own goroutines. Nothing is
// global: independent sessions never share state.
//
// Failures never cross the session boundary. Callers observe tile status
// (including the Error status) and prefetch stats.
package session
