// Package services defines shared utilities consumed by the playback core and
// the CLI wiring around it.
//
// Key responsibilities:
//   - Context helpers that stamp session, post, and video identifiers for
//     logging and analytics correlation.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (playback, arbitration race, prefetch, invariant) without
//     string matching.
//
// Use these helpers when adding new components so operational behaviour
// (error handling, observability) stays uniform across the core.
package services
