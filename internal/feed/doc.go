// Package feed defines the immutable feed snapshot consumed by the playback
// core: posts in vertical order, each holding a carousel of videos.
//
// Snapshots are replaced wholesale on refresh and never mutated in place.
// Load reads a snapshot from JSON or TOML so the CLI and simulation scripts
// share one fixture format.
package feed
