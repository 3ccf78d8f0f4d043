// Package config loads, normalizes, and validates feedplay configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FEEDPLAY_STATE_DIR. The Config type centralizes every knob the playback
// core and CLI need: autoplay and settle timing, visibility thresholds and
// dwell times, prefetch concurrency, retry policy, and analytics batching.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, clamped thresholds, and clear validation errors.
package config
