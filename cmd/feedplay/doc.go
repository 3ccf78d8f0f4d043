// Package main hosts the feedplay CLI entrypoint and command graph.
//
// The Cobra-based command tree replays feed scripts against a playback
// session (`simulate`, `watch`), inspects the analytics and prefetch ledger
// persisted in the state directory (`events`, `prefetch`), and scaffolds
// configuration (`config`). It centralizes configuration resolution, store
// locking, and structured logging setup so subcommands can focus on output.
//
// Keep this package lean: behaviour belongs in the internal packages, and
// commands here only wire them together and render results.
package main
