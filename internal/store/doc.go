// Package store persists analytics events and the prefetch ledger in SQLite.
//
// The Store is the Flusher behind analytics.BatchSink and the Recorder
// behind prefetch.Scheduler for CLI runs, and it answers the history
// queries behind `feedplay events` and `feedplay prefetch history`.
//
// The database is diagnostic storage, not an archive. Schema changes bump
// schemaVersion in schema.go; users clear the database to adopt them.
package store
