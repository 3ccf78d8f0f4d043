// Package analytics carries playback lifecycle events out of the core.
//
// Sink is the fire-and-forget boundary: LogEvent must never block or fail
// into the caller. LogSink mirrors events to the structured logger,
// MemorySink keeps them for inspection, MultiSink fans out, and BatchSink
// buffers events and hands them to a Flusher (the SQLite store in the CLI)
// by batch size or flush interval.
package analytics
