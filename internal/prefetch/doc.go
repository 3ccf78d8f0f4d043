// Package prefetch schedules fetches of upcoming media under a concurrency cap.
//
// Scheduler keeps a FIFO queue of pending URLs, an in-flight counter bounded
// by MaxConcurrent, and a set of URLs already fetched. Scheduling a URL that
// is cached, queued, or in flight is a no-op. Each completion decrements the
// counter before draining the queue again, so the queue sustains itself
// without polling. Failures are logged and dropped; wrap the Fetcher with
// the retry package for backoff.
//
// The cache is never evicted; Reset is the only way to clear it.
//
// Planner turns the active feed position into the URLs worth fetching next.
package prefetch
