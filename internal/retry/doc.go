// Package retry runs an operation with exponential backoff.
//
// The prefetch scheduler never retries on its own. Callers that want
// backoff wrap their fetch primitive with Fetcher, which retries only
// errors IsRetryable classifies as transient.
package retry
