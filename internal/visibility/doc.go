// Package visibility reduces viewport visibility samples into the active
// (post, video) position.
//
// Each scroll axis feeds a Debouncer with (index, coverage, timestamp)
// samples. An index is promoted only after its coverage has stayed at or
// above the threshold for the dwell time, measured from sample timestamps.
// When several indexes qualify at once the lowest index wins. Reconciler
// composes a post-level and a carousel-level debouncer: a post change resets
// the carousel to its first video, and carousel samples from posts other
// than the active one are ignored.
package visibility
