package visibility

import (
	"fmt"
	"strings"
	"time"
)

// Scope names a scroll axis.
type Scope string

const (
	ScopePost     Scope = "post"
	ScopeCarousel Scope = "carousel"
)

// ParseScope accepts "post" or "carousel", case-insensitively.
func ParseScope(value string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(value))) {
	case ScopePost:
		return ScopePost, nil
	case ScopeCarousel:
		return ScopeCarousel, nil
	default:
		return "", fmt.Errorf("unknown visibility scope %q", value)
	}
}

// Position is the active (post, video) pair.
type Position struct {
	Post  int `json:"post"`
	Video int `json:"video"`
}

// Options configures a Reconciler. Thresholds are fractions 0..1.
type Options struct {
	PostThreshold     float64
	CarouselThreshold float64
	PostDwell         time.Duration
	CarouselDwell     time.Duration
	InitialPost       int
}

// DefaultOptions mirrors the stock viewability settings.
func DefaultOptions() Options {
	return Options{
		PostThreshold:     0.8,
		CarouselThreshold: 0.5,
		PostDwell:         250 * time.Millisecond,
		CarouselDwell:     100 * time.Millisecond,
	}
}

// Reconciler holds the active position derived from both axes.
type Reconciler struct {
	post     *Debouncer
	carousel *Debouncer
	pos      Position
}

// NewReconciler returns a reconciler positioned at (InitialPost, 0).
func NewReconciler(opts Options) *Reconciler {
	initial := max(opts.InitialPost, 0)
	return &Reconciler{
		post:     NewDebouncer(opts.PostThreshold, opts.PostDwell, initial),
		carousel: NewDebouncer(opts.CarouselThreshold, opts.CarouselDwell, 0),
		pos:      Position{Post: initial},
	}
}

// Active returns the current position.
func (r *Reconciler) Active() Position {
	return r.pos
}

// IsActive reports whether (post, video) is the active position.
func (r *Reconciler) IsActive(post, video int) bool {
	return r.pos.Post == post && r.pos.Video == video
}

// Observe feeds one sample. For the carousel scope, postIndex names the post
// that owns the carousel; samples from any post but the active one are
// dropped. It returns the position and whether it changed.
func (r *Reconciler) Observe(scope Scope, postIndex int, s Sample) (Position, bool) {
	switch scope {
	case ScopePost:
		idx, changed := r.post.Observe(s)
		if changed {
			r.movePost(idx)
		}
		return r.pos, changed
	case ScopeCarousel:
		if postIndex != r.pos.Post {
			return r.pos, false
		}
		idx, changed := r.carousel.Observe(s)
		if changed {
			r.pos.Video = idx
		}
		return r.pos, changed
	default:
		return r.pos, false
	}
}

// Tick evaluates both debouncers at now, promoting runs whose dwell time has
// elapsed since their last sample.
func (r *Reconciler) Tick(now time.Time) (Position, bool) {
	changed := false
	if idx, ok := r.post.Evaluate(now); ok {
		r.movePost(idx)
		changed = true
	}
	if idx, ok := r.carousel.Evaluate(now); ok {
		r.pos.Video = idx
		changed = true
	}
	return r.pos, changed
}

// Reset returns to (post, 0) and forgets all pending runs.
func (r *Reconciler) Reset(post int) {
	post = max(post, 0)
	r.post.Reset(post)
	r.carousel.Reset(0)
	r.pos = Position{Post: post}
}

func (r *Reconciler) movePost(idx int) {
	r.pos = Position{Post: idx, Video: 0}
	r.carousel.Reset(0)
}
