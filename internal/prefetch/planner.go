package prefetch

import "feedplay/internal/feed"

// TargetKind distinguishes media from thumbnails.
type TargetKind string

const (
	KindVideo     TargetKind = "video"
	KindThumbnail TargetKind = "thumbnail"
)

// Target is one URL the planner wants fetched.
type Target struct {
	URL     string
	Kind    TargetKind
	VideoID string
}

// PlannerOptions selects which neighbours are prefetched.
type PlannerOptions struct {
	Enabled   bool
	Distance  int
	NextPost  bool
	NextVideo bool
}

// Planner derives prefetch targets from the active position.
type Planner struct {
	opts PlannerOptions
}

// NewPlanner returns a planner; a distance below 1 is treated as 1.
func NewPlanner(opts PlannerOptions) *Planner {
	if opts.Distance < 1 {
		opts.Distance = 1
	}
	return &Planner{opts: opts}
}

// Plan returns, in scheduling order, the video Distance positions ahead in
// the active carousel and the first video of the post Distance positions
// ahead, each followed by its thumbnail. Out-of-range neighbours are skipped.
func (p *Planner) Plan(snap feed.Snapshot, post, video int) []Target {
	if !p.opts.Enabled {
		return nil
	}
	var targets []Target
	if p.opts.NextVideo {
		if v, ok := snap.Video(post, video+p.opts.Distance); ok {
			targets = appendVideo(targets, v)
		}
	}
	if p.opts.NextPost {
		if v, ok := snap.Video(post+p.opts.Distance, 0); ok {
			targets = appendVideo(targets, v)
		}
	}
	return targets
}

// PlanPrevious returns the first video of the previous post and its thumbnail.
func (p *Planner) PlanPrevious(snap feed.Snapshot, post int) []Target {
	if !p.opts.Enabled {
		return nil
	}
	v, ok := snap.Video(post-1, 0)
	if !ok {
		return nil
	}
	return appendVideo(nil, v)
}

func appendVideo(targets []Target, v feed.VideoRef) []Target {
	if v.URL != "" {
		targets = append(targets, Target{URL: v.URL, Kind: KindVideo, VideoID: v.ID})
	}
	if v.ThumbnailURL != "" {
		targets = append(targets, Target{URL: v.ThumbnailURL, Kind: KindThumbnail, VideoID: v.ID})
	}
	return targets
}

// ScheduleAll schedules each target and returns how many were newly queued.
func (s *Scheduler) ScheduleAll(targets []Target) int {
	added := 0
	for _, t := range targets {
		if s.Schedule(t.URL) {
			added++
		}
	}
	return added
}
