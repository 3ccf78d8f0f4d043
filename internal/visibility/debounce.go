package visibility

import (
	"sort"
	"time"
)

// Sample is one visibility observation for an item on a scroll axis.
// Coverage is the visible fraction of the item, 0..1.
type Sample struct {
	Index    int
	Visible  bool
	Coverage float64
	At       time.Time
}

// Debouncer promotes an index once it has been continuously above the
// threshold for the dwell time. It holds the last stable value otherwise.
type Debouncer struct {
	threshold float64
	dwell     time.Duration
	stable    int
	// above maps an index to the time its current above-threshold run began.
	above map[int]time.Time
}

// NewDebouncer returns a debouncer whose stable value starts at initial.
func NewDebouncer(threshold float64, dwell time.Duration, initial int) *Debouncer {
	return &Debouncer{
		threshold: threshold,
		dwell:     dwell,
		stable:    initial,
		above:     make(map[int]time.Time),
	}
}

// Stable returns the last promoted index.
func (d *Debouncer) Stable() int {
	return d.stable
}

// Observe records a sample and evaluates promotion at the sample time. It
// returns the stable index and whether it changed.
func (d *Debouncer) Observe(s Sample) (int, bool) {
	if s.Index < 0 {
		return d.stable, false
	}
	if !s.Visible || s.Coverage < d.threshold {
		delete(d.above, s.Index)
	} else if _, ok := d.above[s.Index]; !ok {
		d.above[s.Index] = s.At
	}
	return d.Evaluate(s.At)
}

// Evaluate promotes the lowest index whose run has lasted the dwell time by
// now. With no qualifying index the stable value is kept.
func (d *Debouncer) Evaluate(now time.Time) (int, bool) {
	for _, idx := range d.Candidates() {
		if now.Sub(d.above[idx]) < d.dwell {
			continue
		}
		if idx == d.stable {
			return d.stable, false
		}
		d.stable = idx
		return d.stable, true
	}
	return d.stable, false
}

// Candidates returns the indexes currently above threshold, lowest first.
func (d *Debouncer) Candidates() []int {
	out := make([]int, 0, len(d.above))
	for idx := range d.above {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Reset forgets all runs and sets the stable value.
func (d *Debouncer) Reset(stable int) {
	d.stable = stable
	clear(d.above)
}
