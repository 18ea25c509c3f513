// Package stats turns tracker output into traffic statistics: distinct
// vehicle totals, per-lane occupancy, and rolling per-lane activity. All
// bookkeeping is keyed on frame timestamps, so behavior is deterministic for
// a given input sequence.
package stats

import (
	"sort"
	"time"

	"lanewatch-go/internal/lane"
	"lanewatch-go/internal/models"
)

// Aggregator accumulates per-track lifecycle data across frames. It is owned
// by the statistics stage's goroutine; no locking.
type Aggregator struct {
	lanes  *lane.Set
	warmup time.Duration
	window time.Duration

	started time.Time
	// seen maps track id -> first time the id appeared. Its size is the
	// distinct-vehicle total.
	seen map[int64]time.Time
	// laneSeen maps lane id -> track id -> last time the track stood in
	// that lane. Feeds the rolling activity window.
	laneSeen map[string]map[int64]time.Time
}

// NewAggregator builds an aggregator over the given lane set. Lane activity
// stays nil until warmup has elapsed from the first observed frame; activity
// counts distinct track ids per lane over the trailing window.
func NewAggregator(lanes *lane.Set, warmup, window time.Duration) *Aggregator {
	a := &Aggregator{
		lanes:    lanes,
		warmup:   warmup,
		window:   window,
		seen:     make(map[int64]time.Time),
		laneSeen: make(map[string]map[int64]time.Time),
	}
	for _, id := range lanes.IDs() {
		a.laneSeen[id] = make(map[int64]time.Time)
	}
	return a
}

// Observe folds one frame's tracked objects into the aggregate state and
// returns the statistics valid as of that frame.
func (a *Aggregator) Observe(f *models.Frame) models.Stats {
	if a.started.IsZero() {
		a.started = f.Timestamp
	}

	occupancy := make(map[string]int, len(a.laneSeen))
	for _, id := range a.lanes.IDs() {
		occupancy[id] = 0
	}

	active := make([]int64, 0, len(f.Tracked))
	for _, t := range f.Tracked {
		active = append(active, t.ID)
		if _, ok := a.seen[t.ID]; !ok {
			a.seen[t.ID] = f.Timestamp
		}
		x, y := t.BottomCenter()
		laneID, ok := a.lanes.Assign(x, y)
		if !ok {
			continue
		}
		occupancy[laneID]++
		a.laneSeen[laneID][t.ID] = f.Timestamp
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })

	return models.Stats{
		Vehicles:      len(a.seen),
		LaneOccupancy: occupancy,
		LaneActivity:  a.activity(f.Timestamp),
		ActiveTracks:  active,
	}
}

// activity returns the rolling per-lane distinct-track counts, or nil while
// the warm-up period is still running. Entries older than the window are
// pruned as a side effect.
func (a *Aggregator) activity(now time.Time) map[string]int {
	if now.Sub(a.started) < a.warmup {
		return nil
	}
	cutoff := now.Add(-a.window)
	out := make(map[string]int, len(a.laneSeen))
	for laneID, tracks := range a.laneSeen {
		for id, last := range tracks {
			if last.Before(cutoff) {
				delete(tracks, id)
			}
		}
		out[laneID] = len(tracks)
	}
	return out
}

// Vehicles returns the distinct track ids seen since startup.
func (a *Aggregator) Vehicles() int { return len(a.seen) }
