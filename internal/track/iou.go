package track

import "sort"

// Params tunes the IoU tracker.
type Params struct {
	// MatchIoU is the minimum overlap for an observation to continue an
	// existing track.
	MatchIoU float32
	// Buffer is how many consecutive missed frames a track survives
	// before it is dropped from the active set.
	Buffer int
	// MinScore filters observations before matching; weaker hits neither
	// continue nor spawn tracks.
	MinScore float32
	// Classes defines which detector classes share an identity space.
	Classes Equivalence
}

// IOU is a greedy intersection-over-union tracker. Observations are matched
// best-first against unclaimed tracks of the same identity class; leftovers
// spawn new tracks; unmatched tracks coast on their last box until the miss
// buffer runs out. There is no motion model: at traffic-camera frame rates
// box overlap is a sufficient association signal.
type IOU struct {
	params Params
	nextID int64
	tracks []*state
}

type state struct {
	id      int64
	box     [4]float32
	score   float32
	classID int
	label   string
	misses  int
}

// NewIOU returns a tracker with the given parameters.
func NewIOU(p Params) *IOU {
	return &IOU{params: p, nextID: 1}
}

// Update implements Tracker.
func (t *IOU) Update(obs []Observation) []Track {
	kept := make([]Observation, 0, len(obs))
	for _, o := range obs {
		if o.Score >= t.params.MinScore {
			kept = append(kept, o)
		}
	}
	// Best detections claim tracks first.
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	claimed := make([]bool, len(t.tracks))
	matched := make([]int, len(kept)) // index into t.tracks, -1 = none
	for i := range matched {
		matched[i] = -1
	}

	for i, o := range kept {
		best := -1
		bestIoU := t.params.MatchIoU
		oc := t.params.Classes.Of(o.ClassID)
		for j, tr := range t.tracks {
			if claimed[j] || t.params.Classes.Of(tr.classID) != oc {
				continue
			}
			if v := boxIoU(obsBox(o), tr.box); v >= bestIoU {
				bestIoU = v
				best = j
			}
		}
		if best >= 0 {
			claimed[best] = true
			matched[i] = best
		}
	}

	for i, o := range kept {
		if j := matched[i]; j >= 0 {
			tr := t.tracks[j]
			tr.box = obsBox(o)
			tr.score = o.Score
			tr.classID = o.ClassID
			tr.label = o.Label
			tr.misses = 0
			continue
		}
		t.tracks = append(t.tracks, &state{
			id:      t.nextID,
			box:     obsBox(o),
			score:   o.Score,
			classID: o.ClassID,
			label:   o.Label,
		})
		claimed = append(claimed, true)
		t.nextID++
	}

	active := t.tracks[:0]
	for j, tr := range t.tracks {
		if !claimed[j] {
			tr.misses++
			if tr.misses > t.params.Buffer {
				continue
			}
		}
		active = append(active, tr)
	}
	t.tracks = active

	out := make([]Track, len(t.tracks))
	for i, tr := range t.tracks {
		out[i] = Track{
			ID: tr.id,
			X1: tr.box[0], Y1: tr.box[1], X2: tr.box[2], Y2: tr.box[3],
			Score:   tr.score,
			ClassID: tr.classID,
			Label:   tr.label,
			Misses:  tr.misses,
		}
	}
	return out
}

func obsBox(o Observation) [4]float32 {
	return [4]float32{o.X1, o.Y1, o.X2, o.Y2}
}

func boxIoU(a, b [4]float32) float32 {
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	inter := (x2 - x1) * (y2 - y1)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - inter

	if union <= 0 {
		return 0
	}
	return inter / union
}
