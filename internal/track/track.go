// Package track associates per-frame detections with stable object
// identities. The tracker contract is deliberately narrow: every frame the
// caller passes the full observation list (never nil, possibly empty) and
// receives the authoritative active set back. Passing an empty list is how
// tracks age out when the detector sees nothing.
package track

import "image"

// Observation is one detector hit handed to the tracker, in pixel
// coordinates with x2 > x1 and y2 > y1.
type Observation struct {
	X1, Y1, X2, Y2 float32
	Score          float32
	ClassID        int
	Label          string
}

// Track is one entry of the tracker's active set. Misses is zero when the
// track matched an observation this frame and counts consecutive missed
// frames while the track coasts on its last known box. Label and ClassID
// follow the most recent matched observation.
type Track struct {
	ID             int64
	X1, Y1, X2, Y2 float32
	Score          float32
	ClassID        int
	Label          string
	Misses         int
}

// Rect returns the track box as an image rectangle.
func (t Track) Rect() image.Rectangle {
	return image.Rect(int(t.X1), int(t.Y1), int(t.X2), int(t.Y2))
}

// Tracker is the per-frame association contract used by the capture stage.
type Tracker interface {
	Update(obs []Observation) []Track
}

// Equivalence maps detector class ids onto identity classes. Two
// observations can only continue the same track when their identity classes
// agree; collapsing every vehicle class into one bucket keeps a car that the
// detector re-labels as a truck on the same track id.
type Equivalence map[int]int

// CollapseAll puts every listed class into a single identity class.
func CollapseAll(classes []int) Equivalence {
	e := make(Equivalence, len(classes))
	for _, c := range classes {
		e[c] = 0
	}
	return e
}

// Distinct keeps every listed class as its own identity class.
func Distinct(classes []int) Equivalence {
	e := make(Equivalence, len(classes))
	for _, c := range classes {
		e[c] = c
	}
	return e
}

// Of returns the identity class for a detector class. Unlisted classes map
// to themselves.
func (e Equivalence) Of(classID int) int {
	if e == nil {
		return classID
	}
	if id, ok := e[classID]; ok {
		return id
	}
	return classID
}
