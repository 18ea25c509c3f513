// Package lane loads the lane polygon file and assigns image points to
// lanes. Point-in-polygon uses the even-odd ray casting test; points exactly
// on a polygon edge follow the raw crossing parity, which is deterministic
// for a given polygon but not guaranteed to land inside or outside across
// different shapes. Callers that care about boundary pixels should draw
// polygons a pixel wide of the lane markings.
package lane

import (
	"encoding/json"
	"fmt"
	"os"
)

// Lane is one polygonal region in pixel coordinates.
type Lane struct {
	ID     string      `json:"id"`
	Name   string      `json:"name,omitempty"`
	Points [][]float64 `json:"points"` // Polygon points [[x,y], ...]
}

// Contains checks if a point is inside the lane polygon.
func (l Lane) Contains(x, y float64) bool {
	if len(l.Points) < 3 {
		return false
	}

	// Ray casting algorithm
	n := len(l.Points)
	inside := false

	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := l.Points[i][0], l.Points[i][1]
		xj, yj := l.Points[j][0], l.Points[j][1]

		if ((yi > y) != (yj > y)) && (x < (xj-xi)*(y-yi)/(yj-yi)+xi) {
			inside = !inside
		}
		j = i
	}

	return inside
}

// Set holds the lanes of one camera view in file order.
type Set struct {
	lanes []Lane
}

// Load reads and validates the lane polygon file. Geometry problems are
// startup errors: the pipeline must not run with a broken lane map.
func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lanes file: %w", err)
	}
	var lanes []Lane
	if err := json.Unmarshal(raw, &lanes); err != nil {
		return nil, fmt.Errorf("parse lanes file %s: %w", path, err)
	}
	if len(lanes) == 0 {
		return nil, fmt.Errorf("lanes file %s defines no lanes", path)
	}

	seen := make(map[string]bool, len(lanes))
	for i, l := range lanes {
		if l.ID == "" {
			return nil, fmt.Errorf("lane %d has an empty id", i)
		}
		if seen[l.ID] {
			return nil, fmt.Errorf("duplicate lane id %q", l.ID)
		}
		seen[l.ID] = true
		if len(l.Points) < 3 {
			return nil, fmt.Errorf("lane %q needs at least 3 points, got %d", l.ID, len(l.Points))
		}
		for j, p := range l.Points {
			if len(p) != 2 {
				return nil, fmt.Errorf("lane %q point %d must be [x,y]", l.ID, j)
			}
		}
	}
	return &Set{lanes: lanes}, nil
}

// NewSet builds a Set from already validated lanes. Used by tests and by
// callers that construct geometry programmatically.
func NewSet(lanes []Lane) *Set {
	return &Set{lanes: lanes}
}

// Assign returns the id of the first lane, in file order, containing the
// point. ok is false when no lane contains it.
func (s *Set) Assign(x, y float64) (string, bool) {
	for _, l := range s.lanes {
		if l.Contains(x, y) {
			return l.ID, true
		}
	}
	return "", false
}

// Lanes returns the lane list in file order.
func (s *Set) Lanes() []Lane {
	return s.lanes
}

// IDs returns the lane ids in file order.
func (s *Set) IDs() []string {
	ids := make([]string, len(s.lanes))
	for i, l := range s.lanes {
		ids[i] = l.ID
	}
	return ids
}
