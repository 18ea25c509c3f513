package models

import (
	"image"
	"time"
)

// Frame is the unit of work that travels through the pipeline. It is created
// by the capture stage and handed off queue to queue; ownership moves with it,
// so a stage must not touch a frame after putting it downstream.
type Frame struct {
	CameraID  string
	Seq       int64
	Timestamp time.Time

	// Image holds raw BGR24 pixels, row-major, Width*Height*3 bytes.
	Image  []byte
	Width  int
	Height int

	// Analysis results, filled in as the frame moves downstream.
	Detections []Detection
	Tracked    []TrackedObject
	Stats      Stats

	// Annotated holds the overlay rendering produced by the presentation
	// stage. Empty until that stage runs.
	Annotated []byte

	// Reported is set when the statistics stage successfully handed a
	// report for this frame to the reporter.
	Reported bool

	// Stage timings
	DetectLatency time.Duration
	TrackLatency  time.Duration
}

// Detection is a single detector hit on a frame, already filtered by
// confidence threshold and target class list.
type Detection struct {
	Box     image.Rectangle
	Label   string
	ClassID int
	Score   float32
}

// TrackedObject is one entry of the tracker's active set for a frame.
// One struct per object; box, label and score always describe the same id.
type TrackedObject struct {
	ID      int64
	Box     image.Rectangle
	Label   string
	ClassID int
	Score   float32
}

// Stats is the traffic summary the statistics stage computes per frame.
type Stats struct {
	// Vehicles is the number of distinct track ids seen since startup.
	Vehicles int

	// LaneOccupancy counts currently active tracks per lane id.
	LaneOccupancy map[string]int

	// LaneActivity counts distinct track ids per lane over the rolling
	// activity window. Nil until the warm-up period has elapsed.
	LaneActivity map[string]int

	// ActiveTracks lists the ids currently maintained by the tracker.
	ActiveTracks []int64
}

// BottomCenter returns the reference point used for lane assignment:
// the midpoint of the bounding box's bottom edge.
func (t TrackedObject) BottomCenter() (x, y float64) {
	return float64(t.Box.Min.X+t.Box.Max.X) / 2, float64(t.Box.Max.Y)
}
