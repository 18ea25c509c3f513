package stats

import (
	"image"
	"testing"
	"time"

	"lanewatch-go/internal/lane"
	"lanewatch-go/internal/models"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testLanes() *lane.Set {
	return lane.NewSet([]lane.Lane{
		{ID: "east-1", Points: [][]float64{{0, 0}, {100, 0}, {100, 100}, {0, 100}}},
		{ID: "east-2", Points: [][]float64{{100, 0}, {200, 0}, {200, 100}, {100, 100}}},
	})
}

func frameAt(ts time.Time, tracked ...models.TrackedObject) *models.Frame {
	return &models.Frame{
		CameraID:  "cam-1",
		Timestamp: ts,
		Tracked:   tracked,
	}
}

// obj puts a tracked object whose bottom-center lands at (x, y).
func obj(id int64, x, y int) models.TrackedObject {
	return models.TrackedObject{
		ID:    id,
		Box:   image.Rect(x-10, y-20, x+10, y),
		Label: "car",
		Score: 0.9,
	}
}

func TestWarmupGatesLaneActivity(t *testing.T) {
	a := NewAggregator(testLanes(), 30*time.Second, time.Minute)

	s := a.Observe(frameAt(t0, obj(1, 50, 50)))
	if s.LaneActivity != nil {
		t.Fatal("lane activity set before warm-up elapsed")
	}

	s = a.Observe(frameAt(t0.Add(29*time.Second), obj(1, 50, 50)))
	if s.LaneActivity != nil {
		t.Fatal("lane activity set at 29s with 30s warm-up")
	}

	s = a.Observe(frameAt(t0.Add(30*time.Second), obj(1, 50, 50)))
	if s.LaneActivity == nil {
		t.Fatal("lane activity still nil after warm-up elapsed")
	}
	if s.LaneActivity["east-1"] != 1 {
		t.Errorf("east-1 activity = %d, want 1", s.LaneActivity["east-1"])
	}
	if s.LaneActivity["east-2"] != 0 {
		t.Errorf("east-2 activity = %d, want 0", s.LaneActivity["east-2"])
	}
}

func TestActivityWindowForgetsOldTracks(t *testing.T) {
	a := NewAggregator(testLanes(), 0, time.Minute)

	a.Observe(frameAt(t0, obj(1, 50, 50)))
	// Track 1 leaves; track 2 arrives 90s later in the other lane.
	s := a.Observe(frameAt(t0.Add(90*time.Second), obj(2, 150, 50)))

	if s.LaneActivity["east-1"] != 0 {
		t.Errorf("east-1 activity = %d, want 0 (sighting aged out)", s.LaneActivity["east-1"])
	}
	if s.LaneActivity["east-2"] != 1 {
		t.Errorf("east-2 activity = %d, want 1", s.LaneActivity["east-2"])
	}
}

func TestOccupancyIsCurrentFrameOnly(t *testing.T) {
	a := NewAggregator(testLanes(), 0, time.Minute)

	s := a.Observe(frameAt(t0, obj(1, 50, 50), obj(2, 60, 60), obj(3, 150, 50)))
	if s.LaneOccupancy["east-1"] != 2 || s.LaneOccupancy["east-2"] != 1 {
		t.Errorf("occupancy = %v, want east-1:2 east-2:1", s.LaneOccupancy)
	}

	// Everyone gone: occupancy zeroes out, but keys stay present.
	s = a.Observe(frameAt(t0.Add(time.Second)))
	if s.LaneOccupancy["east-1"] != 0 || s.LaneOccupancy["east-2"] != 0 {
		t.Errorf("occupancy after empty frame = %v, want zeros", s.LaneOccupancy)
	}
	if _, ok := s.LaneOccupancy["east-1"]; !ok {
		t.Error("lane key dropped from occupancy map")
	}
}

func TestOccupancyStableForStationaryObject(t *testing.T) {
	a := NewAggregator(testLanes(), 0, time.Minute)
	for i := 0; i < 50; i++ {
		s := a.Observe(frameAt(t0.Add(time.Duration(i)*40*time.Millisecond), obj(1, 50, 50)))
		if s.LaneOccupancy["east-1"] != 1 {
			t.Fatalf("frame %d: stationary object left its lane: %v", i, s.LaneOccupancy)
		}
		if s.LaneOccupancy["east-2"] != 0 {
			t.Fatalf("frame %d: stationary object flickered into east-2", i)
		}
	}
}

func TestVehiclesCountsDistinctIDs(t *testing.T) {
	a := NewAggregator(testLanes(), 0, time.Minute)

	s := a.Observe(frameAt(t0, obj(1, 50, 50)))
	if s.Vehicles != 1 {
		t.Errorf("vehicles = %d, want 1", s.Vehicles)
	}
	// Same id again: total stays.
	s = a.Observe(frameAt(t0.Add(time.Second), obj(1, 52, 50)))
	if s.Vehicles != 1 {
		t.Errorf("vehicles = %d, want 1 after re-observation", s.Vehicles)
	}
	// New id, even outside every lane, still counts as a vehicle.
	s = a.Observe(frameAt(t0.Add(2*time.Second), obj(1, 54, 50), obj(2, 500, 500)))
	if s.Vehicles != 2 {
		t.Errorf("vehicles = %d, want 2", s.Vehicles)
	}
	// Counts never decrease when tracks disappear.
	s = a.Observe(frameAt(t0.Add(3 * time.Second)))
	if s.Vehicles != 2 {
		t.Errorf("vehicles = %d, want 2 after tracks left", s.Vehicles)
	}
	if len(s.ActiveTracks) != 0 {
		t.Errorf("active tracks = %v, want empty", s.ActiveTracks)
	}
}

func TestActiveTracksSorted(t *testing.T) {
	a := NewAggregator(testLanes(), 0, time.Minute)
	s := a.Observe(frameAt(t0, obj(9, 50, 50), obj(3, 150, 50), obj(7, 60, 60)))
	want := []int64{3, 7, 9}
	for i, id := range want {
		if s.ActiveTracks[i] != id {
			t.Fatalf("active tracks = %v, want %v", s.ActiveTracks, want)
		}
	}
}

func TestPerfWindow(t *testing.T) {
	p := NewPerf(30)

	// 25 fps synthetic stream with fixed stage latencies.
	for i := 0; i < 100; i++ {
		p.Observe(&models.Frame{
			Timestamp:     t0.Add(time.Duration(i) * 40 * time.Millisecond),
			DetectLatency: 15 * time.Millisecond,
			TrackLatency:  500 * time.Microsecond,
		})
	}

	if got := p.FPSCurrent(); got < 24.5 || got > 25.5 {
		t.Errorf("FPSCurrent = %v, want ~25", got)
	}
	now := t0.Add(100 * 40 * time.Millisecond)
	if got := p.FPSAverage(now); got < 24 || got > 26 {
		t.Errorf("FPSAverage = %v, want ~25", got)
	}
	if got := p.DetectLatencyMs(); got < 14.9 || got > 15.1 {
		t.Errorf("DetectLatencyMs = %v, want 15", got)
	}
	if got := p.TrackLatencyMs(); got < 0.49 || got > 0.51 {
		t.Errorf("TrackLatencyMs = %v, want 0.5", got)
	}
	if p.Frames() != 100 {
		t.Errorf("Frames = %d, want 100", p.Frames())
	}
}

func TestPerfEmpty(t *testing.T) {
	p := NewPerf(30)
	if p.FPSCurrent() != 0 || p.FPSAverage(t0) != 0 || p.DetectLatencyMs() != 0 {
		t.Error("empty perf tracker must report zeros")
	}
}
