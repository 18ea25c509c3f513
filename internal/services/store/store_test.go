package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lanewatch-go/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "reports.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testReports(seq int64, ts time.Time, activity map[string]int) (*models.TrafficReport, *models.PerfReport) {
	tr := &models.TrafficReport{
		RunID:         "run-1",
		CameraID:      "cam-test",
		Timestamp:     ts,
		FrameSeq:      seq,
		Vehicles:      3,
		LaneActivity:  activity,
		LaneOccupancy: map[string]int{"east-1": 2, "east-2": 0},
		ActiveTracks:  2,
	}
	pr := &models.PerfReport{
		RunID:           "run-1",
		CameraID:        "cam-test",
		Timestamp:       ts,
		FPSCurrent:      24.5,
		FPSAverage:      23.0,
		DetectLatencyMs: 18.2,
		TrackLatencyMs:  0.4,
		ActiveTracks:    2,
		FramesProcessed: seq + 1,
	}
	return tr, pr
}

func TestSaveAndRecent(t *testing.T) {
	s := testStore(t)
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	tr1, pr1 := testReports(10, t0, nil) // warm-up, no activity yet
	tr2, pr2 := testReports(160, t0.Add(5*time.Second), map[string]int{"east-1": 4, "east-2": 1})

	if err := s.Save(tr1, pr1); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := s.Save(tr2, pr2); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, err := s.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("recent returned %d reports, want 2", len(got))
	}

	// Newest first.
	if got[0].FrameSeq != 160 || got[1].FrameSeq != 10 {
		t.Fatalf("order wrong: seqs %d, %d", got[0].FrameSeq, got[1].FrameSeq)
	}
	if got[0].LaneActivity["east-1"] != 4 {
		t.Errorf("lane activity lost: %v", got[0].LaneActivity)
	}
	if got[1].LaneActivity != nil {
		t.Errorf("warm-up report activity = %v, want nil", got[1].LaneActivity)
	}
	if got[0].LaneOccupancy["east-1"] != 2 || got[0].LaneOccupancy["east-2"] != 0 {
		t.Errorf("lane occupancy lost: %v", got[0].LaneOccupancy)
	}
	if !got[1].Timestamp.Equal(t0) {
		t.Errorf("timestamp round trip: got %v, want %v", got[1].Timestamp, t0)
	}
}

func TestRecentHonorsLimit(t *testing.T) {
	s := testStore(t)
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	for i := int64(0); i < 5; i++ {
		tr, pr := testReports(i, t0.Add(time.Duration(i)*time.Second), nil)
		if err := s.Save(tr, pr); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	got, err := s.Recent(3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("recent returned %d reports, want 3", len(got))
	}
	if got[0].FrameSeq != 4 {
		t.Errorf("newest report seq = %d, want 4", got[0].FrameSeq)
	}
}

func TestRecentOnEmptyStore(t *testing.T) {
	s := testStore(t)
	got, err := s.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("empty store returned %d reports", len(got))
	}
}
