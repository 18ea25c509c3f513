package models

import (
	"time"
)

// TrafficReport is the interval traffic summary published to the metrics
// sink and persisted in the report store.
type TrafficReport struct {
	RunID     string    `json:"run_id"`
	CameraID  string    `json:"camera_id"`
	Timestamp time.Time `json:"timestamp"`
	FrameSeq  int64     `json:"frame_seq"`

	// Vehicles is the distinct-track total since startup.
	Vehicles int `json:"vehicles"`

	// LaneActivity is null while the warm-up period is still running.
	LaneActivity map[string]int `json:"lane_activity"`

	// LaneOccupancy counts active tracks per lane at report time.
	LaneOccupancy map[string]int `json:"lane_occupancy"`

	ActiveTracks int `json:"active_tracks"`
}

// PerfReport is the interval pipeline performance summary published
// alongside the traffic report.
type PerfReport struct {
	RunID     string    `json:"run_id"`
	CameraID  string    `json:"camera_id"`
	Timestamp time.Time `json:"timestamp"`

	FPSCurrent float64 `json:"fps_current"`
	FPSAverage float64 `json:"fps_average"`

	DetectLatencyMs float64 `json:"detect_latency_ms"`
	TrackLatencyMs  float64 `json:"track_latency_ms"`

	QueueCaptureDepth int `json:"queue_capture_depth"`
	QueuePresentDepth int `json:"queue_present_depth"`

	ActiveTracks    int   `json:"active_tracks"`
	FramesProcessed int64 `json:"frames_processed"`
}
