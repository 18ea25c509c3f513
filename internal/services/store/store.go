// Package store persists interval reports in a local SQLite database so
// recent history survives restarts and is queryable through the HTTP API.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"lanewatch-go/internal/models"
)

// Store wraps the SQLite handle. The write path is the stats stage's
// reporter; the read path is the HTTP API.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens or creates the database, switches it to WAL mode and applies
// the schema.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report store %s: %w", path, err)
	}

	// WAL keeps report writes from blocking API reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Report store opened")
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS traffic_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			camera_id TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			frame_seq INTEGER NOT NULL,
			vehicles INTEGER NOT NULL,
			active_tracks INTEGER NOT NULL,
			lane_activity TEXT,
			lane_occupancy TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS perf_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			camera_id TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			fps_current REAL NOT NULL,
			fps_average REAL NOT NULL,
			detect_latency_ms REAL NOT NULL,
			track_latency_ms REAL NOT NULL,
			queue_capture_depth INTEGER NOT NULL,
			queue_present_depth INTEGER NOT NULL,
			active_tracks INTEGER NOT NULL,
			frames_processed INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traffic_camera_time ON traffic_reports(camera_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_perf_camera_time ON perf_reports(camera_id, timestamp DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Save writes one traffic report and its performance counterpart. Lane maps
// are stored as JSON text; a nil activity map (warm-up still running) is
// stored as NULL and comes back nil.
func (s *Store) Save(tr *models.TrafficReport, pr *models.PerfReport) error {
	occupancy, err := json.Marshal(tr.LaneOccupancy)
	if err != nil {
		return fmt.Errorf("failed to marshal lane occupancy: %w", err)
	}

	var activity interface{}
	if tr.LaneActivity != nil {
		raw, err := json.Marshal(tr.LaneActivity)
		if err != nil {
			return fmt.Errorf("failed to marshal lane activity: %w", err)
		}
		activity = string(raw)
	}

	_, err = s.db.Exec(`INSERT INTO traffic_reports
		(run_id, camera_id, timestamp, frame_seq, vehicles, active_tracks, lane_activity, lane_occupancy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.RunID, tr.CameraID, tr.Timestamp, tr.FrameSeq, tr.Vehicles, tr.ActiveTracks, activity, string(occupancy))
	if err != nil {
		return fmt.Errorf("failed to save traffic report: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO perf_reports
		(run_id, camera_id, timestamp, fps_current, fps_average, detect_latency_ms, track_latency_ms,
		 queue_capture_depth, queue_present_depth, active_tracks, frames_processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pr.RunID, pr.CameraID, pr.Timestamp, pr.FPSCurrent, pr.FPSAverage, pr.DetectLatencyMs, pr.TrackLatencyMs,
		pr.QueueCaptureDepth, pr.QueuePresentDepth, pr.ActiveTracks, pr.FramesProcessed)
	if err != nil {
		return fmt.Errorf("failed to save perf report: %w", err)
	}
	return nil
}

// Recent returns up to limit traffic reports, newest first.
func (s *Store) Recent(limit int) ([]*models.TrafficReport, error) {
	rows, err := s.db.Query(`SELECT run_id, camera_id, timestamp, frame_seq, vehicles, active_tracks, lane_activity, lane_occupancy
		FROM traffic_reports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.TrafficReport
	for rows.Next() {
		var (
			tr        models.TrafficReport
			activity  sql.NullString
			occupancy string
		)
		if err := rows.Scan(&tr.RunID, &tr.CameraID, &tr.Timestamp, &tr.FrameSeq, &tr.Vehicles, &tr.ActiveTracks, &activity, &occupancy); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		if err := json.Unmarshal([]byte(occupancy), &tr.LaneOccupancy); err != nil {
			return nil, fmt.Errorf("failed to decode lane occupancy: %w", err)
		}
		if activity.Valid {
			if err := json.Unmarshal([]byte(activity.String), &tr.LaneActivity); err != nil {
				return nil, fmt.Errorf("failed to decode lane activity: %w", err)
			}
		}
		reports = append(reports, &tr)
	}
	return reports, rows.Err()
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
