package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lanewatch-go/internal/logging"
	"lanewatch-go/internal/models"
)

const (
	defaultReportLimit = 20
	maxReportLimit     = 200
)

// HealthResponse reports liveness plus enough run context to tell which
// analyzer instance answered.
type HealthResponse struct {
	Status        string `json:"status"`
	CameraID      string `json:"camera_id"`
	RunID         string `json:"run_id"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	QueueCapture  int    `json:"queue_capture"`
	QueuePresent  int    `json:"queue_present"`
}

// StatsResponse carries the most recent interval reports. Both fields are
// null until the first reporting interval has elapsed.
type StatsResponse struct {
	Traffic *models.TrafficReport `json:"traffic"`
	Perf    *models.PerfReport    `json:"perf"`
}

func (s *Server) handleHealth(c *gin.Context) {
	capture, present := s.pipe.QueueDepths()
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "ok",
		CameraID:      s.cfg.CameraID,
		RunID:         s.pipe.RunID(),
		UptimeSeconds: int64(s.pipe.Uptime().Seconds()),
		QueueCapture:  capture,
		QueuePresent:  present,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, StatsResponse{
		Traffic: s.pipe.LatestTraffic(),
		Perf:    s.pipe.LatestPerf(),
	})
}

func (s *Server) handleReports(c *gin.Context) {
	if s.reports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "report store disabled"})
		return
	}

	limit := defaultReportLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	if limit > maxReportLimit {
		limit = maxReportLimit
	}

	reports, err := s.reports.Recent(limit)
	if err != nil {
		logging.Error(c).Err(err).Msg("Report query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read reports"})
		return
	}
	if reports == nil {
		reports = []*models.TrafficReport{}
	}

	c.JSON(http.StatusOK, gin.H{
		"reports": reports,
		"count":   len(reports),
	})
}

func (s *Server) handleStream(c *gin.Context) {
	if s.stream == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "web stream disabled"})
		return
	}
	s.stream.ServeHTTP(c.Writer, c.Request)
}
