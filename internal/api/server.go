// Package api exposes the analyzer's HTTP surface: health, the latest
// statistics snapshot, stored report history, the MJPEG stream and
// Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"lanewatch-go/internal/config"
	"lanewatch-go/internal/models"
)

// Pipeline is the slice of pipeline state the handlers read. The concrete
// pipeline satisfies it; tests use a stub.
type Pipeline interface {
	RunID() string
	Uptime() time.Duration
	LatestTraffic() *models.TrafficReport
	LatestPerf() *models.PerfReport
	QueueDepths() (capture, present int)
}

// ReportReader serves stored report history. Nil when the store is
// disabled; /reports then answers 503.
type ReportReader interface {
	Recent(limit int) ([]*models.TrafficReport, error)
}

// Server wraps the gin router and its http.Server.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger
	router *gin.Engine
	server *http.Server

	pipe    Pipeline
	reports ReportReader
	stream  http.Handler
	metrics http.Handler
}

// NewServer wires routes and middleware. stream and metrics may be nil when
// the corresponding feature is off.
func NewServer(cfg *config.Config, logger zerolog.Logger, pipe Pipeline, reports ReportReader, stream, metrics http.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		router:  gin.New(),
		pipe:    pipe,
		reports: reports,
		stream:  stream,
		metrics: metrics,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: s.router,
	}
	return s
}

// Start blocks serving requests until Stop is called. A closed server is
// not an error.
func (s *Server) Start() error {
	s.logger.Info().Int("port", s.cfg.HTTPPort).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests with a bounded grace period.
func (s *Server) Stop() error {
	s.logger.Info().Msg("HTTP API stopping")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
