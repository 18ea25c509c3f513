// Package messaging publishes interval reports to NATS as JSON messages on
// per-camera subjects.
package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"lanewatch-go/internal/config"
	"lanewatch-go/internal/models"
)

// Service is a thin JSON publisher over a NATS connection. Reconnects are
// handled by the client; a publish while disconnected lands in the client's
// pending buffer and flushes on reconnect.
type Service struct {
	conn   *nats.Conn
	cfg    *config.Config
	logger zerolog.Logger

	statsSubject string
	perfSubject  string
}

// NewService connects to the configured NATS server. Connection failure is
// a startup error; the caller decides whether to run without messaging.
func NewService(cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	opts := []nats.Option{
		nats.Name("lanewatch"),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.NatsURL, err)
	}

	logger.Info().Str("url", cfg.NatsURL).Msg("NATS connection established")

	return &Service{
		conn:         conn,
		cfg:          cfg,
		logger:       logger,
		statsSubject: fmt.Sprintf("%s.%s", cfg.StatsSubject, cfg.CameraID),
		perfSubject:  fmt.Sprintf("%s.%s", cfg.PerfSubject, cfg.CameraID),
	}, nil
}

// Publish sends one traffic report and its performance counterpart on the
// per-camera subjects.
func (s *Service) Publish(tr *models.TrafficReport, pr *models.PerfReport) error {
	if err := s.publishJSON(s.statsSubject, tr); err != nil {
		return err
	}
	return s.publishJSON(s.perfSubject, pr)
}

func (s *Service) publishJSON(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal for %s: %w", subject, err)
	}
	if err := s.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// IsConnected reports whether the underlying connection is currently up.
func (s *Service) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// Shutdown drains the connection so buffered reports go out before the
// process exits, closing hard when the drain fails.
func (s *Service) Shutdown() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to drain NATS connection gracefully, closing immediately")
		s.conn.Close()
	}
	return nil
}
