package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lanewatch-go/internal/config"
)

// NewStageLogger returns the contextual logger for one pipeline stage.
func NewStageLogger(cfg *config.Config, stage string) zerolog.Logger {
	return log.With().Str("camera_id", cfg.CameraID).Str("stage", stage).Logger()
}

// NewServiceLogger returns the contextual logger for a supporting service
// (api, nats, store, ...).
func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().Str("camera_id", cfg.CameraID).Str("service", service).Logger()
}

// WithSink tags a presentation-stage logger with the sink name.
func WithSink(base zerolog.Logger, sink string) zerolog.Logger {
	return base.With().Str("sink", sink).Logger()
}
