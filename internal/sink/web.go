package sink

import (
	"lanewatch-go/internal/models"
	"lanewatch-go/internal/webstream"
)

// Web hands frames to the MJPEG publisher backing the /stream endpoint.
// The publisher owns viewer fan-out; this sink only feeds it.
type Web struct {
	pub *webstream.Publisher
}

// NewWeb wraps an MJPEG publisher as a sink.
func NewWeb(pub *webstream.Publisher) *Web {
	return &Web{pub: pub}
}

// Name implements the sink contract.
func (s *Web) Name() string { return "web" }

// Process encodes and publishes one frame.
func (s *Web) Process(f *models.Frame) error {
	return s.pub.Publish(f)
}

// Close is a no-op; viewer connections belong to the HTTP server.
func (s *Web) Close() error { return nil }
