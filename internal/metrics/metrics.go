package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline metrics. Stages update the atomic counters
// directly; Prometheus reads them through gauge functions on scrape.
type Metrics struct {
	// Stage throughput counters
	FramesCaptured  atomic.Uint64
	FramesAnalyzed  atomic.Uint64
	FramesPresented atomic.Uint64

	// Delivery failure counters (non-fatal by contract)
	SinkErrors     atomic.Uint64
	ReporterErrors atomic.Uint64

	ReportsPublished atomic.Uint64

	// Traffic state gauges
	ActiveTracks  atomic.Uint64
	VehiclesTotal atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lanewatch_frames_captured_total",
			Help: "Frames read from the source and pushed into the pipeline",
		},
		func() float64 { return float64(m.FramesCaptured.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lanewatch_frames_analyzed_total",
			Help: "Frames processed by the statistics stage",
		},
		func() float64 { return float64(m.FramesAnalyzed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lanewatch_frames_presented_total",
			Help: "Frames handed to the presentation sinks",
		},
		func() float64 { return float64(m.FramesPresented.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lanewatch_sink_errors_total",
			Help: "Per-frame sink delivery failures",
		},
		func() float64 { return float64(m.SinkErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lanewatch_reporter_errors_total",
			Help: "Interval report delivery failures",
		},
		func() float64 { return float64(m.ReporterErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lanewatch_reports_published_total",
			Help: "Interval reports delivered successfully",
		},
		func() float64 { return float64(m.ReportsPublished.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lanewatch_active_tracks",
			Help: "Tracks currently maintained by the tracker",
		},
		func() float64 { return float64(m.ActiveTracks.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "lanewatch_vehicles_total",
			Help: "Distinct track ids seen since startup",
		},
		func() float64 { return float64(m.VehiclesTotal.Load()) },
	))
}

// RegisterQueueDepth exposes a queue's live depth as a gauge. Call once per
// queue before the pipeline starts.
func (m *Metrics) RegisterQueueDepth(name string, depth func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("lanewatch_queue_%s_depth", name),
			Help: fmt.Sprintf("Items buffered in the %s queue", name),
		},
		func() float64 { return float64(depth()) },
	))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
