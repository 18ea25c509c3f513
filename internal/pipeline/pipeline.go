// Package pipeline runs the analyzer as three concurrent stages connected
// by bounded queues: capture reads frames and runs detection and tracking,
// stats aggregates lane statistics and publishes reports, present annotates
// frames and hands them to the configured sinks.
//
// Each stage forwards a single end-of-stream marker downstream when its
// input is exhausted, so a clean run drains in order. A stage failure
// cancels the shared context and the remaining stages unwind within the
// configured shutdown window; stages that are still stuck after that are
// abandoned and the run reports an error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"lanewatch-go/internal/config"
	"lanewatch-go/internal/lane"
	"lanewatch-go/internal/logging"
	"lanewatch-go/internal/metrics"
	"lanewatch-go/internal/models"
	"lanewatch-go/internal/stats"
	"lanewatch-go/internal/track"
)

// perfWindow is how many recent frames feed the instantaneous FPS and
// latency figures.
const perfWindow = 120

// eosGrace bounds the detached end-of-stream push a stage makes while the
// run is already cancelled. If the downstream queue stays full for this
// long the marker is dropped; the receiver is unwinding on the shared
// context anyway.
const eosGrace = 500 * time.Millisecond

// FrameSource produces decoded frames in sequence order. Read returns
// io.EOF when the stream is exhausted; any other error is fatal to the run.
type FrameSource interface {
	Read() (*models.Frame, error)
	Close() error
}

// Detector runs object detection on a single frame. The returned slice is
// non-nil even when nothing was detected.
type Detector interface {
	Detect(f *models.Frame) ([]models.Detection, error)
	Close() error
}

// Reporter delivers a traffic report and its performance counterpart to
// the configured destinations. Delivery failures are the reporter's to
// describe; the pipeline logs them and keeps running.
type Reporter interface {
	Publish(tr *models.TrafficReport, pr *models.PerfReport) error
}

// Annotator draws overlays onto a frame before it reaches the sinks,
// filling f.Annotated.
type Annotator interface {
	Annotate(f *models.Frame) error
}

// Sink consumes finished frames. Process errors are logged and counted but
// never stop the run. Close is called once by the presentation stage when
// the stream ends or the run unwinds.
type Sink interface {
	Name() string
	Process(f *models.Frame) error
	Close() error
}

// Deps carries the pipeline's collaborators. Source, Detector and Tracker
// are required. Reporter and Annotator may be nil and Sinks may be empty;
// the corresponding work is skipped. Sinks are owned by the pipeline once
// passed in and are closed by the presentation stage.
type Deps struct {
	Source    FrameSource
	Detector  Detector
	Tracker   track.Tracker
	Reporter  Reporter
	Annotator Annotator
	Sinks     []Sink
	Metrics   *metrics.Metrics
}

// Pipeline owns the stage goroutines, the two queues between them and the
// snapshot of the most recent reports served by the HTTP API.
type Pipeline struct {
	cfg       *config.Config
	runID     string
	started   time.Time
	source    FrameSource
	detector  Detector
	tracker   track.Tracker
	agg       *stats.Aggregator
	perf      *stats.Perf
	reporter  Reporter
	annotator Annotator
	sinks     []Sink
	metrics   *metrics.Metrics

	captureQueue *Queue
	presentQueue *Queue

	logCapture zerolog.Logger
	logStats   zerolog.Logger
	logPresent zerolog.Logger

	lastTraffic atomic.Pointer[models.TrafficReport]
	lastPerf    atomic.Pointer[models.PerfReport]
}

// New wires a pipeline from configuration and collaborators. The queues,
// aggregator and performance window are created here; queue depths are
// registered on the metrics registry.
func New(cfg *config.Config, runID string, lanes *lane.Set, deps Deps) *Pipeline {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	p := &Pipeline{
		cfg:       cfg,
		runID:     runID,
		started:   time.Now(),
		source:    deps.Source,
		detector:  deps.Detector,
		tracker:   deps.Tracker,
		agg:       stats.NewAggregator(lanes, cfg.StatsWarmup, cfg.ActivityWindow),
		perf:      stats.NewPerf(perfWindow),
		reporter:  deps.Reporter,
		annotator: deps.Annotator,
		sinks:     deps.Sinks,
		metrics:   deps.Metrics,

		captureQueue: NewQueue("capture", cfg.QueueCapacity, cfg.PutTimeout, cfg.GetTimeout),
		presentQueue: NewQueue("present", cfg.QueueCapacity, cfg.PutTimeout, cfg.GetTimeout),

		logCapture: logging.NewStageLogger(cfg, "capture"),
		logStats:   logging.NewStageLogger(cfg, "stats"),
		logPresent: logging.NewStageLogger(cfg, "present"),
	}

	p.metrics.RegisterQueueDepth("capture", p.captureQueue.Depth)
	p.metrics.RegisterQueueDepth("present", p.presentQueue.Depth)

	return p
}

// Run executes the pipeline until the source is exhausted, the context is
// cancelled or a stage fails. It returns nil for a clean drain or an
// operator-initiated shutdown, and the failing stage's error otherwise.
// When stages fail to unwind within ShutdownTimeout they are abandoned and
// the returned error says so.
func (p *Pipeline) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	p.goStage(runCtx, cancel, &wg, "capture", p.logCapture, p.runCapture)
	p.goStage(runCtx, cancel, &wg, "stats", p.logStats, p.runStats)
	p.goStage(runCtx, cancel, &wg, "present", p.logPresent, p.runPresent)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		// Something failed or the operator asked us to stop. Give the
		// stages a bounded window to unwind before abandoning them.
		select {
		case <-done:
		case <-time.After(p.cfg.ShutdownTimeout):
			if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
				return fmt.Errorf("%w (stages still running after %s)", cause, p.cfg.ShutdownTimeout)
			}
			return fmt.Errorf("shutdown timed out: stages still running after %s", p.cfg.ShutdownTimeout)
		}
	}

	if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// goStage runs one stage goroutine. A returned error or an escaped panic
// cancels the whole run with that stage named in the cause.
func (p *Pipeline) goStage(ctx context.Context, cancel context.CancelCauseFunc, wg *sync.WaitGroup, name string, logger zerolog.Logger, fn func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Msg("Stage panic recovered")
				cancel(fmt.Errorf("stage %s panicked: %v", name, r))
			}
		}()

		logger.Debug().Msg("Stage started")
		if err := fn(ctx); err != nil {
			logger.Error().Err(err).Msg("Stage failed")
			cancel(fmt.Errorf("stage %s: %w", name, err))
			return
		}
		logger.Debug().Msg("Stage stopped")
	}()
}

// RunID identifies this pipeline run in reports and log lines.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Uptime is how long ago the pipeline was built.
func (p *Pipeline) Uptime() time.Duration {
	return time.Since(p.started)
}

// LatestTraffic returns the most recently built traffic report, or nil
// before the first report.
func (p *Pipeline) LatestTraffic() *models.TrafficReport {
	return p.lastTraffic.Load()
}

// LatestPerf returns the most recently built performance report, or nil
// before the first report.
func (p *Pipeline) LatestPerf() *models.PerfReport {
	return p.lastPerf.Load()
}

// QueueDepths reports the current fill of the capture and present queues.
func (p *Pipeline) QueueDepths() (capture, present int) {
	return p.captureQueue.Depth(), p.presentQueue.Depth()
}
