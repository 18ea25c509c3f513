package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lanewatch-go/internal/config"
	"lanewatch-go/internal/lane"
	"lanewatch-go/internal/models"
	"lanewatch-go/internal/track"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

var testEpoch = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		CameraID:        "cam-test",
		LogLevel:        "disabled",
		ReportInterval:  300 * time.Millisecond,
		StatsWarmup:     0,
		ActivityWindow:  time.Minute,
		QueueCapacity:   50,
		PutTimeout:      2 * time.Second,
		GetTimeout:      5 * time.Second,
		ShutdownTimeout: 2 * time.Second,
	}
}

func testLanes() *lane.Set {
	return lane.NewSet([]lane.Lane{{
		ID:     "east-1",
		Name:   "Eastbound 1",
		Points: [][]float64{{0, 0}, {100, 0}, {100, 100}, {0, 100}},
	}})
}

// fakeSource emits frames 100ms apart in stream time (not wall time).
// n < 0 means unbounded; delay throttles Read in wall time.
type fakeSource struct {
	n     int
	seq   int64
	delay time.Duration
}

func (s *fakeSource) Read() (*models.Frame, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.n >= 0 && s.seq >= int64(s.n) {
		return nil, io.EOF
	}
	f := &models.Frame{
		CameraID:  "cam-test",
		Seq:       s.seq,
		Timestamp: testEpoch.Add(time.Duration(s.seq) * 100 * time.Millisecond),
		Width:     640,
		Height:    480,
	}
	s.seq++
	return f, nil
}

func (s *fakeSource) Close() error { return nil }

type fakeDetector struct {
	detect func(f *models.Frame) ([]models.Detection, error)
}

func (d *fakeDetector) Detect(f *models.Frame) ([]models.Detection, error) {
	if d.detect == nil {
		return []models.Detection{}, nil
	}
	return d.detect(f)
}

func (d *fakeDetector) Close() error { return nil }

// stationaryCar is a detector that sees the same parked car on every frame.
func stationaryCar(*models.Frame) ([]models.Detection, error) {
	return []models.Detection{{
		Box:     image.Rect(10, 10, 50, 50),
		Label:   "car",
		ClassID: 2,
		Score:   0.9,
	}}, nil
}

type fakeReporter struct {
	mu      sync.Mutex
	err     error
	traffic []*models.TrafficReport
	perf    []*models.PerfReport
}

func (r *fakeReporter) Publish(tr *models.TrafficReport, pr *models.PerfReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.traffic = append(r.traffic, tr)
	r.perf = append(r.perf, pr)
	return nil
}

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.traffic)
}

func (r *fakeReporter) last() *models.TrafficReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.traffic) == 0 {
		return nil
	}
	return r.traffic[len(r.traffic)-1]
}

type fakeSink struct {
	name  string
	err   error
	block chan struct{}

	mu     sync.Mutex
	seqs   []int64
	last   *models.Frame
	closes int
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Process(f *models.Frame) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.seqs = append(s.seqs, f.Seq)
	s.last = f
	s.mu.Unlock()
	return s.err
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSink) seen() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.seqs...)
}

func (s *fakeSink) lastFrame() *models.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *fakeSink) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func newTestPipeline(cfg *config.Config, src FrameSource, det Detector, rep Reporter, sinks ...Sink) *Pipeline {
	tracker := track.NewIOU(track.Params{
		MatchIoU: 0.3,
		Buffer:   30,
		MinScore: 0.25,
		Classes:  track.CollapseAll([]int{2, 5, 7}),
	})
	return New(cfg, "run-test", testLanes(), Deps{
		Source:   src,
		Detector: det,
		Tracker:  tracker,
		Reporter: rep,
		Sinks:    sinks,
	})
}

func TestCleanRunDeliversAllFramesInOrder(t *testing.T) {
	cfg := testConfig()
	rep := &fakeReporter{}
	sink := &fakeSink{name: "mem"}
	p := newTestPipeline(cfg, &fakeSource{n: 10}, &fakeDetector{detect: stationaryCar}, rep, sink)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("clean run returned %v", err)
	}

	seqs := sink.seen()
	if len(seqs) != 10 {
		t.Fatalf("sink saw %d frames, want 10: %v", len(seqs), seqs)
	}
	for i, s := range seqs {
		if s != int64(i) {
			t.Fatalf("frames out of order: %v", seqs)
		}
	}
	if got := sink.closeCount(); got != 1 {
		t.Errorf("sink closed %d times, want exactly once", got)
	}

	// Frame timestamps run 100ms apart with a 300ms report interval:
	// reports fire on seq 0, 3, 6 and 9.
	if got := rep.count(); got != 4 {
		t.Errorf("published %d reports, want 4", got)
	}
	last := rep.last()
	if last.Vehicles != 1 {
		t.Errorf("vehicles = %d, want 1 for a single stationary car", last.Vehicles)
	}
	if last.LaneOccupancy["east-1"] != 1 {
		t.Errorf("lane occupancy = %v, want east-1:1", last.LaneOccupancy)
	}
	if last.LaneActivity["east-1"] != 1 {
		t.Errorf("lane activity = %v, want east-1:1 with no warm-up", last.LaneActivity)
	}
	if last.FrameSeq != 9 {
		t.Errorf("last report frame seq = %d, want 9", last.FrameSeq)
	}

	// The tracked object made it through with its identity and label.
	f := sink.lastFrame()
	if len(f.Tracked) != 1 || f.Tracked[0].ID != 1 || f.Tracked[0].Label != "car" {
		t.Errorf("tracked objects on final frame = %+v", f.Tracked)
	}
	if f.Stats.Vehicles != 1 {
		t.Errorf("final frame stats vehicles = %d, want 1", f.Stats.Vehicles)
	}

	if c, pr := p.QueueDepths(); c != 0 || pr != 0 {
		t.Errorf("queues not drained after run: capture=%d present=%d", c, pr)
	}
	if got := p.metrics.FramesPresented.Load(); got != 10 {
		t.Errorf("frames presented metric = %d, want 10", got)
	}
}

func TestFirstFrameProducesImmediateReport(t *testing.T) {
	cfg := testConfig()
	cfg.ReportInterval = time.Hour

	rep := &fakeReporter{}
	p := newTestPipeline(cfg, &fakeSource{n: 5}, &fakeDetector{detect: stationaryCar}, rep, &fakeSink{name: "mem"})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run returned %v", err)
	}
	if got := rep.count(); got != 1 {
		t.Fatalf("published %d reports, want exactly the first-frame report", got)
	}
	if rep.last().FrameSeq != 0 {
		t.Errorf("report frame seq = %d, want 0", rep.last().FrameSeq)
	}
}

func TestSinkFailureDoesNotStopTheRun(t *testing.T) {
	cfg := testConfig()
	broken := &fakeSink{name: "broken", err: errors.New("disk full")}
	good := &fakeSink{name: "mem"}
	p := newTestPipeline(cfg, &fakeSource{n: 5}, &fakeDetector{detect: stationaryCar}, nil, broken, good)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run returned %v, sink errors must not be fatal", err)
	}
	if got := good.seen(); len(got) != 5 {
		t.Errorf("healthy sink saw %d frames, want 5", len(got))
	}
	if got := p.metrics.SinkErrors.Load(); got != 5 {
		t.Errorf("sink errors metric = %d, want 5", got)
	}
	if broken.closeCount() != 1 || good.closeCount() != 1 {
		t.Errorf("sinks closed %d/%d times, want 1/1", broken.closeCount(), good.closeCount())
	}
}

func TestReporterFailureDoesNotStopTheRun(t *testing.T) {
	cfg := testConfig()
	rep := &fakeReporter{err: errors.New("broker down")}
	sink := &fakeSink{name: "mem"}
	p := newTestPipeline(cfg, &fakeSource{n: 5}, &fakeDetector{detect: stationaryCar}, rep, sink)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run returned %v, reporter errors must not be fatal", err)
	}
	if got := sink.seen(); len(got) != 5 {
		t.Errorf("sink saw %d frames, want 5", len(got))
	}
	if got := p.metrics.ReporterErrors.Load(); got == 0 {
		t.Error("reporter errors metric not incremented")
	}
	if got := p.metrics.ReportsPublished.Load(); got != 0 {
		t.Errorf("reports published metric = %d, want 0", got)
	}
}

func TestDetectorErrorIsFatal(t *testing.T) {
	cfg := testConfig()
	errInference := errors.New("inference backend lost")
	det := &fakeDetector{detect: func(f *models.Frame) ([]models.Detection, error) {
		if f.Seq == 2 {
			return nil, errInference
		}
		return stationaryCar(f)
	}}
	sink := &fakeSink{name: "mem"}
	p := newTestPipeline(cfg, &fakeSource{n: -1}, det, nil, sink)

	err := p.Run(context.Background())
	if !errors.Is(err, errInference) {
		t.Fatalf("run = %v, want the detector error as the run's cause", err)
	}
	if got := sink.closeCount(); got != 1 {
		t.Errorf("sink closed %d times during unwind, want 1", got)
	}
}

func TestStalledSinkUnwindsWithinGrace(t *testing.T) {
	cfg := testConfig()
	cfg.QueueCapacity = 1
	cfg.PutTimeout = 50 * time.Millisecond
	cfg.GetTimeout = 250 * time.Millisecond
	cfg.ShutdownTimeout = 300 * time.Millisecond

	blocked := make(chan struct{})
	defer close(blocked)
	sink := &fakeSink{name: "stalled", block: blocked}

	src := &fakeSource{n: -1, delay: time.Millisecond}
	p := newTestPipeline(cfg, src, &fakeDetector{detect: stationaryCar}, nil, sink)

	start := time.Now()
	err := p.Run(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrPutTimeout) {
		t.Fatalf("run = %v, want a put timeout", err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("unwind took %s, want well under the shutdown budget", elapsed)
	}
}

func TestSilentSourceTriggersGetTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.GetTimeout = 50 * time.Millisecond
	cfg.ShutdownTimeout = 200 * time.Millisecond

	// The source needs far longer than the get timeout for its first frame.
	src := &fakeSource{n: 1, delay: 400 * time.Millisecond}
	p := newTestPipeline(cfg, src, &fakeDetector{detect: stationaryCar}, nil, &fakeSink{name: "mem"})

	err := p.Run(context.Background())
	if !errors.Is(err, ErrGetTimeout) {
		t.Fatalf("run = %v, want a get timeout", err)
	}
}

func TestOperatorCancelShutsDownCleanly(t *testing.T) {
	cfg := testConfig()
	sink := &fakeSink{name: "mem"}
	p := newTestPipeline(cfg, &fakeSource{n: -1, delay: 2 * time.Millisecond}, &fakeDetector{detect: stationaryCar}, nil, sink)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	if err := p.Run(ctx); err != nil {
		t.Fatalf("operator cancel returned %v, want clean shutdown", err)
	}
	if got := sink.closeCount(); got != 1 {
		t.Errorf("sink closed %d times, want 1", got)
	}
	if p.metrics.FramesCaptured.Load() == 0 {
		t.Error("no frames captured before cancel")
	}
}
