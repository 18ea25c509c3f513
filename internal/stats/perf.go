package stats

import (
	"time"

	"lanewatch-go/internal/models"
)

// Perf tracks pipeline throughput and stage latencies. Current FPS comes
// from a rolling window of recent frame timestamps; average FPS spans the
// whole run. Owned by the statistics stage's goroutine.
type Perf struct {
	windowSize int

	started     time.Time
	recentTimes []time.Time
	recentDet   []time.Duration
	recentTrk   []time.Duration
	frames      int64
}

// NewPerf builds a performance tracker with a rolling window of windowSize
// frames.
func NewPerf(windowSize int) *Perf {
	if windowSize < 2 {
		windowSize = 2
	}
	return &Perf{windowSize: windowSize}
}

// Observe records one frame's timing.
func (p *Perf) Observe(f *models.Frame) {
	if p.started.IsZero() {
		p.started = f.Timestamp
	}
	p.frames++

	p.recentTimes = append(p.recentTimes, f.Timestamp)
	p.recentDet = append(p.recentDet, f.DetectLatency)
	p.recentTrk = append(p.recentTrk, f.TrackLatency)

	// Keep only the most recent N samples
	if len(p.recentTimes) > p.windowSize {
		p.recentTimes = p.recentTimes[1:]
		p.recentDet = p.recentDet[1:]
		p.recentTrk = p.recentTrk[1:]
	}
}

// Frames returns the total frames observed since startup.
func (p *Perf) Frames() int64 { return p.frames }

// FPSCurrent returns the frame rate over the rolling window.
func (p *Perf) FPSCurrent() float64 {
	if len(p.recentTimes) < 2 {
		return 0
	}
	span := p.recentTimes[len(p.recentTimes)-1].Sub(p.recentTimes[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(p.recentTimes)-1) / span
}

// FPSAverage returns the frame rate since the first observed frame, measured
// at the given instant.
func (p *Perf) FPSAverage(now time.Time) float64 {
	if p.frames < 2 || p.started.IsZero() {
		return 0
	}
	span := now.Sub(p.started).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(p.frames) / span
}

// DetectLatencyMs returns the mean detector latency over the window.
func (p *Perf) DetectLatencyMs() float64 {
	return meanMs(p.recentDet)
}

// TrackLatencyMs returns the mean tracker latency over the window.
func (p *Perf) TrackLatencyMs() float64 {
	return meanMs(p.recentTrk)
}

func meanMs(ds []time.Duration) float64 {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum.Seconds() * 1000 / float64(len(ds))
}
