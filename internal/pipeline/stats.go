package pipeline

import (
	"context"
	"errors"
	"time"

	"lanewatch-go/internal/models"
)

// runStats consumes analyzed frames, attaches lane statistics, and publishes
// interval reports. The first frame always produces a report so dashboards
// have data immediately; after that one report per ReportInterval, measured
// on frame timestamps.
func (p *Pipeline) runStats(ctx context.Context) error {
	var lastReport time.Time

	for {
		item, err := p.captureQueue.Get(ctx)
		if err != nil {
			if errors.Is(err, ErrCanceled) {
				p.presentQueue.PutDetached(Item{EOS: true}, eosGrace)
				p.logStats.Debug().Msg("Stats stopping on cancelled context")
				return nil
			}
			return err
		}

		if item.EOS {
			p.logStats.Info().Int64("frames", p.perf.Frames()).Int("vehicles", p.agg.Vehicles()).Msg("End of stream marker received")
			return p.sendEOS(ctx, p.presentQueue, p.logStats)
		}

		frame := item.Frame
		frame.Stats = p.agg.Observe(frame)
		p.perf.Observe(frame)

		p.metrics.FramesAnalyzed.Add(1)
		p.metrics.ActiveTracks.Store(uint64(len(frame.Stats.ActiveTracks)))
		p.metrics.VehiclesTotal.Store(uint64(frame.Stats.Vehicles))

		if lastReport.IsZero() || frame.Timestamp.Sub(lastReport) >= p.cfg.ReportInterval {
			p.report(frame)
			lastReport = frame.Timestamp
		}

		if err := p.presentQueue.Put(ctx, item); err != nil {
			if errors.Is(err, ErrCanceled) {
				p.presentQueue.PutDetached(Item{EOS: true}, eosGrace)
				p.logStats.Debug().Msg("Stats stopping on cancelled context")
				return nil
			}
			return err
		}
	}
}

// report builds the interval reports from the frame's statistics, stores
// them for the HTTP API and hands them to the reporter. Delivery failures
// are logged and counted; the pipeline keeps running and the frame stays
// marked unreported.
func (p *Pipeline) report(frame *models.Frame) {
	traffic := &models.TrafficReport{
		RunID:         p.runID,
		CameraID:      frame.CameraID,
		Timestamp:     frame.Timestamp,
		FrameSeq:      frame.Seq,
		Vehicles:      frame.Stats.Vehicles,
		LaneActivity:  frame.Stats.LaneActivity,
		LaneOccupancy: frame.Stats.LaneOccupancy,
		ActiveTracks:  len(frame.Stats.ActiveTracks),
	}

	captureDepth, presentDepth := p.QueueDepths()
	perf := &models.PerfReport{
		RunID:             p.runID,
		CameraID:          frame.CameraID,
		Timestamp:         frame.Timestamp,
		FPSCurrent:        p.perf.FPSCurrent(),
		FPSAverage:        p.perf.FPSAverage(time.Now()),
		DetectLatencyMs:   p.perf.DetectLatencyMs(),
		TrackLatencyMs:    p.perf.TrackLatencyMs(),
		QueueCaptureDepth: captureDepth,
		QueuePresentDepth: presentDepth,
		ActiveTracks:      len(frame.Stats.ActiveTracks),
		FramesProcessed:   p.perf.Frames(),
	}

	p.lastTraffic.Store(traffic)
	p.lastPerf.Store(perf)

	if p.reporter == nil {
		return
	}
	if err := p.reporter.Publish(traffic, perf); err != nil {
		p.metrics.ReporterErrors.Add(1)
		p.logStats.Warn().Err(err).Int64("seq", frame.Seq).Msg("Report delivery failed")
		return
	}
	p.metrics.ReportsPublished.Add(1)
	frame.Reported = true

	p.logStats.Debug().
		Int64("seq", frame.Seq).
		Int("vehicles", traffic.Vehicles).
		Int("active_tracks", traffic.ActiveTracks).
		Float64("fps", perf.FPSCurrent).
		Msg("Interval report published")
}
