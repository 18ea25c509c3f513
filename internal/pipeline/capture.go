package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"lanewatch-go/internal/models"
	"lanewatch-go/internal/track"
)

// runCapture reads frames from the source, runs detection and tracking on
// each, and queues the result for the stats stage. Detector and tracker
// errors are fatal: a run that silently skips frames would report traffic
// numbers nobody should trust.
func (p *Pipeline) runCapture(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			// Cancelled between frames. Push the marker downstream so the
			// stats stage wakes up instead of riding out its get timeout.
			p.captureQueue.PutDetached(Item{EOS: true}, eosGrace)
			p.logCapture.Debug().Msg("Capture stopping on cancelled context")
			return nil
		}

		frame, err := p.source.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.logCapture.Info().Uint64("frames", p.metrics.FramesCaptured.Load()).Msg("End of stream reached")
				return p.sendEOS(ctx, p.captureQueue, p.logCapture)
			}
			return fmt.Errorf("read frame: %w", err)
		}

		if err := p.analyze(frame); err != nil {
			return err
		}

		if err := p.captureQueue.Put(ctx, Item{Frame: frame}); err != nil {
			if errors.Is(err, ErrCanceled) {
				p.captureQueue.PutDetached(Item{EOS: true}, eosGrace)
				p.logCapture.Debug().Msg("Capture stopping on cancelled context")
				return nil
			}
			return err
		}
		p.metrics.FramesCaptured.Add(1)

		if frame.Seq%300 == 0 {
			p.logCapture.Debug().
				Int64("seq", frame.Seq).
				Int("detections", len(frame.Detections)).
				Int("tracked", len(frame.Tracked)).
				Int("queue_depth", p.captureQueue.Depth()).
				Msg("Frame captured")
		}
	}
}

// analyze fills the frame's detections and tracked objects. The tracker is
// updated on every frame, including empty ones, so stale tracks age out
// while the road is quiet.
func (p *Pipeline) analyze(frame *models.Frame) error {
	t0 := time.Now()
	detections, err := p.detector.Detect(frame)
	if err != nil {
		return fmt.Errorf("detect frame %d: %w", frame.Seq, err)
	}
	frame.DetectLatency = time.Since(t0)
	frame.Detections = detections

	observations := make([]track.Observation, 0, len(detections))
	for _, d := range detections {
		observations = append(observations, track.Observation{
			X1:      float32(d.Box.Min.X),
			Y1:      float32(d.Box.Min.Y),
			X2:      float32(d.Box.Max.X),
			Y2:      float32(d.Box.Max.Y),
			Score:   d.Score,
			ClassID: d.ClassID,
			Label:   d.Label,
		})
	}

	t1 := time.Now()
	tracks := p.tracker.Update(observations)
	frame.TrackLatency = time.Since(t1)

	frame.Tracked = make([]models.TrackedObject, 0, len(tracks))
	for _, tr := range tracks {
		frame.Tracked = append(frame.Tracked, models.TrackedObject{
			ID:      tr.ID,
			Box:     tr.Rect(),
			Label:   tr.Label,
			ClassID: tr.ClassID,
			Score:   tr.Score,
		})
	}
	return nil
}

// sendEOS forwards the end-of-stream marker with the normal put timeout,
// falling back to a detached push when the run is cancelled underneath us.
func (p *Pipeline) sendEOS(ctx context.Context, q *Queue, logger zerolog.Logger) error {
	err := q.Put(ctx, Item{EOS: true})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCanceled) {
		q.PutDetached(Item{EOS: true}, eosGrace)
		return nil
	}
	logger.Error().Err(err).Str("queue", q.Name()).Msg("Could not forward end-of-stream marker")
	return err
}
