package pipeline

import (
	"context"
	"errors"

	"lanewatch-go/internal/models"
)

// runPresent consumes finished frames, draws the overlay, and hands each
// frame to every sink in order. Sink trouble is contained: one failing sink
// neither stops the run nor starves the others.
func (p *Pipeline) runPresent(ctx context.Context) error {
	defer p.closeSinks()

	for {
		item, err := p.presentQueue.Get(ctx)
		if err != nil {
			if errors.Is(err, ErrCanceled) {
				p.logPresent.Debug().Msg("Present stopping on cancelled context")
				return nil
			}
			return err
		}

		if item.EOS {
			p.logPresent.Info().Uint64("frames", p.metrics.FramesPresented.Load()).Msg("End of stream marker received")
			return nil
		}

		frame := item.Frame
		if p.annotator != nil {
			if err := p.annotator.Annotate(frame); err != nil {
				p.logPresent.Warn().Err(err).Int64("seq", frame.Seq).Msg("Overlay failed, frame passes through undrawn")
			}
		}

		for _, s := range p.sinks {
			p.deliver(s, frame)
		}
		p.metrics.FramesPresented.Add(1)
	}
}

// deliver hands one frame to one sink, absorbing errors and panics so a
// broken sink cannot take the stage down with it.
func (p *Pipeline) deliver(s Sink, frame *models.Frame) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.SinkErrors.Add(1)
			p.logPresent.Error().Str("sink", s.Name()).Interface("panic", r).Msg("Sink panic recovered")
		}
	}()

	if err := s.Process(frame); err != nil {
		p.metrics.SinkErrors.Add(1)
		p.logPresent.Warn().Err(err).Str("sink", s.Name()).Int64("seq", frame.Seq).Msg("Sink failed to process frame")
	}
}

// closeSinks runs on every presentation exit path so files get finalized
// and windows disappear even when the run is unwinding on an error.
func (p *Pipeline) closeSinks() {
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			p.logPresent.Warn().Err(err).Str("sink", s.Name()).Msg("Sink close failed")
		}
	}
	if len(p.sinks) > 0 {
		p.logPresent.Debug().Int("sinks", len(p.sinks)).Msg("Sinks closed")
	}
}
