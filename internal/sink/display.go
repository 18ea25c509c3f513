package sink

import (
	"fmt"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"lanewatch-go/internal/models"
)

// Display shows frames in a desktop window through OpenCV's HighGUI. It
// needs a display server; headless deployments leave it disabled.
type Display struct {
	window *gocv.Window
	logger zerolog.Logger
	closed bool
}

// NewDisplay opens the window immediately so a missing display surfaces at
// startup rather than mid-run.
func NewDisplay(title string, logger zerolog.Logger) *Display {
	return &Display{
		window: gocv.NewWindow(title),
		logger: logger,
	}
}

// Name implements the sink contract.
func (s *Display) Name() string { return "display" }

// Process renders one frame. The one-millisecond WaitKey keeps HighGUI's
// event loop alive; without it the window never repaints.
func (s *Display) Process(f *models.Frame) error {
	if s.closed {
		return fmt.Errorf("display window already closed")
	}

	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, frameBytes(f))
	if err != nil {
		return fmt.Errorf("failed to build mat from frame %d: %w", f.Seq, err)
	}
	defer mat.Close()

	s.window.IMShow(mat)
	s.window.WaitKey(1)
	return nil
}

// Close destroys the window.
func (s *Display) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.window.Close()
}
