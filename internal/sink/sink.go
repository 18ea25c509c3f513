// Package sink delivers finished frames to their destinations: a desktop
// window, an encoded video file, or the browser stream. Sinks are
// independent; the presentation stage isolates their failures from each
// other and from the pipeline.
package sink

import "lanewatch-go/internal/models"

// frameBytes picks the annotated image when the overlay ran, falling back
// to the raw one.
func frameBytes(f *models.Frame) []byte {
	if len(f.Annotated) > 0 {
		return f.Annotated
	}
	return f.Image
}
