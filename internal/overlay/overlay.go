// Package overlay draws the analyzer's view of the road onto each frame:
// lane polygons, tracked vehicle boxes and a small statistics HUD.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sort"
	"time"

	"gocv.io/x/gocv"

	"lanewatch-go/internal/config"
	"lanewatch-go/internal/lane"
	"lanewatch-go/internal/models"
)

// Annotator renders overlays into Frame.Annotated, leaving the raw image
// untouched for sinks that want it clean. It is used by one goroutine only;
// prevTS carries the previous frame's timestamp for the HUD frame rate.
type Annotator struct {
	lanes     []lane.Lane
	color     color.RGBA
	thickness int
	showHUD   bool
	showLanes bool
	showIDs   bool

	prevTS time.Time
}

// New builds the annotator from configuration. A malformed overlay color is
// a startup error.
func New(cfg *config.Config, lanes *lane.Set) (*Annotator, error) {
	c, err := parseHexColor(cfg.OverlayColor)
	if err != nil {
		return nil, fmt.Errorf("overlay color: %w", err)
	}
	return &Annotator{
		lanes:     lanes.Lanes(),
		color:     c,
		thickness: cfg.OverlayFont,
		showHUD:   cfg.ShowHUD,
		showLanes: cfg.ShowLanes,
		showIDs:   cfg.ShowTrackIDs,
	}, nil
}

// Annotate draws onto a copy of the frame image and stores the result in
// f.Annotated.
func (a *Annotator) Annotate(f *models.Frame) error {
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Image)
	if err != nil {
		return fmt.Errorf("failed to build mat from frame %d: %w", f.Seq, err)
	}
	defer mat.Close()

	if a.showLanes {
		a.drawLanes(&mat)
	}
	a.drawTracks(&mat, f)
	if a.showHUD {
		a.drawHUD(&mat, f)
	}

	f.Annotated = mat.ToBytes()
	return nil
}

func (a *Annotator) drawLanes(mat *gocv.Mat) {
	laneColor := color.RGBA{R: a.color.R / 2, G: a.color.G / 2, B: a.color.B / 2, A: 255}
	for _, l := range a.lanes {
		n := len(l.Points)
		for i := 0; i < n; i++ {
			p1 := l.Points[i]
			p2 := l.Points[(i+1)%n]
			gocv.Line(mat, image.Pt(int(p1[0]), int(p1[1])), image.Pt(int(p2[0]), int(p2[1])), laneColor, 1)
		}
		anchor := image.Pt(int(l.Points[0][0])+4, int(l.Points[0][1])+16)
		gocv.PutText(mat, l.ID, anchor, gocv.FontHersheySimplex, 0.5, laneColor, 1)
	}
}

func (a *Annotator) drawTracks(mat *gocv.Mat, f *models.Frame) {
	for _, t := range f.Tracked {
		gocv.Rectangle(mat, t.Box, a.color, a.thickness)
		a.drawCorners(mat, t.Box)
		if !a.showIDs {
			continue
		}
		label := fmt.Sprintf("%s #%d", t.Label, t.ID)
		textY := t.Box.Min.Y - 8
		if textY < 20 {
			textY = t.Box.Min.Y + 20
		}
		a.drawLabel(mat, label, t.Box.Min.X, textY, 0.5)
	}
}

// drawCorners accents the four box corners, capped so the accents never
// cross on small boxes.
func (a *Annotator) drawCorners(mat *gocv.Mat, box image.Rectangle) {
	length := 20
	if m := box.Dx() / 4; m < length {
		length = m
	}
	if m := box.Dy() / 4; m < length {
		length = m
	}
	if length < 4 {
		return
	}
	thickness := a.thickness + 1
	x1, y1, x2, y2 := box.Min.X, box.Min.Y, box.Max.X, box.Max.Y

	gocv.Line(mat, image.Pt(x1, y1), image.Pt(x1+length, y1), a.color, thickness)
	gocv.Line(mat, image.Pt(x1, y1), image.Pt(x1, y1+length), a.color, thickness)

	gocv.Line(mat, image.Pt(x2, y1), image.Pt(x2-length, y1), a.color, thickness)
	gocv.Line(mat, image.Pt(x2, y1), image.Pt(x2, y1+length), a.color, thickness)

	gocv.Line(mat, image.Pt(x1, y2), image.Pt(x1+length, y2), a.color, thickness)
	gocv.Line(mat, image.Pt(x1, y2), image.Pt(x1, y2-length), a.color, thickness)

	gocv.Line(mat, image.Pt(x2, y2), image.Pt(x2-length, y2), a.color, thickness)
	gocv.Line(mat, image.Pt(x2, y2), image.Pt(x2, y2-length), a.color, thickness)
}

func (a *Annotator) drawHUD(mat *gocv.Mat, f *models.Frame) {
	fps := 0.0
	if !a.prevTS.IsZero() {
		if dt := f.Timestamp.Sub(a.prevTS); dt > 0 {
			fps = float64(time.Second) / float64(dt)
		}
	}
	a.prevTS = f.Timestamp

	y := 28
	status := fmt.Sprintf("%s  frame %d  %.1f fps  det %.1fms  trk %.1fms",
		f.CameraID, f.Seq, fps,
		float64(f.DetectLatency.Microseconds())/1000,
		float64(f.TrackLatency.Microseconds())/1000)
	a.drawLabel(mat, status, 12, y, 0.5)
	y += 28

	a.drawLabel(mat, fmt.Sprintf("Vehicles: %d   Active: %d", f.Stats.Vehicles, len(f.Stats.ActiveTracks)), 12, y, 0.6)
	y += 30

	ids := make([]string, 0, len(f.Stats.LaneOccupancy))
	for id := range f.Stats.LaneOccupancy {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		activity := "-"
		if f.Stats.LaneActivity != nil {
			activity = fmt.Sprintf("%d", f.Stats.LaneActivity[id])
		}
		a.drawLabel(mat, fmt.Sprintf("%s  now: %d  window: %s", id, f.Stats.LaneOccupancy[id], activity), 12, y, 0.5)
		y += 26
	}
}

// drawLabel puts text over a dark background patch so it stays readable on
// bright frames.
func (a *Annotator) drawLabel(mat *gocv.Mat, text string, x, y int, scale float64) {
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, scale, a.thickness)
	pad := 4
	bg := image.Rect(x-pad, y-size.Y-pad, x+size.X+pad, y+pad)
	gocv.Rectangle(mat, bg, color.RGBA{R: 0, G: 0, B: 0, A: 200}, -1)
	gocv.PutText(mat, text, image.Pt(x, y), gocv.FontHersheySimplex, scale, a.color, a.thickness)
}

// parseHexColor turns "#RRGGBB" into an RGBA value.
func parseHexColor(s string) (color.RGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, fmt.Errorf("expected #RRGGBB, got %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.RGBA{}, fmt.Errorf("expected #RRGGBB, got %q", s)
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
