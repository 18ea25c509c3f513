package detect

import (
	"fmt"
	"image"
	"os"
	"strings"

	"gocv.io/x/gocv"

	"lanewatch-go/internal/models"
)

// Options configures the OpenCV DNN detector.
type Options struct {
	Weights       string
	Config        string
	Names         string
	InputSize     int
	ConfThreshold float32
	NMSThreshold  float32
	// TargetClasses lists the class names to keep; everything else the
	// model detects is discarded before tracking.
	TargetClasses []string
}

// DNN runs a YOLO-family model through OpenCV's DNN module on the CPU.
type DNN struct {
	net        gocv.Net
	classNames []string
	targets    map[int]bool
	opts       Options
}

// NewDNN loads the network and class list. Any load problem is a startup
// error; the pipeline must not run with a half-initialized detector.
func NewDNN(opts Options) (*DNN, error) {
	net := gocv.ReadNet(opts.Weights, opts.Config)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s and %s", opts.Weights, opts.Config)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	namesBytes, err := os.ReadFile(opts.Names)
	if err != nil {
		net.Close()
		return nil, fmt.Errorf("could not read class names: %w", err)
	}
	classNames := parseClassNames(namesBytes)

	targets, err := resolveTargets(classNames, opts.TargetClasses)
	if err != nil {
		net.Close()
		return nil, err
	}

	return &DNN{
		net:        net,
		classNames: classNames,
		targets:    targets,
		opts:       opts,
	}, nil
}

// Detect runs one frame through the network and returns the surviving
// boxes after the confidence, target-class and NMS filters. The slice is
// non-nil even when nothing was found.
func (d *DNN) Detect(f *models.Frame) ([]models.Detection, error) {
	if want := f.Width * f.Height * 3; len(f.Image) != want {
		return nil, fmt.Errorf("frame %d: image size %d does not match %dx%d BGR24",
			f.Seq, len(f.Image), f.Width, f.Height)
	}
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Image)
	if err != nil {
		return nil, fmt.Errorf("frame %d: build mat: %w", f.Seq, err)
	}
	defer mat.Close()

	size := d.opts.InputSize
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	if output.Empty() {
		return nil, fmt.Errorf("frame %d: inference produced no output", f.Seq)
	}

	var (
		boxes    []image.Rectangle
		scores   []float32
		classIDs []int
	)
	for i := 0; i < output.Rows(); i++ {
		row := output.RowRange(i, i+1)
		data := row.Clone()
		cols := data.Cols()
		if cols <= 5 {
			data.Close()
			row.Close()
			continue
		}
		classScores := data.ColRange(5, cols)
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(classScores)
		classID := maxLoc.X
		confidence := float32(maxVal)

		if confidence >= d.opts.ConfThreshold && classID < len(d.classNames) && d.targets[classID] {
			// YOLO rows carry normalized center/size coordinates.
			cx := data.GetFloatAt(0, 0) * float32(f.Width)
			cy := data.GetFloatAt(0, 1) * float32(f.Height)
			w := data.GetFloatAt(0, 2) * float32(f.Width)
			h := data.GetFloatAt(0, 3) * float32(f.Height)

			rect := image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2))
			rect = rect.Intersect(image.Rect(0, 0, f.Width, f.Height))
			if !rect.Empty() {
				boxes = append(boxes, rect)
				scores = append(scores, confidence)
				classIDs = append(classIDs, classID)
			}
		}

		classScores.Close()
		data.Close()
		row.Close()
	}

	if len(boxes) == 0 {
		return []models.Detection{}, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, d.opts.ConfThreshold, d.opts.NMSThreshold)
	out := make([]models.Detection, 0, len(keep))
	for _, idx := range keep {
		out = append(out, models.Detection{
			Box:     boxes[idx],
			Label:   d.classNames[classIDs[idx]],
			ClassID: classIDs[idx],
			Score:   scores[idx],
		})
	}
	return out, nil
}

// TargetIDs returns the detector class ids kept by the class filter,
// in names-file order.
func (d *DNN) TargetIDs() []int {
	ids := make([]int, 0, len(d.targets))
	for i := range d.classNames {
		if d.targets[i] {
			ids = append(ids, i)
		}
	}
	return ids
}

// ClassName returns the label for a class id, or "" when out of range.
func (d *DNN) ClassName(id int) string {
	if id < 0 || id >= len(d.classNames) {
		return ""
	}
	return d.classNames[id]
}

// Close releases the network.
func (d *DNN) Close() error {
	return d.net.Close()
}

func parseClassNames(raw []byte) []string {
	lines := strings.Split(string(raw), "\n")
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		if s := strings.TrimSpace(l); s != "" {
			names = append(names, s)
		}
	}
	return names
}

// resolveTargets maps requested class names to ids in the names file. A name
// the model does not know is a configuration error, not a silent no-op.
func resolveTargets(classNames, targets []string) (map[int]bool, error) {
	index := make(map[string]int, len(classNames))
	for i, n := range classNames {
		index[n] = i
	}
	out := make(map[int]bool, len(targets))
	for _, t := range targets {
		id, ok := index[t]
		if !ok {
			return nil, fmt.Errorf("target class %q not present in names file", t)
		}
		out[id] = true
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no target classes configured")
	}
	return out, nil
}
