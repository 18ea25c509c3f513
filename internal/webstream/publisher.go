// Package webstream serves the annotated video as a multipart MJPEG stream
// so any browser can watch the analyzer output without extra tooling.
package webstream

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"lanewatch-go/internal/models"
)

// keepaliveInterval re-sends the latest frame to idle viewers so proxies
// do not drop the connection between frames.
const keepaliveInterval = 2 * time.Second

// Publisher keeps the latest encoded JPEG and wakes every connected viewer
// when a new one arrives. Viewers that fall behind skip frames instead of
// queueing them.
type Publisher struct {
	cameraID string
	quality  int
	logger   zerolog.Logger

	mu      sync.RWMutex
	latest  []byte
	viewers map[int]chan struct{}
	nextID  int
}

// NewPublisher returns a publisher encoding at the given JPEG quality.
func NewPublisher(cameraID string, quality int, logger zerolog.Logger) *Publisher {
	return &Publisher{
		cameraID: cameraID,
		quality:  quality,
		logger:   logger,
		viewers:  make(map[int]chan struct{}),
	}
}

// Publish encodes the frame and notifies viewers. The annotated image is
// preferred; the raw one is used when no overlay was drawn.
func (p *Publisher) Publish(f *models.Frame) error {
	data := f.Annotated
	if len(data) == 0 {
		data = f.Image
	}

	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, data)
	if err != nil {
		return fmt.Errorf("failed to build mat from frame %d: %w", f.Seq, err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, p.quality})
	if err != nil {
		return fmt.Errorf("failed to encode frame %d: %w", f.Seq, err)
	}
	b := buf.GetBytes()
	jpeg := make([]byte, len(b))
	copy(jpeg, b)
	buf.Close()

	p.mu.Lock()
	p.latest = jpeg
	notify := make([]chan struct{}, 0, len(p.viewers))
	for _, ch := range p.viewers {
		notify = append(notify, ch)
	}
	p.mu.Unlock()

	for _, ch := range notify {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Viewers reports how many streaming connections are open.
func (p *Publisher) Viewers() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.viewers)
}

func (p *Publisher) subscribe() (int, chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	ch := make(chan struct{}, 1)
	p.viewers[id] = ch
	return id, ch
}

func (p *Publisher) unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.viewers, id)
}

func (p *Publisher) snapshot() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// ServeHTTP streams multipart JPEG parts until the viewer disconnects.
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	boundary := "frame"
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, notify := p.subscribe()
	defer p.unsubscribe(id)
	p.logger.Debug().Int("viewer", id).Msg("Stream viewer connected")
	defer p.logger.Debug().Int("viewer", id).Msg("Stream viewer disconnected")

	writePart := func(jpeg []byte) bool {
		if _, err := io.WriteString(w, "--"+boundary+"\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "Content-Type: image/jpeg\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(jpeg))); err != nil {
			return false
		}
		if _, err := w.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	first := p.snapshot()
	if len(first) == 0 {
		first = p.placeholderJPEG()
	}
	if len(first) > 0 && !writePart(first) {
		return
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
			if jpeg := p.snapshot(); len(jpeg) > 0 && !writePart(jpeg) {
				return
			}
		case <-keepalive.C:
			if jpeg := p.snapshot(); len(jpeg) > 0 && !writePart(jpeg) {
				return
			}
		}
	}
}

// placeholderJPEG renders a gray card shown before the first frame lands.
func (p *Publisher) placeholderJPEG() []byte {
	card := gocv.NewMatWithSize(360, 640, gocv.MatTypeCV8UC3)
	defer card.Close()

	card.SetTo(gocv.Scalar{Val1: 64, Val2: 64, Val3: 64, Val4: 0})
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.PutText(&card, fmt.Sprintf("Camera: %s", p.cameraID),
		image.Pt(20, 180), gocv.FontHersheySimplex, 1.0, white, 2)
	gocv.PutText(&card, "Waiting for frames...",
		image.Pt(20, 220), gocv.FontHersheySimplex, 0.8, white, 2)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, card, []int{gocv.IMWriteJpegQuality, p.quality})
	if err != nil {
		return nil
	}
	b := buf.GetBytes()
	jpeg := make([]byte, len(b))
	copy(jpeg, b)
	buf.Close()
	return jpeg
}
