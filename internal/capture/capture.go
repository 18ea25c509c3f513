// Package capture reads frames from a video file, RTSP/HTTP stream or
// local device through OpenCV and hands them to the pipeline as raw BGR24
// buffers.
package capture

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"lanewatch-go/internal/config"
	"lanewatch-go/internal/models"
)

// maxConsecutiveErrors is how many read failures in a row a live source may
// produce before the run is declared dead. File sources never retry; a
// failed read there is the end of the file.
const maxConsecutiveErrors = 10

// Source wraps a gocv VideoCapture as a sequential frame reader. Read is
// not safe for concurrent use; the capture stage is its only caller.
type Source struct {
	cfg    *config.Config
	logger zerolog.Logger

	cap  *gocv.VideoCapture
	img  gocv.Mat
	seq  int64
	live bool

	consecutiveErrors int
}

// Open connects to the configured source and verifies it produces frames.
// Failures here are startup errors: the pipeline never runs on a source
// that could not be opened.
func Open(cfg *config.Config, logger zerolog.Logger) (*Source, error) {
	var (
		cap *gocv.VideoCapture
		err error
	)

	if device, devErr := strconv.Atoi(cfg.Source); devErr == nil {
		cap, err = gocv.OpenVideoCapture(device)
	} else if strings.EqualFold(cfg.SourceAPI, "ffmpeg") {
		cap, err = gocv.OpenVideoCaptureWithAPI(cfg.Source, gocv.VideoCaptureFFmpeg)
	} else {
		cap, err = gocv.OpenVideoCapture(cfg.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open video source %s: %w", cfg.Source, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("video source %s did not open", cfg.Source)
	}

	s := &Source{
		cfg:    cfg,
		logger: logger,
		cap:    cap,
		img:    gocv.NewMat(),
		live:   isLive(cfg.Source),
	}

	logger.Info().
		Str("source", cfg.Source).
		Bool("live", s.live).
		Float64("fps", s.FPS()).
		Float64("width", cap.Get(gocv.VideoCaptureFrameWidth)).
		Float64("height", cap.Get(gocv.VideoCaptureFrameHeight)).
		Msg("Video source opened")

	return s, nil
}

// Read returns the next frame, io.EOF when a file source is exhausted, or
// an error when a live source stops producing frames. Live read hiccups
// back off progressively before giving up.
func (s *Source) Read() (*models.Frame, error) {
	for {
		if ok := s.cap.Read(&s.img); !ok {
			if !s.live {
				return nil, io.EOF
			}
			if err := s.recordFailure("read failed"); err != nil {
				return nil, err
			}
			continue
		}
		if s.img.Empty() {
			if !s.live {
				return nil, io.EOF
			}
			if err := s.recordFailure("empty frame"); err != nil {
				return nil, err
			}
			continue
		}

		s.consecutiveErrors = 0
		frame := &models.Frame{
			CameraID:  s.cfg.CameraID,
			Seq:       s.seq,
			Timestamp: time.Now(),
			Image:     s.img.ToBytes(),
			Width:     s.img.Cols(),
			Height:    s.img.Rows(),
		}
		s.seq++
		return frame, nil
	}
}

// recordFailure counts a live-source read problem and sleeps with a
// progressive delay, or returns a fatal error when the budget is spent.
func (s *Source) recordFailure(reason string) error {
	s.consecutiveErrors++
	s.logger.Warn().
		Str("reason", reason).
		Int("consecutive_errors", s.consecutiveErrors).
		Msg("Video source read problem")

	if s.consecutiveErrors >= maxConsecutiveErrors {
		return fmt.Errorf("no frames from %s after %d consecutive failures", s.cfg.Source, s.consecutiveErrors)
	}

	delay := time.Duration(s.consecutiveErrors*50) * time.Millisecond
	if delay > 2*time.Second {
		delay = 2 * time.Second
	}
	time.Sleep(delay)
	return nil
}

// FPS reports the source frame rate, or 0 when the backend does not know.
func (s *Source) FPS() float64 {
	fps := s.cap.Get(gocv.VideoCaptureFPS)
	if fps <= 0 || fps > 1000 {
		return 0
	}
	return fps
}

// Size reports the source frame dimensions.
func (s *Source) Size() (width, height int) {
	return int(s.cap.Get(gocv.VideoCaptureFrameWidth)), int(s.cap.Get(gocv.VideoCaptureFrameHeight))
}

// Frames reports how many frames have been read so far.
func (s *Source) Frames() int64 {
	return s.seq
}

// Close releases the capture handle and its scratch buffer.
func (s *Source) Close() error {
	s.img.Close()
	return s.cap.Close()
}

// isLive reports whether the source is a stream or device rather than a
// finite file. Streams retry transient read failures; files treat them as
// end of input.
func isLive(source string) bool {
	if _, err := strconv.Atoi(source); err == nil {
		return true
	}
	lower := strings.ToLower(source)
	for _, scheme := range []string{"rtsp://", "rtmp://", "http://", "https://", "udp://", "tcp://"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}
