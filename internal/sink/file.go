package sink

import (
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"lanewatch-go/internal/models"
)

// encoderStopTimeout bounds how long Close waits for ffmpeg to finalize
// the file before killing it.
const encoderStopTimeout = 5 * time.Second

// File encodes frames into a single H.264 video by piping raw BGR24 data
// into an ffmpeg child process. The encoder starts lazily on the first
// frame, when the stream's real dimensions are known.
type File struct {
	path   string
	fps    float64
	logger zerolog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	width  int
	height int
	frames int64
	closed bool
}

// NewFile returns a file sink writing to path at the given frame rate.
// A non-positive rate falls back to 25 fps.
func NewFile(path string, fps float64, logger zerolog.Logger) *File {
	if fps <= 0 {
		fps = 25
	}
	return &File{path: path, fps: fps, logger: logger}
}

// Name implements the sink contract.
func (s *File) Name() string { return "file" }

// Process writes one frame to the encoder, starting it on first use.
func (s *File) Process(f *models.Frame) error {
	if s.closed {
		return fmt.Errorf("video file already finalized")
	}
	if s.cmd == nil {
		if err := s.start(f.Width, f.Height); err != nil {
			return err
		}
	}

	data := frameBytes(f)
	if want := s.width * s.height * 3; len(data) != want {
		return fmt.Errorf("frame %d: size %d does not match %dx%d BGR24", f.Seq, len(data), s.width, s.height)
	}
	if _, err := s.stdin.Write(data); err != nil {
		return fmt.Errorf("failed to write frame %d to encoder: %w", f.Seq, err)
	}
	s.frames++
	return nil
}

func (s *File) start(width, height int) error {
	frameSize := fmt.Sprintf("%dx%d", width, height)
	args := []string{
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", frameSize,
		"-r", fmt.Sprintf("%.2f", s.fps),
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-movflags", "+faststart",
		"-f", "mp4",
		"-loglevel", "warning",
		"-y",
		s.path,
	}

	cmd := exec.Command("ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create encoder stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.width = width
	s.height = height

	s.logger.Info().
		Str("path", s.path).
		Str("frame_size", frameSize).
		Float64("fps", s.fps).
		Msg("Video encoder started")
	return nil
}

// Close stops the encoder and waits for it to finalize the file. Closing a
// sink that never received a frame is a no-op.
func (s *File) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cmd == nil {
		return nil
	}

	s.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()

	select {
	case <-time.After(encoderStopTimeout):
		s.cmd.Process.Kill()
		return fmt.Errorf("encoder did not finish within %s, killed", encoderStopTimeout)
	case err := <-done:
		if err != nil {
			return fmt.Errorf("encoder exited with error: %w", err)
		}
	}

	s.logger.Info().Int64("frames", s.frames).Str("path", s.path).Msg("Video file finalized")
	return nil
}
