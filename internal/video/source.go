package video

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported video format")
	ErrOpen              = errors.New("error opening video file")
	ErrDecode            = errors.New("error decoding video")
)

// AllowedExtensions are the container types the upload form accepts.
var AllowedExtensions = []string{".mp4", ".mov", ".avi", ".mkv"}

func AllowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// FrameReader yields decoded frames one at a time. Next returns io.EOF once the
// stream is exhausted.
type FrameReader interface {
	Next() (Frame, error)
	Info() Info
	Close() error
}

// Source decodes video files with the ffmpeg binaries found on PATH.
type Source struct {
	ffmpegPath  string
	ffprobePath string
	maxWidth    int
	logger      *zap.Logger
}

func NewSource(maxWidth int, logger *zap.Logger) (*Source, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("found ffmpeg", zap.String("ffmpeg", ffmpegPath), zap.String("ffprobe", ffprobePath))

	return &Source{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		maxWidth:    maxWidth,
		logger:      logger,
	}, nil
}

// Open probes the file and starts decoding it, downscaled to the configured maximum width.
func (s *Source) Open(ctx context.Context, path string) (FrameReader, error) {
	if !AllowedExtension(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	info, err := s.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	width, height := ScaledSize(info.Width, info.Height, s.maxWidth)
	dec, err := startDecoder(ctx, s.ffmpegPath, path, *info, width, height)
	if err != nil {
		return nil, err
	}

	s.logger.Info("video opened",
		zap.String("path", path),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Int("output_width", width),
		zap.Int("output_height", height),
		zap.Float64("fps", info.FPS),
		zap.Int("frames", info.FrameCount),
	)
	return dec, nil
}

// ScaledSize shrinks w x h to fit maxWidth, keeping the aspect ratio. Frames
// narrower than maxWidth keep their size. Both sides are rounded down to even
// numbers.
func ScaledSize(w, h, maxWidth int) (int, int) {
	if maxWidth > 0 && w > maxWidth {
		h = int(float64(h) * float64(maxWidth) / float64(w))
		w = maxWidth
	}
	return even(w), even(h)
}

func even(n int) int {
	n &^= 1
	if n < 2 {
		return 2
	}
	return n
}
