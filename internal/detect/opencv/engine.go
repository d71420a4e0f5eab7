// Package opencv runs an ONNX export of the pose/detection checkpoint with the OpenCV DNN module.
package opencv

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"

	"github.com/kdimtricp/phasewatch/internal/detect"
	"github.com/kdimtricp/phasewatch/internal/video"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

type Config struct {
	ModelPath     string
	Labels        detect.LabelSet
	ConfThreshold float32
	NMSThreshold  float32
	InputSize     int
	Keypoints     int
	JPEGQuality   int
}

// Engine wraps a gocv.Net. The net is not safe for concurrent use, so Detect serializes
// forward passes across sessions.
type Engine struct {
	mu     sync.Mutex
	net    gocv.Net
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if cfg.ModelPath == "" {
		return nil, detect.ErrModelPathRequired
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", detect.ErrModelLoad, err)
	}
	if cfg.Labels == nil {
		cfg.Labels = detect.DefaultLabels()
	}
	if cfg.InputSize == 0 {
		cfg.InputSize = 640
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 80
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("%w: cannot read network from %s", detect.ErrModelLoad, cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	logger.Info("model loaded",
		zap.String("model_path", cfg.ModelPath),
		zap.Int("classes", len(cfg.Labels)),
		zap.Int("input_size", cfg.InputSize),
	)
	return &Engine{net: net, cfg: cfg, logger: logger}, nil
}

func (e *Engine) Detect(ctx context.Context, frame video.Frame) (*detect.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !frame.Valid() {
		return nil, fmt.Errorf("invalid frame %d", frame.Index)
	}

	img, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("wrap frame %d: %w", frame.Index, err)
	}
	defer img.Close()

	dets, err := e.infer(img, frame.Width, frame.Height)
	if err != nil {
		return nil, fmt.Errorf("inference on frame %d: %w", frame.Index, err)
	}

	annotated, err := e.annotate(img, dets)
	if err != nil {
		return nil, fmt.Errorf("annotate frame %d: %w", frame.Index, err)
	}

	return &detect.Result{Detections: dets, Annotated: annotated}, nil
}

func (e *Engine) infer(img gocv.Mat, width, height int) ([]detect.Detection, error) {
	size := e.cfg.InputSize
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.mu.Lock()
	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	e.mu.Unlock()
	defer out.Close()

	layout, err := detect.LayoutFromShape(out.Size(), e.cfg.Keypoints)
	if err != nil {
		return nil, err
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output tensor: %w", err)
	}

	candidates, err := detect.DecodeYOLO(data, layout, detect.DecodeOptions{
		ConfThreshold: e.cfg.ConfThreshold,
		InputWidth:    size,
		InputHeight:   size,
		FrameWidth:    width,
		FrameHeight:   height,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	boxes := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		boxes[i] = c.Box
		scores[i] = c.Confidence
	}

	keep := gocv.NMSBoxes(boxes, scores, e.cfg.ConfThreshold, e.cfg.NMSThreshold)
	dets := make([]detect.Detection, 0, len(keep))
	for _, idx := range keep {
		d := candidates[idx]
		d.Label = e.cfg.Labels.Name(d.ClassID)
		dets = append(dets, d)
	}
	return dets, nil
}

var (
	boxColor      = color.RGBA{R: 30, G: 136, B: 229, A: 255}
	textColor     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	keypointColor = color.RGBA{R: 255, G: 193, B: 7, A: 255}
)

func (e *Engine) annotate(img gocv.Mat, dets []detect.Detection) ([]byte, error) {
	canvas := img.Clone()
	defer canvas.Close()

	for _, d := range dets {
		gocv.Rectangle(&canvas, d.Box, boxColor, 2)

		text := fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
		ts := gocv.GetTextSize(text, gocv.FontHersheySimplex, 0.5, 1)
		top := d.Box.Min.Y
		if top < ts.Y+6 {
			top = ts.Y + 6
		}
		gocv.Rectangle(&canvas, image.Rect(d.Box.Min.X, top-ts.Y-6, d.Box.Min.X+ts.X+4, top), boxColor, -1)
		gocv.PutText(&canvas, text, image.Pt(d.Box.Min.X+2, top-4), gocv.FontHersheySimplex, 0.5, textColor, 1)

		for _, kp := range d.Keypoints {
			if kp.Confidence < 0.5 {
				continue
			}
			gocv.Circle(&canvas, image.Pt(int(kp.X), int(kp.Y)), 3, keypointColor, -1)
		}
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, canvas, []int{gocv.IMWriteJpegQuality, e.cfg.JPEGQuality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.Close()
}
