package detect

import (
	"context"
	"errors"
	"image"

	"github.com/kdimtricp/phasewatch/internal/video"
)

var (
	ErrModelPathRequired = errors.New("model path is required")
	ErrModelLoad         = errors.New("error loading model")
)

// Engine runs the pretrained model on one frame.
type Engine interface {
	Detect(ctx context.Context, frame video.Frame) (*Result, error)
	Close() error
}

type Keypoint struct {
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Confidence float32 `json:"confidence"`
}

type Detection struct {
	ClassID    int             `json:"class_id"`
	Label      string          `json:"label"`
	Confidence float32         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
	Keypoints  []Keypoint      `json:"keypoints,omitempty"`
}

// Result holds the detections in the order the engine produced them and a JPEG of the
// frame with the overlays drawn.
type Result struct {
	Detections []Detection
	Annotated  []byte
}

// Labels returns the class labels in engine order. Repeats are kept.
func (r *Result) Labels() []string {
	if r == nil {
		return nil
	}
	labels := make([]string, len(r.Detections))
	for i, d := range r.Detections {
		labels[i] = d.Label
	}
	return labels
}
