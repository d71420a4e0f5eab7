// Package detecttest provides a scripted detect.Engine.
package detecttest

import (
	"context"
	"image"
	"sync"

	"github.com/kdimtricp/phasewatch/internal/detect"
	"github.com/kdimtricp/phasewatch/internal/video"
)

// Engine returns Script[frame.Index] as the detections for each frame. Frames not in
// the script produce no detections. If FailAt matches a frame index, Detect returns Err.
type Engine struct {
	Script map[int][]string
	FailAt int
	Err    error

	mu     sync.Mutex
	calls  int
	closed bool
}

func (e *Engine) Detect(ctx context.Context, frame video.Frame) (*detect.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.FailAt != 0 && frame.Index == e.FailAt {
		return nil, e.Err
	}

	res := &detect.Result{}
	for i, label := range e.Script[frame.Index] {
		res.Detections = append(res.Detections, detect.Detection{
			ClassID:    i,
			Label:      label,
			Confidence: 0.9,
			Box:        image.Rect(0, 0, frame.Width, frame.Height),
		})
	}
	return res, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
