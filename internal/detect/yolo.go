package detect

import (
	"fmt"
	"image"
)

// YOLOLayout describes a YOLOv8 head output of shape [1, 4+classes+3*keypoints, anchors].
type YOLOLayout struct {
	NumClasses   int
	NumKeypoints int
	Anchors      int
}

func (l YOLOLayout) rows() int {
	return 4 + l.NumClasses + 3*l.NumKeypoints
}

// LayoutFromShape infers the layout from the output tensor shape. Keypoint models
// need numKeypoints; plain detection models pass 0.
func LayoutFromShape(shape []int, numKeypoints int) (YOLOLayout, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return YOLOLayout{}, fmt.Errorf("unexpected output shape %v", shape)
	}
	classes := shape[1] - 4 - 3*numKeypoints
	if classes <= 0 {
		return YOLOLayout{}, fmt.Errorf("output shape %v leaves no class rows for %d keypoints", shape, numKeypoints)
	}
	return YOLOLayout{NumClasses: classes, NumKeypoints: numKeypoints, Anchors: shape[2]}, nil
}

// DecodeOptions maps model input coordinates back onto the frame.
type DecodeOptions struct {
	ConfThreshold float32
	InputWidth    int
	InputHeight   int
	FrameWidth    int
	FrameHeight   int
}

// DecodeYOLO turns the raw output into candidate detections above the confidence
// threshold, in anchor order. Overlap suppression is left to the caller.
func DecodeYOLO(out []float32, layout YOLOLayout, opts DecodeOptions) ([]Detection, error) {
	n := layout.Anchors
	if n <= 0 || len(out) != layout.rows()*n {
		return nil, fmt.Errorf("output has %d values, layout wants %d", len(out), layout.rows()*n)
	}
	if opts.InputWidth <= 0 || opts.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid input size %dx%d", opts.InputWidth, opts.InputHeight)
	}

	sx := float32(opts.FrameWidth) / float32(opts.InputWidth)
	sy := float32(opts.FrameHeight) / float32(opts.InputHeight)
	at := func(row, i int) float32 { return out[row*n+i] }

	var dets []Detection
	for i := 0; i < n; i++ {
		best, score := -1, float32(0)
		for c := 0; c < layout.NumClasses; c++ {
			if s := at(4+c, i); s > score {
				best, score = c, s
			}
		}
		if best < 0 || score < opts.ConfThreshold {
			continue
		}

		cx, cy, w, h := at(0, i)*sx, at(1, i)*sy, at(2, i)*sx, at(3, i)*sy
		box := image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)).
			Intersect(image.Rect(0, 0, opts.FrameWidth, opts.FrameHeight))

		det := Detection{ClassID: best, Confidence: score, Box: box}
		if layout.NumKeypoints > 0 {
			base := 4 + layout.NumClasses
			det.Keypoints = make([]Keypoint, layout.NumKeypoints)
			for k := range det.Keypoints {
				det.Keypoints[k] = Keypoint{
					X:          at(base+3*k, i) * sx,
					Y:          at(base+3*k+1, i) * sy,
					Confidence: at(base+3*k+2, i),
				}
			}
		}
		dets = append(dets, det)
	}
	return dets, nil
}
