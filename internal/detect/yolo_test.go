package detect

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tensor builds a [rows, anchors] output from per-anchor columns.
func tensor(rows int, cols ...[]float32) []float32 {
	n := len(cols)
	out := make([]float32, rows*n)
	for i, col := range cols {
		for r := 0; r < rows; r++ {
			out[r*n+i] = col[r]
		}
	}
	return out
}

func TestDecodeYOLO(t *testing.T) {
	layout := YOLOLayout{NumClasses: 3, Anchors: 3}
	out := tensor(7,
		[]float32{320, 320, 64, 64, 0.1, 0.9, 0.2}, // class 1
		[]float32{100, 100, 10, 10, 0.1, 0.1, 0.1}, // below threshold
		[]float32{32, 32, 64, 64, 0.6, 0.0, 0.3},   // class 0, touching the origin
	)

	dets, err := DecodeYOLO(out, layout, DecodeOptions{
		ConfThreshold: 0.25,
		InputWidth:    640,
		InputHeight:   640,
		FrameWidth:    1280,
		FrameHeight:   640,
	})
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, 1, dets[0].ClassID)
	assert.InDelta(t, 0.9, dets[0].Confidence, 1e-6)
	assert.Equal(t, image.Rect(576, 288, 704, 352), dets[0].Box)

	assert.Equal(t, 0, dets[1].ClassID)
	assert.Equal(t, image.Rect(0, 0, 128, 64), dets[1].Box)
	assert.Nil(t, dets[1].Keypoints)
}

func TestDecodeYOLO_Keypoints(t *testing.T) {
	layout := YOLOLayout{NumClasses: 1, NumKeypoints: 2, Anchors: 1}
	out := tensor(11, []float32{320, 320, 100, 100, 0.8, 300, 310, 0.9, 340, 330, 0.4})

	dets, err := DecodeYOLO(out, layout, DecodeOptions{
		ConfThreshold: 0.5,
		InputWidth:    640,
		InputHeight:   640,
		FrameWidth:    320,
		FrameHeight:   320,
	})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Len(t, dets[0].Keypoints, 2)
	assert.Equal(t, Keypoint{X: 150, Y: 155, Confidence: 0.9}, dets[0].Keypoints[0])
	assert.Equal(t, Keypoint{X: 170, Y: 165, Confidence: 0.4}, dets[0].Keypoints[1])
}

func TestDecodeYOLO_BadInput(t *testing.T) {
	layout := YOLOLayout{NumClasses: 2, Anchors: 4}

	_, err := DecodeYOLO(make([]float32, 10), layout, DecodeOptions{InputWidth: 640, InputHeight: 640})
	assert.Error(t, err)

	_, err = DecodeYOLO(make([]float32, 24), layout, DecodeOptions{})
	assert.Error(t, err)
}

func TestLayoutFromShape(t *testing.T) {
	layout, err := LayoutFromShape([]int{1, 18, 8400}, 0)
	require.NoError(t, err)
	assert.Equal(t, YOLOLayout{NumClasses: 14, Anchors: 8400}, layout)

	layout, err = LayoutFromShape([]int{1, 69, 8400}, 17)
	require.NoError(t, err)
	assert.Equal(t, 14, layout.NumClasses)

	_, err = LayoutFromShape([]int{1, 18}, 0)
	assert.Error(t, err)
	_, err = LayoutFromShape([]int{1, 51, 8400}, 17)
	assert.Error(t, err)
}

func TestResultLabels(t *testing.T) {
	var nilResult *Result
	assert.Nil(t, nilResult.Labels())

	r := &Result{Detections: []Detection{{Label: "Drive"}, {Label: "Turn Over"}, {Label: "Drive"}}}
	assert.Equal(t, []string{"Drive", "Turn Over", "Drive"}, r.Labels())
}
