package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kdimtricp/phasewatch/internal/detect/detecttest"
	"github.com/kdimtricp/phasewatch/internal/phase"
	"github.com/kdimtricp/phasewatch/internal/video/videotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_Run(t *testing.T) {
	engine := &detecttest.Engine{Script: map[int][]string{
		1: {"A"},
		2: {"A", "B"},
		4: {"B"},
	}}
	reader := videotest.NewReader(4)
	tracker := phase.NewTracker()

	var outputs []FrameOutput
	sink := func(_ context.Context, out FrameOutput) error {
		outputs = append(outputs, out)
		return nil
	}

	n, err := New(engine, 0, nil).Run(context.Background(), reader, tracker, sink)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, engine.Calls())

	require.Len(t, outputs, 4)
	assert.Empty(t, outputs[2].Event.Labels)
	assert.False(t, outputs[2].Snapshot.HasPrimary)
	assert.Equal(t, "B", outputs[3].Snapshot.Primary)
	assert.Equal(t, []string{"A", "B"}, tracker.Order())
	assert.Equal(t, []string{"B"}, tracker.Active())
}

func TestPipeline_EmptyVideo(t *testing.T) {
	tracker := phase.NewTracker()
	n, err := New(&detecttest.Engine{}, 0, nil).Run(context.Background(), videotest.NewReader(0), tracker, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, tracker.Frames())
}

func TestPipeline_Errors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		engine    *detecttest.Engine
		readerErr error
		sinkErr   error
		wantN     int
		wantErr   error
	}{
		{
			name:    "inference failure stops the pass",
			engine:  &detecttest.Engine{FailAt: 2, Err: boom},
			wantN:   1,
			wantErr: boom,
		},
		{
			name:      "decode failure after frames",
			engine:    &detecttest.Engine{},
			readerErr: boom,
			wantN:     3,
			wantErr:   boom,
		},
		{
			name:    "sink failure",
			engine:  &detecttest.Engine{},
			sinkErr: boom,
			wantN:   1,
			wantErr: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := videotest.NewReader(3)
			reader.Err = tt.readerErr
			sink := func(context.Context, FrameOutput) error { return tt.sinkErr }

			n, err := New(tt.engine, 0, nil).Run(context.Background(), reader, phase.NewTracker(), sink)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantN, n)
		})
	}
}

func TestPipeline_CancelDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := func(context.Context, FrameOutput) error {
		cancel()
		return nil
	}

	start := time.Now()
	n, err := New(&detecttest.Engine{}, time.Hour, nil).Run(ctx, videotest.NewReader(10), phase.NewTracker(), sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
	assert.Less(t, time.Since(start), time.Minute)
}
