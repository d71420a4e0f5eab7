package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kdimtricp/phasewatch/internal/detect"
	"github.com/kdimtricp/phasewatch/internal/metrics"
	"github.com/kdimtricp/phasewatch/internal/phase"
	"github.com/kdimtricp/phasewatch/internal/video"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FrameSink receives the outcome of every processed frame, in order.
type FrameSink func(ctx context.Context, out FrameOutput) error

type FrameOutput struct {
	Frame    video.Frame
	Event    phase.DetectionEvent
	Result   *detect.Result
	Snapshot phase.Snapshot
}

// Pipeline runs one pass over a video: read a frame, run the model, record the
// labels, hand the snapshot to the sink, pause, repeat. Nothing runs concurrently
// within a pass.
type Pipeline struct {
	engine     detect.Engine
	frameDelay time.Duration
	logger     *zap.Logger
}

func New(engine detect.Engine, frameDelay time.Duration, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{engine: engine, frameDelay: frameDelay, logger: logger}
}

// Run processes frames until the reader is exhausted and returns the number of frames
// processed. End of stream is not an error. A read or inference failure ends the pass.
func (p *Pipeline) Run(ctx context.Context, reader video.FrameReader, tracker *phase.Tracker, sink FrameSink) (int, error) {
	tracer := otel.Tracer("pipeline")
	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()

	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			span.SetAttributes(attribute.Int("pass.frames", processed))
			return processed, nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "read frame")
			return processed, fmt.Errorf("read frame %d: %w", processed+1, err)
		}

		out, err := p.step(ctx, tracker, frame)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "detect")
			return processed, err
		}
		processed++

		if sink != nil {
			if err := sink(ctx, out); err != nil {
				return processed, fmt.Errorf("frame %d sink: %w", frame.Index, err)
			}
		}

		if p.frameDelay > 0 {
			select {
			case <-ctx.Done():
				return processed, ctx.Err()
			case <-time.After(p.frameDelay):
			}
		}
	}
}

func (p *Pipeline) step(ctx context.Context, tracker *phase.Tracker, frame video.Frame) (FrameOutput, error) {
	ctx, span := otel.Tracer("pipeline").Start(ctx, "detect_frame",
		trace.WithAttributes(attribute.Int("frame.index", frame.Index)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	start := time.Now()
	result, err := p.engine.Detect(ctx, frame)
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return FrameOutput{}, fmt.Errorf("detect frame %d: %w", frame.Index, err)
	}

	ev := phase.DetectionEvent{FrameIndex: frame.Index, Labels: result.Labels()}
	tracker.Record(ev)

	metrics.FramesProcessedTotal.Inc()
	for _, label := range ev.Labels {
		metrics.DetectionsTotal.WithLabelValues(label).Inc()
	}
	span.SetAttributes(attribute.Int("frame.detections", len(ev.Labels)))

	if len(ev.Labels) > 0 {
		p.logger.Debug("frame detections",
			zap.Int("frame", frame.Index),
			zap.Strings("labels", ev.Labels),
		)
	}

	return FrameOutput{
		Frame:    frame,
		Event:    ev,
		Result:   result,
		Snapshot: tracker.Snapshot(),
	}, nil
}
