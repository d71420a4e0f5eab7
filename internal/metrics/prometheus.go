package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phasewatch_frames_processed_total",
		Help: "Total number of frames run through the model",
	})

	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phasewatch_inference_duration_seconds",
		Help:    "Duration of one model inference call",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phasewatch_detections_total",
		Help: "Total number of detections, by phase label",
	}, []string{"label"})

	PassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phasewatch_passes_total",
		Help: "Total number of video passes, by outcome",
	}, []string{"outcome"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phasewatch_active_sessions",
		Help: "Number of viewing sessions currently held in memory",
	})

	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phasewatch_uploads_total",
		Help: "Total number of video uploads, by result",
	}, []string{"result"})
)
