package app

import (
	"context"
	"fmt"

	"github.com/kdimtricp/phasewatch/internal/config"
	"github.com/kdimtricp/phasewatch/internal/detect"
	"github.com/kdimtricp/phasewatch/internal/detect/opencv"
	"go.uber.org/zap"
)

// NewEngine loads the model named by the config. Any failure here is fatal for the caller.
func NewEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (detect.Engine, error) {
	labels := detect.DefaultLabels()
	if cfg.LabelsPath != "" {
		loaded, err := detect.LoadLabels(cfg.LabelsPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", detect.ErrModelLoad, err)
		}
		labels = loaded
	}

	switch cfg.Engine {
	case config.EngineRemote:
		return detect.NewRemoteEngine(ctx, detect.RemoteConfig{
			URL:         cfg.RemoteEngineURL,
			Labels:      labels,
			JPEGQuality: cfg.JPEGQuality,
		}, logger)
	case config.EngineOpenCV:
		return opencv.New(opencv.Config{
			ModelPath:     cfg.ModelPath,
			Labels:        labels,
			ConfThreshold: float32(cfg.ConfThreshold),
			NMSThreshold:  float32(cfg.NMSThreshold),
			InputSize:     cfg.InputSize,
			Keypoints:     cfg.ModelKeypoints,
			JPEGQuality:   cfg.JPEGQuality,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}
