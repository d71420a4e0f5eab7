package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/kdimtricp/phasewatch/internal/video"
	"go.uber.org/zap"
)

// RemoteEngine sends frames to an HTTP inference server that hosts the model.
type RemoteEngine struct {
	baseURL     string
	labels      LabelSet
	jpegQuality int
	httpClient  *http.Client
	logger      *zap.Logger
}

type RemoteConfig struct {
	URL         string
	Labels      LabelSet
	JPEGQuality int
	HTTPClient  *http.Client
}

type remoteRequest struct {
	Image string `json:"image"`
}

type remoteDetection struct {
	ClassID    int        `json:"class_id"`
	Label      string     `json:"label"`
	Confidence float32    `json:"confidence"`
	Box        [4]int     `json:"box"`
	Keypoints  []Keypoint `json:"keypoints,omitempty"`
}

type remoteResponse struct {
	Detections    []remoteDetection `json:"detections"`
	AnnotatedJPEG string            `json:"annotated_jpeg,omitempty"`
	Error         *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewRemoteEngine checks that the server answers its health endpoint before returning,
// so a missing model surfaces at startup.
func NewRemoteEngine(ctx context.Context, cfg RemoteConfig, logger *zap.Logger) (*RemoteEngine, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: remote engine URL is empty", ErrModelLoad)
	}
	if cfg.Labels == nil {
		cfg.Labels = DefaultLabels()
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 90
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &RemoteEngine{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		labels:      cfg.Labels,
		jpegQuality: cfg.JPEGQuality,
		httpClient:  cfg.HTTPClient,
		logger:      logger,
	}
	if err := e.health(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	logger.Info("remote inference engine ready", zap.String("url", e.baseURL))
	return e, nil
}

func (e *RemoteEngine) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach inference server: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference server health check returned %d", resp.StatusCode)
	}
	return nil
}

func (e *RemoteEngine) Detect(ctx context.Context, frame video.Frame) (*Result, error) {
	frameJPEG, err := video.EncodeJPEG(frame, e.jpegQuality)
	if err != nil {
		return nil, err
	}

	jsonData, err := json.Marshal(remoteRequest{
		Image: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frameJPEG),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/predict", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out remoteResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response (status %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("inference server error: %s", out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference server returned %d", resp.StatusCode)
	}

	result := &Result{
		Detections: make([]Detection, 0, len(out.Detections)),
		Annotated:  frameJPEG,
	}
	for _, d := range out.Detections {
		label := d.Label
		if label == "" {
			label = e.labels.Name(d.ClassID)
		}
		result.Detections = append(result.Detections, Detection{
			ClassID:    d.ClassID,
			Label:      label,
			Confidence: d.Confidence,
			Box:        image.Rect(d.Box[0], d.Box[1], d.Box[2], d.Box[3]),
			Keypoints:  d.Keypoints,
		})
	}

	if out.AnnotatedJPEG != "" {
		annotated, err := base64.StdEncoding.DecodeString(out.AnnotatedJPEG)
		if err != nil {
			e.logger.Warn("discarding undecodable annotated frame", zap.Int("frame", frame.Index), zap.Error(err))
		} else {
			result.Annotated = annotated
		}
	}

	return result, nil
}

func (e *RemoteEngine) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}
