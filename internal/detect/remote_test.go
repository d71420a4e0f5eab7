package detect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kdimtricp/phasewatch/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame() video.Frame {
	return video.FromImage(1, image.NewRGBA(image.Rect(0, 0, 8, 8)))
}

func newInferenceServer(t *testing.T, predict http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/predict", predict)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteEngine_Detect(t *testing.T) {
	srv := newInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, strings.HasPrefix(req.Image, "data:image/jpeg;base64,"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"detections": [
				{"class_id": 11, "confidence": 0.91, "box": [1, 2, 5, 6]},
				{"class_id": 3, "label": "First Pull", "confidence": 0.40, "box": [0, 0, 8, 8]}
			],
			"annotated_jpeg": "` + base64.StdEncoding.EncodeToString([]byte("annotated")) + `"
		}`))
	})

	engine, err := NewRemoteEngine(context.Background(), RemoteConfig{URL: srv.URL + "/"}, nil)
	require.NoError(t, err)
	defer engine.Close()

	result, err := engine.Detect(context.Background(), testFrame())
	require.NoError(t, err)

	assert.Equal(t, []string{"Second Pull", "First Pull"}, result.Labels())
	assert.Equal(t, image.Rect(1, 2, 5, 6), result.Detections[0].Box)
	assert.Equal(t, []byte("annotated"), result.Annotated)
}

func TestRemoteEngine_NoAnnotatedFrame(t *testing.T) {
	srv := newInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"detections": []}`))
	})

	engine, err := NewRemoteEngine(context.Background(), RemoteConfig{URL: srv.URL}, nil)
	require.NoError(t, err)

	result, err := engine.Detect(context.Background(), testFrame())
	require.NoError(t, err)
	assert.Empty(t, result.Labels())
	assert.NotEmpty(t, result.Annotated, "falls back to the plain frame")
}

func TestRemoteEngine_ServerError(t *testing.T) {
	srv := newInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"message": "CUDA out of memory"}}`))
	})

	engine, err := NewRemoteEngine(context.Background(), RemoteConfig{URL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = engine.Detect(context.Background(), testFrame())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestNewRemoteEngine_HealthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewRemoteEngine(context.Background(), RemoteConfig{URL: srv.URL}, nil)
	assert.ErrorIs(t, err, ErrModelLoad)

	_, err = NewRemoteEngine(context.Background(), RemoteConfig{}, nil)
	assert.ErrorIs(t, err, ErrModelLoad)
}
