package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kdimtricp/phasewatch/internal/database"
	"github.com/kdimtricp/phasewatch/internal/detect/detecttest"
	"github.com/kdimtricp/phasewatch/internal/models"
	"github.com/kdimtricp/phasewatch/internal/session"
	"github.com/kdimtricp/phasewatch/internal/storage"
	"github.com/kdimtricp/phasewatch/internal/video"
	"github.com/kdimtricp/phasewatch/internal/video/videotest"
	"github.com/kdimtricp/phasewatch/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	Server    *httptest.Server
	DB        *database.DB
	VideoRepo *database.VideoRepository
	UploadDir string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	tempDir := t.TempDir()
	uploadDir := filepath.Join(tempDir, "uploads")
	localStorage, err := storage.NewLocalStorage(uploadDir)
	require.NoError(t, err)

	db, err := database.NewDB(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	videoRepo := database.NewVideoRepository(db)

	renderer, err := view.NewRenderer()
	require.NoError(t, err)

	opener := &videotest.Opener{New: func() *videotest.Reader { return videotest.NewReader(5) }}
	engine := &detecttest.Engine{Script: map[int][]string{
		1: {"Setup"},
		3: {"First Pull"},
		4: {"Second Pull", "First Pull"},
	}}
	sessions := session.NewService(engine, opener, videoRepo, localStorage, renderer, nil,
		session.Config{FrameDelay: time.Millisecond})

	app := &App{
		Sessions:      sessions,
		Videos:        videoRepo,
		Storage:       localStorage,
		Prober:        &mockProber{info: &video.Info{Width: 640, Height: 360, FPS: 25, FrameCount: 5}},
		Renderer:      renderer,
		MaxUploadSize: 1 << 20,
		MaxWidth:      600,
	}
	require.NoError(t, app.Init())

	srv := httptest.NewServer(NewRouter(app))
	t.Cleanup(func() {
		sessions.Close()
		srv.Close()
	})

	return &testServer{Server: srv, DB: db, VideoRepo: videoRepo, UploadDir: uploadDir}
}

func noRedirectClient() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func getState(t *testing.T, ts *testServer, location string) session.State {
	t.Helper()
	resp, err := http.Get(ts.Server.URL + location + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state session.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	return state
}

func TestIntegration_UploadWatchDelete(t *testing.T) {
	ts := setupTestServer(t)
	client := noRedirectClient()

	body, contentType := multipartBody(t, "snatch_session.mkv", []byte("fake mkv content"))
	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+"/upload", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location := resp.Header.Get("Location")

	videos, err := ts.VideoRepo.ListVideos(context.Background())
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "snatch_session.mkv", videos[0].OriginalName)
	assert.Equal(t, 5, videos[0].FrameCount)

	var state session.State
	require.Eventually(t, func() bool {
		state = getState(t, ts, location)
		return state.Status == session.StatusComplete
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 5, state.Frames)
	labels := make([]string, len(state.Snapshot.Phases))
	for i, p := range state.Snapshot.Phases {
		labels[i] = p.Label
	}
	assert.Equal(t, []string{"Setup", "First Pull", "Second Pull"}, labels)
	assert.False(t, state.Snapshot.HasPrimary, "last frame had no detections")

	delReq, err := http.NewRequest(http.MethodDelete, ts.Server.URL+location, nil)
	require.NoError(t, err)
	resp, err = client.Do(delReq)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = ts.VideoRepo.GetVideoByID(context.Background(), videos[0].ID)
	assert.ErrorIs(t, err, database.ErrVideoNotFound)
	assert.Empty(t, uploadedFiles(t, ts.UploadDir))
}

func TestIntegration_ListVideos(t *testing.T) {
	ts := setupTestServer(t)

	for _, name := range []string{"a.mp4", "b.avi"} {
		v := models.NewVideo(name, name, "video/mp4", 10)
		require.NoError(t, ts.VideoRepo.InsertVideo(context.Background(), v))
		time.Sleep(2 * time.Millisecond)
	}

	resp, err := http.Get(ts.Server.URL + "/videos")
	require.NoError(t, err)
	defer resp.Body.Close()

	var videos []models.Video
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&videos))
	require.Len(t, videos, 2)
	assert.Equal(t, "b.avi", videos[0].OriginalName)
	assert.Equal(t, "a.mp4", videos[1].OriginalName)

	resp, err = http.Get(ts.Server.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "b.avi")
}
