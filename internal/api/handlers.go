package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kdimtricp/phasewatch/internal/database"
	"github.com/kdimtricp/phasewatch/internal/metrics"
	"github.com/kdimtricp/phasewatch/internal/models"
	"github.com/kdimtricp/phasewatch/internal/session"
	"github.com/kdimtricp/phasewatch/internal/storage"
	"github.com/kdimtricp/phasewatch/internal/video"
	"github.com/kdimtricp/phasewatch/internal/view"
	"github.com/kdimtricp/phasewatch/web"
	"go.uber.org/zap"
)

const appTitle = "Clean & Jerk Detection Overlay"

type VideoStore interface {
	InsertVideo(ctx context.Context, v *models.Video) error
	GetVideoByID(ctx context.Context, id string) (*models.Video, error)
	ListVideos(ctx context.Context) ([]models.Video, error)
	DeleteVideo(ctx context.Context, id string) error
}

type Prober interface {
	Probe(ctx context.Context, path string) (*video.Info, error)
}

type App struct {
	Sessions      *session.Service
	Videos        VideoStore
	Storage       storage.Storage
	Prober        Prober
	Renderer      *view.Renderer
	Logger        *zap.Logger
	MaxUploadSize int64
	MaxWidth      int
	Metrics       bool

	pages map[string]*template.Template
}

// Init parses the page templates. It must be called before the router serves requests.
func (app *App) Init() error {
	if app.Logger == nil {
		app.Logger = zap.NewNop()
	}
	app.pages = make(map[string]*template.Template)
	for _, name := range []string{"upload", "watch"} {
		tmpl, err := template.ParseFS(web.Templates(), "base.html", "partials/*.html", name+".html")
		if err != nil {
			return fmt.Errorf("parse %s page: %w", name, err)
		}
		app.pages[name] = tmpl
	}
	return nil
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type uploadPage struct {
	Title  string
	Accept string
	Error  string
	Videos []models.Video
}

func (app *App) UploadPageHandler(w http.ResponseWriter, r *http.Request) {
	app.renderUpload(w, r, http.StatusOK, "")
}

func (app *App) renderUpload(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	videos, err := app.Videos.ListVideos(r.Context())
	if err != nil {
		app.Logger.Error("failed to list videos", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := uploadPage{
		Title:  appTitle,
		Accept: strings.Join(video.AllowedExtensions, ","),
		Error:  errMsg,
		Videos: videos,
	}
	if err := app.pages["upload"].ExecuteTemplate(w, "base", data); err != nil {
		app.Logger.Error("failed to render upload page", zap.Error(err))
	}
}

// UploadHandler stores the file, reads its stream info and starts a viewing session.
func (app *App) UploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || r.ContentLength > app.MaxUploadSize {
			app.renderUpload(w, r, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		app.Logger.Warn("bad multipart upload", zap.Error(err))
		app.renderUpload(w, r, http.StatusBadRequest, "Invalid upload")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		app.renderUpload(w, r, http.StatusBadRequest, "Failed to get file")
		return
	}
	defer file.Close()

	if !video.AllowedExtension(header.Filename) {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		app.renderUpload(w, r, http.StatusBadRequest,
			"Unsupported file type. Allowed: "+strings.Join(video.AllowedExtensions, ", "))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	filename, err := app.Storage.SaveFile(file, storage.FileInfo{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
	})
	if err != nil {
		app.Logger.Error("failed to save upload", zap.String("filename", header.Filename), zap.Error(err))
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		app.renderUpload(w, r, http.StatusInternalServerError, "Failed to save file")
		return
	}

	v, err := app.register(r.Context(), filename, header.Filename, contentType, header.Size)
	if err != nil {
		app.Storage.DeleteFile(filename)
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		app.Logger.Warn("upload rejected", zap.String("filename", header.Filename), zap.Error(err))
		app.renderUpload(w, r, http.StatusUnprocessableEntity, fmt.Sprintf("Error opening video file: %v", err))
		return
	}
	metrics.UploadsTotal.WithLabelValues("accepted").Inc()

	app.startAndRedirect(w, r, v.ID)
}

func (app *App) register(ctx context.Context, filename, originalName, contentType string, size int64) (*models.Video, error) {
	path, err := app.Storage.Path(filename)
	if err != nil {
		return nil, err
	}
	info, err := app.Prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	v := models.NewVideo(originalName, filename, contentType, size)
	v.Width = info.Width
	v.Height = info.Height
	v.FPS = info.FPS
	v.FrameCount = info.FrameCount

	if err := app.Videos.InsertVideo(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to save video information: %w", err)
	}
	return v, nil
}

func (app *App) WatchVideoHandler(w http.ResponseWriter, r *http.Request) {
	app.startAndRedirect(w, r, chi.URLParam(r, "id"))
}

func (app *App) startAndRedirect(w http.ResponseWriter, r *http.Request, videoID string) {
	sess, err := app.Sessions.Start(r.Context(), videoID)
	if errors.Is(err, database.ErrVideoNotFound) {
		http.Error(w, "Video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		app.Logger.Error("failed to start session", zap.String("video_id", videoID), zap.Error(err))
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}

	target := "/sessions/" + sess.ID
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

type watchPage struct {
	Title     string
	SessionID string
	Status    string
	Banner    template.HTML
	Phases    template.HTML
	MaxWidth  int
}

func (app *App) WatchPageHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	state := sess.State()
	frags, err := app.Renderer.Render(state.Snapshot)
	if err != nil {
		app.Logger.Error("failed to render phases", zap.Error(err))
		http.Error(w, "Error rendering template", http.StatusInternalServerError)
		return
	}

	status := state.Message
	if status == "" {
		switch state.Status {
		case session.StatusStopped:
			status = "Detection stopped"
		default:
			status = "Loading video..."
		}
	}

	data := watchPage{
		Title:     appTitle,
		SessionID: sess.ID,
		Status:    status,
		Banner:    frags.Banner,
		Phases:    frags.Phases,
		MaxWidth:  app.MaxWidth,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := app.pages["watch"].ExecuteTemplate(w, "base", data); err != nil {
		app.Logger.Error("failed to render watch page", zap.Error(err))
	}
}

func (app *App) StateHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (app *App) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Sessions.List())
}

func (app *App) ResetHandler(w http.ResponseWriter, r *http.Request) {
	app.sessionAction(w, chi.URLParam(r, "id"), app.Sessions.Reset)
}

func (app *App) StopHandler(w http.ResponseWriter, r *http.Request) {
	app.sessionAction(w, chi.URLParam(r, "id"), app.Sessions.Stop)
}

func (app *App) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	app.sessionAction(w, chi.URLParam(r, "id"), app.Sessions.Delete)
}

func (app *App) sessionAction(w http.ResponseWriter, id string, action func(string) error) {
	err := action(id)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		app.Logger.Error("session action failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (app *App) ListVideosHandler(w http.ResponseWriter, r *http.Request) {
	videos, err := app.Videos.ListVideos(r.Context())
	if err != nil {
		app.Logger.Error("failed to list videos", zap.Error(err))
		writeError(w, http.StatusInternalServerError, errors.New("error loading videos"))
		return
	}
	if videos == nil {
		videos = []models.Video{}
	}
	writeJSON(w, http.StatusOK, videos)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
