package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kdimtricp/phasewatch/internal/metrics"
	"github.com/kdimtricp/phasewatch/web"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", app.UploadPageHandler)
	r.Get("/ping", PingHandler)
	r.Post("/upload", app.UploadHandler)

	r.Get("/videos", app.ListVideosHandler)
	r.Post("/videos/{id}/watch", app.WatchVideoHandler)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", app.ListSessionsHandler)
		r.Get("/{id}", app.WatchPageHandler)
		r.Delete("/{id}", app.DeleteSessionHandler)
		r.Get("/{id}/stream", app.StreamHandler)
		r.Get("/{id}/state", app.StateHandler)
		r.Post("/{id}/reset", app.ResetHandler)
		r.Post("/{id}/stop", app.StopHandler)
	})

	if app.Metrics {
		r.Handle("/metrics", metrics.Handler())
	}

	fileServer := http.FileServer(http.FS(web.Static()))
	r.Handle("/static/*", http.StripPrefix("/static", fileServer))

	return r
}
