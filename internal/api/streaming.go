package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// StreamHandler pushes session updates as server-sent events until the client goes
// away or the session is deleted.
func (app *App) StreamHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := app.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	updates, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	clientGone := r.Context().Done()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}

			data, err := json.Marshal(update.Data)
			if err != nil {
				app.Logger.Error("failed to marshal update", zap.String("type", update.Type), zap.Error(err))
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Type, data)
			flusher.Flush()

		case <-clientGone:
			return
		}
	}
}
