// Package app assembles the HTTP server from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kdimtricp/phasewatch/internal/api"
	"github.com/kdimtricp/phasewatch/internal/config"
	"github.com/kdimtricp/phasewatch/internal/database"
	"github.com/kdimtricp/phasewatch/internal/detect"
	"github.com/kdimtricp/phasewatch/internal/session"
	"github.com/kdimtricp/phasewatch/internal/storage"
	"github.com/kdimtricp/phasewatch/internal/tracing"
	"github.com/kdimtricp/phasewatch/internal/video"
	"github.com/kdimtricp/phasewatch/internal/view"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	tracer   *sdktrace.TracerProvider
	db       *database.DB
	store    *storage.LocalStorage
	engine   detect.Engine
	sessions *session.Service
	http     *http.Server
}

// NewServer wires every dependency. Failing to load the model or to find ffmpeg aborts
// startup.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	tp, err := tracing.InitTracer(ctx, cfg.OTelEndpoint)
	if err != nil {
		logger.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	}
	s.tracer = tp

	source, err := video.NewSource(cfg.MaxVideoWidth, logger.Named("video"))
	if err != nil {
		s.Close()
		return nil, err
	}

	s.store, err = storage.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.db, err = database.NewDB(cfg.DBPath)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	videos := database.NewVideoRepository(s.db)

	s.engine, err = NewEngine(ctx, cfg, logger.Named("engine"))
	if err != nil {
		s.Close()
		return nil, err
	}

	renderer, err := view.NewRenderer()
	if err != nil {
		s.Close()
		return nil, err
	}

	s.sessions = session.NewService(s.engine, source, videos, s.store, renderer, logger.Named("session"),
		session.Config{FrameDelay: cfg.FrameDelay, JPEGQuality: cfg.JPEGQuality, IdleTimeout: cfg.IdleTimeout})

	handlers := &api.App{
		Sessions:      s.sessions,
		Videos:        videos,
		Storage:       s.store,
		Prober:        source,
		Renderer:      renderer,
		Logger:        logger.Named("api"),
		MaxUploadSize: cfg.MaxUploadSize,
		MaxWidth:      cfg.MaxVideoWidth,
		Metrics:       cfg.MetricsEnabled,
	}
	if err := handlers.Init(); err != nil {
		s.Close()
		return nil, err
	}

	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			zap.String("addr", s.http.Addr),
			zap.String("engine", s.cfg.Engine),
			zap.String("upload_dir", s.cfg.UploadDir),
			zap.Int64("max_upload_size", s.cfg.MaxUploadSize),
		)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.sessions.Close()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close releases everything NewServer acquired and removes stored uploads.
func (s *Server) Close() {
	if s.sessions != nil {
		s.sessions.Close()
	}
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			s.logger.Warn("failed to close engine", zap.Error(err))
		}
	}
	if s.db != nil {
		s.db.Close()
	}
	if s.store != nil {
		if err := s.store.Purge(); err != nil {
			s.logger.Warn("failed to purge uploads", zap.Error(err))
		}
	}
	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.tracer.Shutdown(ctx)
	}
}
