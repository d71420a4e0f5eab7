package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kdimtricp/phasewatch/internal/detect"
	"github.com/kdimtricp/phasewatch/internal/metrics"
	"github.com/kdimtricp/phasewatch/internal/models"
	"github.com/kdimtricp/phasewatch/internal/pipeline"
	"github.com/kdimtricp/phasewatch/internal/storage"
	"github.com/kdimtricp/phasewatch/internal/video"
	"github.com/kdimtricp/phasewatch/internal/view"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("session not found")

// Opener starts decoding a stored video.
type Opener interface {
	Open(ctx context.Context, path string) (video.FrameReader, error)
}

// Registry is the subset of the video registry sessions need.
type Registry interface {
	GetVideoByID(ctx context.Context, id string) (*models.Video, error)
	DeleteVideo(ctx context.Context, id string) error
}

type Config struct {
	FrameDelay  time.Duration
	JPEGQuality int
	// IdleTimeout stops a pass once no viewer has been subscribed for this long.
	// Zero keeps passes running to the end.
	IdleTimeout time.Duration
}

type Service struct {
	pipeline *pipeline.Pipeline
	opener   Opener
	videos   Registry
	storage  storage.Storage
	renderer *view.Renderer
	logger   *zap.Logger
	quality  int
	idle     time.Duration

	sessions   map[string]*Session
	sessionsMu sync.RWMutex
}

func NewService(
	engine detect.Engine,
	opener Opener,
	videos Registry,
	storageService storage.Storage,
	renderer *view.Renderer,
	logger *zap.Logger,
	config Config,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = 80
	}
	return &Service{
		pipeline: pipeline.New(engine, config.FrameDelay, logger),
		opener:   opener,
		videos:   videos,
		storage:  storageService,
		renderer: renderer,
		logger:   logger,
		quality:  config.JPEGQuality,
		idle:     config.IdleTimeout,
		sessions: make(map[string]*Session),
	}
}

// Start creates a session for an uploaded video and begins its first pass.
func (s *Service) Start(ctx context.Context, videoID string) (*Session, error) {
	v, err := s.videos.GetVideoByID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("getting video: %w", err)
	}
	path, err := s.storage.Path(v.Filename)
	if err != nil {
		return nil, fmt.Errorf("resolving video path: %w", err)
	}

	sess := newSession(uuid.New().String(), videoID, path)
	sess.idleGrace = s.idle
	sess.onIdle = func() { s.stopAbandoned(sess) }

	s.sessionsMu.Lock()
	s.sessions[sess.ID] = sess
	s.sessionsMu.Unlock()
	metrics.ActiveSessions.Inc()

	s.logger.Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("video_id", videoID),
	)
	s.startPass(sess)
	return sess, nil
}

func (s *Service) Get(id string) (*Session, bool) {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Service) List() []State {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	out := make([]State, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.State())
	}
	return out
}

// Reset stops the running pass, clears the phase history and replays the video
// from its first frame.
func (s *Service) Reset(id string) error {
	sess, ok := s.Get(id)
	if !ok {
		return ErrSessionNotFound
	}

	sess.ctl.Lock()
	defer sess.ctl.Unlock()
	if sess.isClosed() {
		return ErrSessionNotFound
	}

	s.stopPass(sess)
	sess.tracker.Reset()

	snap := sess.tracker.Snapshot()
	frags, err := s.renderer.Render(snap)
	if err != nil {
		return fmt.Errorf("render reset state: %w", err)
	}

	sess.mu.Lock()
	sess.snapshot = snap
	sess.frames = 0
	sess.mu.Unlock()

	sess.publish(Update{Type: UpdateReset, Data: FrameData{
		Banner: string(frags.Banner),
		Phases: string(frags.Phases),
	}})
	s.logger.Info("session reset", zap.String("session_id", id))

	s.startPass(sess)
	return nil
}

// Stop cancels the running pass and keeps the session around with its last state.
func (s *Service) Stop(id string) error {
	sess, ok := s.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	sess.ctl.Lock()
	defer sess.ctl.Unlock()
	s.stopPass(sess)
	return nil
}

func (s *Service) stopAbandoned(sess *Session) {
	sess.ctl.Lock()
	defer sess.ctl.Unlock()
	if !sess.abandoned() {
		return
	}
	s.stopPass(sess)
	s.logger.Info("pass stopped, no viewers left",
		zap.String("session_id", sess.ID),
		zap.Duration("idle_timeout", s.idle),
	)
}

// Delete stops the session and closes all of its subscriptions. When no other session
// is watching the same video, the upload and its registry row are removed too.
func (s *Service) Delete(id string) error {
	s.sessionsMu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.sessionsMu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	lastViewer := true
	for _, other := range s.sessions {
		if other.VideoID == sess.VideoID {
			lastViewer = false
			break
		}
	}
	s.sessionsMu.Unlock()

	sess.ctl.Lock()
	s.stopPass(sess)
	sess.closeSubscribers()
	sess.ctl.Unlock()
	metrics.ActiveSessions.Dec()
	s.logger.Info("session deleted", zap.String("session_id", id))

	if lastViewer {
		s.removeVideo(sess.VideoID)
	}
	return nil
}

func (s *Service) removeVideo(videoID string) {
	ctx := context.Background()
	v, err := s.videos.GetVideoByID(ctx, videoID)
	if err != nil {
		s.logger.Warn("video already gone", zap.String("video_id", videoID), zap.Error(err))
		return
	}
	if err := s.storage.DeleteFile(v.Filename); err != nil {
		s.logger.Warn("failed to delete upload", zap.String("video_id", videoID), zap.Error(err))
	}
	if err := s.videos.DeleteVideo(ctx, videoID); err != nil {
		s.logger.Warn("failed to delete video record", zap.String("video_id", videoID), zap.Error(err))
	}
}

// Close deletes every session.
func (s *Service) Close() {
	s.sessionsMu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.sessionsMu.RUnlock()

	for _, id := range ids {
		_ = s.Delete(id)
	}
}

func (s *Service) startPass(sess *Session) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	sess.mu.Lock()
	sess.cancel = cancel
	sess.done = done
	sess.passes++
	sess.status = StatusLoading
	sess.message = ""
	sess.mu.Unlock()

	go func() {
		defer close(done)
		s.runPass(ctx, sess)
	}()
}

func (s *Service) stopPass(sess *Session) {
	sess.mu.Lock()
	cancel, done := sess.cancel, sess.done
	sess.cancel = nil
	sess.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Service) runPass(ctx context.Context, sess *Session) {
	log := s.logger.With(zap.String("session_id", sess.ID), zap.String("video_id", sess.VideoID))

	reader, err := s.opener.Open(ctx, sess.path)
	if err != nil {
		if ctx.Err() != nil {
			sess.setStatus(StatusStopped, "")
			return
		}
		s.fail(sess, log, fmt.Sprintf("Error opening video file: %v", err), 0)
		return
	}
	defer reader.Close()

	info := reader.Info()
	sess.mu.Lock()
	sess.info = info
	sess.mu.Unlock()
	sess.setStatus(StatusPlaying, "")

	msg := fmt.Sprintf("Video loaded: %d frames @ %d FPS", info.FrameCount, int(math.Round(info.FPS)))
	sess.publish(Update{Type: UpdateInfo, Data: MessageData{Message: msg, Info: &info}})
	log.Info("pass started", zap.Int("frames", info.FrameCount), zap.Float64("fps", info.FPS))

	sink := func(ctx context.Context, out pipeline.FrameOutput) error {
		return s.emitFrame(sess, out)
	}

	processed, err := s.pipeline.Run(ctx, reader, sess.tracker, sink)
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil):
		sess.setStatus(StatusStopped, "")
		metrics.PassesTotal.WithLabelValues("stopped").Inc()
		log.Info("pass stopped", zap.Int("processed", processed))
	case err != nil:
		s.fail(sess, log, fmt.Sprintf("Error processing video: %v", err), processed)
	default:
		done := fmt.Sprintf("Video processing complete! Processed %d frames.", processed)
		sess.setStatus(StatusComplete, done)
		sess.publish(Update{Type: UpdateComplete, Data: MessageData{Message: done, Frames: processed}})
		metrics.PassesTotal.WithLabelValues("complete").Inc()
		log.Info("pass complete", zap.Int("processed", processed))
	}
}

func (s *Service) emitFrame(sess *Session, out pipeline.FrameOutput) error {
	frags, err := s.renderer.Render(out.Snapshot)
	if err != nil {
		return err
	}

	image := out.Result.Annotated
	if len(image) == 0 {
		image, err = video.EncodeJPEG(out.Frame, s.quality)
		if err != nil {
			return err
		}
	}

	sess.mu.Lock()
	sess.frames = out.Snapshot.Frame
	sess.snapshot = out.Snapshot
	sess.mu.Unlock()

	dropped := sess.publish(Update{Type: UpdateFrame, Data: FrameData{
		Frame:  out.Frame.Index,
		Image:  "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
		Banner: string(frags.Banner),
		Phases: string(frags.Phases),
	}})
	if dropped > 0 {
		s.logger.Debug("frame update dropped",
			zap.String("session_id", sess.ID),
			zap.Int("frame", out.Frame.Index),
			zap.Int("subscribers", dropped),
		)
	}
	return nil
}

func (s *Service) fail(sess *Session, log *zap.Logger, msg string, processed int) {
	sess.setStatus(StatusError, msg)
	sess.publish(Update{Type: UpdateError, Data: MessageData{Message: msg, Frames: processed}})
	metrics.PassesTotal.WithLabelValues("error").Inc()
	log.Error("pass failed", zap.String("error", msg), zap.Int("processed", processed))
}
