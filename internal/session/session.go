package session

import (
	"sync"
	"time"

	"github.com/kdimtricp/phasewatch/internal/phase"
	"github.com/kdimtricp/phasewatch/internal/video"
)

type Status string

const (
	StatusLoading  Status = "loading"
	StatusPlaying  Status = "playing"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
	StatusStopped  Status = "stopped"
)

const (
	UpdateInfo     = "info"
	UpdateFrame    = "frame"
	UpdateComplete = "complete"
	UpdateError    = "error"
	UpdateReset    = "reset"
)

// Update is one event pushed to subscribers. Type doubles as the SSE event name.
type Update struct {
	Type string
	Data interface{}
}

type MessageData struct {
	Message string      `json:"message"`
	Frames  int         `json:"frames"`
	Info    *video.Info `json:"info,omitempty"`
}

type FrameData struct {
	Frame  int    `json:"frame"`
	Image  string `json:"image,omitempty"`
	Banner string `json:"banner"`
	Phases string `json:"phases"`
}

// State is a point-in-time copy of a session for polling clients.
type State struct {
	ID        string         `json:"id"`
	VideoID   string         `json:"video_id"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Info      video.Info     `json:"info"`
	Frames    int            `json:"frames"`
	Passes    int            `json:"passes"`
	Snapshot  phase.Snapshot `json:"snapshot"`
	StartedAt time.Time      `json:"started_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Session is one viewing of an uploaded video. The tracker belongs to whichever pass
// is running; Reset touches it only after that pass has exited.
type Session struct {
	ID        string
	VideoID   string
	StartedAt time.Time

	path    string
	tracker *phase.Tracker

	// ctl serializes Reset, Stop and Delete.
	ctl sync.Mutex

	mu        sync.Mutex
	status    Status
	message   string
	info      video.Info
	frames    int
	passes    int
	snapshot  phase.Snapshot
	updatedAt time.Time
	cancel    func()
	done      chan struct{}

	lastInfo     *Update
	lastFrame    *Update
	lastTerminal *Update

	subs    map[int]chan Update
	nextSub int
	closed  bool

	// onIdle runs once idleGrace has passed since the last subscriber left.
	idleGrace time.Duration
	onIdle    func()
	idleTimer *time.Timer
}

func newSession(id, videoID, path string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		VideoID:   videoID,
		StartedAt: now,
		path:      path,
		tracker:   phase.NewTracker(),
		status:    StatusLoading,
		snapshot:  phase.NewTracker().Snapshot(),
		updatedAt: now,
		subs:      make(map[int]chan Update),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		ID:        s.ID,
		VideoID:   s.VideoID,
		Status:    s.status,
		Message:   s.message,
		Info:      s.info,
		Frames:    s.frames,
		Passes:    s.passes,
		Snapshot:  s.snapshot,
		StartedAt: s.StartedAt,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Subscribe returns a channel of updates, primed with the latest info, frame and
// terminal updates so a late subscriber can draw the current state at once. The
// channel is closed when the session is deleted or the returned func is called.
func (s *Session) Subscribe() (<-chan Update, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Update, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	for _, u := range []*Update{s.lastInfo, s.lastFrame, s.lastTerminal} {
		if u != nil {
			ch <- *u
		}
	}
	s.stopIdleTimer()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
			if len(s.subs) == 0 && !s.closed && s.onIdle != nil && s.idleGrace > 0 {
				s.stopIdleTimer()
				s.idleTimer = time.AfterFunc(s.idleGrace, s.onIdle)
			}
		})
	}
}

const subscriberBuffer = 64

// publish fans u out to subscribers without blocking. A frame update that does not fit
// in a subscriber's buffer is dropped for that subscriber. Any other update makes room
// by evicting the oldest queued frame.
func (s *Session) publish(u Update) (dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch u.Type {
	case UpdateInfo:
		s.lastInfo = &u
	case UpdateFrame:
		s.lastFrame = &u
	case UpdateComplete, UpdateError:
		s.lastTerminal = &u
	case UpdateReset:
		s.lastFrame = nil
		s.lastTerminal = nil
	}
	s.updatedAt = time.Now()

	for _, ch := range s.subs {
		select {
		case ch <- u:
			continue
		default:
		}
		if u.Type == UpdateFrame {
			dropped++
			continue
		}
		dropped += requeue(ch, u)
	}
	return dropped
}

// requeue drains ch, removes the oldest frame (or the oldest update if none is
// queued) and sends the rest back followed by u. Callers hold the session lock, so
// nothing else sends on ch meanwhile.
func requeue(ch chan Update, u Update) (dropped int) {
	queued := make([]Update, 0, cap(ch))
drain:
	for {
		select {
		case q := <-ch:
			queued = append(queued, q)
		default:
			break drain
		}
	}

	if len(queued) == cap(ch) {
		evict := 0
		for i, q := range queued {
			if q.Type == UpdateFrame {
				evict = i
				break
			}
		}
		queued = append(queued[:evict], queued[evict+1:]...)
		dropped = 1
	}

	for _, q := range append(queued, u) {
		ch <- q
	}
	return dropped
}

func (s *Session) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopIdleTimer()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// stopIdleTimer must be called with mu held.
func (s *Session) stopIdleTimer() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

// abandoned reports whether nobody is watching the session anymore.
func (s *Session) abandoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && len(s.subs) == 0
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) setStatus(status Status, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.message = message
	s.updatedAt = time.Now()
}
