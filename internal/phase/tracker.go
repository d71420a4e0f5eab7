package phase

import "sort"

// DetectionEvent is what one frame contributed: the labels the engine returned for it,
// in the engine's own order.
type DetectionEvent struct {
	FrameIndex int
	Labels     []string
}

// Tracker keeps the history of phases seen during one viewing session.
// It is not safe for concurrent use; the session's processing loop owns it.
type Tracker struct {
	order    []string
	everSeen map[string]struct{}
	active   map[string]struct{}
	primary  string
	frames   int
}

func NewTracker() *Tracker {
	return &Tracker{
		everSeen: make(map[string]struct{}),
		active:   make(map[string]struct{}),
	}
}

// RecordFrame folds one frame's labels into the history. Labels seen for the first
// time are appended to the order; the active set is replaced, not accumulated.
func (t *Tracker) RecordFrame(labels []string) {
	active := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		if _, ok := t.everSeen[label]; !ok {
			t.order = append(t.order, label)
			t.everSeen[label] = struct{}{}
		}
		active[label] = struct{}{}
	}
	t.active = active

	t.primary = ""
	if len(labels) > 0 {
		t.primary = labels[0]
	}
	t.frames++
}

// Record is RecordFrame for a DetectionEvent.
func (t *Tracker) Record(ev DetectionEvent) {
	t.RecordFrame(ev.Labels)
}

func (t *Tracker) Reset() {
	t.order = nil
	t.everSeen = make(map[string]struct{})
	t.active = make(map[string]struct{})
	t.primary = ""
	t.frames = 0
}

// CurrentPrimaryLabel returns the first label the engine reported for the latest frame.
// Engine order is not confidence order.
func (t *Tracker) CurrentPrimaryLabel() (string, bool) {
	return t.primary, t.primary != ""
}

func (t *Tracker) Order() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func (t *Tracker) Seen(label string) bool {
	_, ok := t.everSeen[label]
	return ok
}

func (t *Tracker) IsActive(label string) bool {
	_, ok := t.active[label]
	return ok
}

// Active returns the labels of the latest frame, sorted.
func (t *Tracker) Active() []string {
	out := make([]string, 0, len(t.active))
	for label := range t.active {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) Len() int {
	return len(t.order)
}

// Frames reports how many frames have been recorded since the last reset.
func (t *Tracker) Frames() int {
	return t.frames
}
