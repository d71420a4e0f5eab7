package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_FirstSeenOrder(t *testing.T) {
	tests := []struct {
		name   string
		frames [][]string
		want   []string
	}{
		{
			name:   "no frames",
			frames: nil,
			want:   []string{},
		},
		{
			name:   "repeats across frames",
			frames: [][]string{{"A"}, {"A", "B"}, {}, {"B"}, {"C", "A"}},
			want:   []string{"A", "B", "C"},
		},
		{
			name:   "engine order within a frame is kept",
			frames: [][]string{{"Second Pull", "First Pull"}, {"First Pull"}},
			want:   []string{"Second Pull", "First Pull"},
		},
		{
			name:   "duplicates in one frame",
			frames: [][]string{{"X", "X"}},
			want:   []string{"X"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			for _, f := range tt.frames {
				tr.RecordFrame(f)
			}
			assert.Equal(t, tt.want, tr.Order())

			for _, label := range tr.Order() {
				assert.True(t, tr.Seen(label))
			}
			assert.Equal(t, len(tt.want), tr.Len())
		})
	}
}

func TestTracker_Scenario(t *testing.T) {
	tr := NewTracker()

	tr.RecordFrame([]string{"A"})
	tr.RecordFrame([]string{"A", "B"})
	tr.RecordFrame([]string{})
	assert.Empty(t, tr.Active())
	_, ok := tr.CurrentPrimaryLabel()
	assert.False(t, ok)

	tr.RecordFrame([]string{"B"})
	assert.Equal(t, []string{"A", "B"}, tr.Order())
	assert.Equal(t, []string{"B"}, tr.Active())
	assert.True(t, tr.IsActive("B"))
	assert.False(t, tr.IsActive("A"))

	primary, ok := tr.CurrentPrimaryLabel()
	require.True(t, ok)
	assert.Equal(t, "B", primary)
	assert.Equal(t, 4, tr.Frames())
}

func TestTracker_EmptyFrameOnEmptyTracker(t *testing.T) {
	tr := NewTracker()
	tr.RecordFrame(nil)

	assert.Empty(t, tr.Order())
	_, ok := tr.CurrentPrimaryLabel()
	assert.False(t, ok)
}

func TestTracker_ActiveIsIndependentOfHistory(t *testing.T) {
	tr := NewTracker()
	tr.RecordFrame([]string{"A", "B", "C"})
	tr.RecordFrame([]string{"C", "C", "D"})

	assert.Equal(t, []string{"C", "D"}, tr.Active())
	for _, label := range tr.Active() {
		assert.True(t, tr.Seen(label), "active label %q must have been seen", label)
	}

	primary, _ := tr.CurrentPrimaryLabel()
	assert.Equal(t, "C", primary)
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker()
	tr.Record(DetectionEvent{FrameIndex: 1, Labels: []string{"A", "B"}})

	tr.Reset()
	assert.Empty(t, tr.Order())
	assert.Empty(t, tr.Active())
	assert.False(t, tr.Seen("A"))
	assert.Zero(t, tr.Frames())
	_, ok := tr.CurrentPrimaryLabel()
	assert.False(t, ok)

	first := tr.Snapshot()
	tr.Reset()
	assert.Equal(t, first, tr.Snapshot())

	tr.RecordFrame([]string{"B"})
	assert.Equal(t, []string{"B"}, tr.Order())
}

func TestTracker_OrderIsACopy(t *testing.T) {
	tr := NewTracker()
	tr.RecordFrame([]string{"A"})

	order := tr.Order()
	order[0] = "mutated"
	assert.Equal(t, []string{"A"}, tr.Order())
}

func TestTracker_Snapshot(t *testing.T) {
	tr := NewTracker()
	tr.RecordFrame([]string{"First Pull"})
	tr.RecordFrame([]string{"Second Pull", "Turn Over"})

	snap := tr.Snapshot()
	require.Len(t, snap.Phases, 3)
	assert.Equal(t, PhaseEntry{Position: 1, Label: "First Pull", Active: false}, snap.Phases[0])
	assert.Equal(t, PhaseEntry{Position: 2, Label: "Second Pull", Active: true}, snap.Phases[1])
	assert.Equal(t, PhaseEntry{Position: 3, Label: "Turn Over", Active: true}, snap.Phases[2])
	assert.Equal(t, "Second Pull", snap.Primary)
	assert.True(t, snap.HasPrimary)
	assert.Equal(t, 2, snap.Frame)
	assert.Equal(t, 2, snap.ActiveCount())

	tr.RecordFrame(nil)
	assert.True(t, snap.Phases[1].Active, "snapshot must not change after later frames")
}
