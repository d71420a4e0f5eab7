package phase

type PhaseEntry struct {
	Position int    `json:"position"`
	Label    string `json:"label"`
	Active   bool   `json:"active"`
}

// Snapshot is the view model produced after each frame. It shares no memory with the Tracker.
type Snapshot struct {
	Frame      int          `json:"frame"`
	Phases     []PhaseEntry `json:"phases"`
	Primary    string       `json:"primary,omitempty"`
	HasPrimary bool         `json:"has_primary"`
}

func (t *Tracker) Snapshot() Snapshot {
	phases := make([]PhaseEntry, len(t.order))
	for i, label := range t.order {
		phases[i] = PhaseEntry{
			Position: i + 1,
			Label:    label,
			Active:   t.IsActive(label),
		}
	}
	primary, ok := t.CurrentPrimaryLabel()
	return Snapshot{
		Frame:      t.frames,
		Phases:     phases,
		Primary:    primary,
		HasPrimary: ok,
	}
}

// ActiveCount is the number of highlighted entries.
func (s Snapshot) ActiveCount() int {
	n := 0
	for _, p := range s.Phases {
		if p.Active {
			n++
		}
	}
	return n
}
