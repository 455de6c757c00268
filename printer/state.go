package printer

import (
	"fmt"
	"sync"
)

// Snapshot is a copy of a printer's state. Safe to copy by value.
type Snapshot struct {
	Info
	Temperature Temperature `json:"temperature"`
}

// State mirrors one printer as reported by the daemon. Required fields are
// replaced as a group under mu; telemetry has its own lock.
type State struct {
	uniqueName string
	jobs       JobManager

	mu   sync.RWMutex
	info Info

	telemetry *Telemetry
}

// NewState creates the mirror for a newly discovered printer. jobs is the
// owning client's job side; the State does not manage its lifetime.
func NewState(jobs JobManager, uniqueName string) *State {
	return &State{
		uniqueName: uniqueName,
		jobs:       jobs,
		info:       DefaultInfo(uniqueName),
		telemetry:  NewTelemetry(),
	}
}

// UniqueName is the printer's stable key. It never changes.
func (s *State) UniqueName() string {
	return s.uniqueName
}

// Info returns the current identity and capability fields.
func (s *State) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// Telemetry exposes the live temperature readings.
func (s *State) Telemetry() *Telemetry {
	return s.telemetry
}

// Snapshot returns a copy of the current state. The required fields are
// always from a single document; telemetry is read separately.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Info:        s.Info(),
		Temperature: s.telemetry.Snapshot(),
	}
}

// Update applies a validated document. A document for a different printer is
// rejected and nothing changes.
func (s *State) Update(doc Document) error {
	if doc.Info.UniqueName != s.uniqueName {
		return &MalformedDocumentError{
			Field:  "uniqueName",
			Reason: fmt.Sprintf("is %q, expected %q", doc.Info.UniqueName, s.uniqueName),
			Err:    ErrIdentityMismatch,
		}
	}

	s.mu.Lock()
	s.info = doc.Info
	s.mu.Unlock()

	if doc.Temperature != nil {
		s.telemetry.Merge(*doc.Temperature)
	}
	return nil
}

// UpdateFromJSON validates and applies a raw state document. On any error the
// previous state is kept in full.
func (s *State) UpdateFromJSON(data []byte) error {
	doc, err := ParseDocument(data)
	if err != nil {
		return err
	}
	return s.Update(doc)
}
