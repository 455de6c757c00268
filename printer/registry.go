package printer

import (
	"sort"
	"sync"
)

// StatusCallback is called after a printer's state has been updated.
type StatusCallback func(state *State)

// Registry tracks every printer the daemon has reported, keyed by unique name.
// It owns the States; job requests refer back to a printer only by name.
type Registry struct {
	mu       sync.RWMutex
	printers map[string]*State
	jobs     JobManager
	onChange StatusCallback
}

// NewRegistry creates an empty registry. New States are bound to jobs.
// onChange may be nil.
func NewRegistry(jobs JobManager, onChange StatusCallback) *Registry {
	return &Registry{
		printers: make(map[string]*State),
		jobs:     jobs,
		onChange: onChange,
	}
}

// Add returns the State for uniqueName, creating it with default values if
// the printer is new.
func (r *Registry) Add(uniqueName string) *State {
	s, _ := r.getOrCreate(uniqueName)
	return s
}

func (r *Registry) getOrCreate(uniqueName string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.printers[uniqueName]; ok {
		return s, false
	}
	s := NewState(r.jobs, uniqueName)
	r.printers[uniqueName] = s
	return s, true
}

// Apply routes a validated document to its printer, creating the printer on
// first sight.
func (r *Registry) Apply(doc Document) (*State, error) {
	s, _ := r.getOrCreate(doc.Info.UniqueName)
	if err := s.Update(doc); err != nil {
		return nil, err
	}
	if r.onChange != nil {
		r.onChange(s)
	}
	return s, nil
}

// ApplyJSON validates raw JSON and applies it. A document that fails
// validation never creates a printer.
func (r *Registry) ApplyJSON(data []byte) (*State, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return r.Apply(doc)
}

// Get looks up a printer by unique name.
func (r *Registry) Get(uniqueName string) (*State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.printers[uniqueName]
	if !ok {
		return nil, ErrPrinterNotFound
	}
	return s, nil
}

// Remove drops a printer the daemon no longer reports.
func (r *Registry) Remove(uniqueName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.printers[uniqueName]; !ok {
		return ErrPrinterNotFound
	}
	delete(r.printers, uniqueName)
	return nil
}

// List returns all printers ordered by unique name.
func (r *Registry) List() []*State {
	r.mu.RLock()
	out := make([]*State, 0, len(r.printers))
	for _, s := range r.printers {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].uniqueName < out[j].uniqueName
	})
	return out
}

// Snapshots returns a copy of every printer's state, ordered by unique name.
func (r *Registry) Snapshots() []Snapshot {
	states := r.List()
	out := make([]Snapshot, len(states))
	for i, s := range states {
		out[i] = s.Snapshot()
	}
	return out
}

// Len returns the number of known printers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.printers)
}
