package job

import (
	"sort"
	"sync"
)

// Action is the kind of change reported to a ChangedCallback.
type Action string

const (
	ActionAdded   Action = "added"
	ActionChanged Action = "changed"
	ActionRemoved Action = "removed"
)

// ChangedCallback is called after the tracker adds, updates or removes a job.
type ChangedCallback func(action Action, job *Job)

// Totals counts tracked jobs by outcome.
type Totals struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Running  int `json:"running"`
	Ended    int `json:"ended"`
	Failed   int `json:"failed"`
	Canceled int `json:"canceled"`
}

// Tracker keeps the jobs this client knows about, in memory only.
type Tracker struct {
	mu       sync.RWMutex
	jobs     map[int]*Job
	callback ChangedCallback
}

// NewTracker creates an empty tracker. callback may be nil.
func NewTracker(callback ChangedCallback) *Tracker {
	return &Tracker{
		jobs:     make(map[int]*Job),
		callback: callback,
	}
}

// Apply records a job document, creating the Job on first sight. The same
// *Job is returned for every document with that id.
func (t *Tracker) Apply(d Data) (*Job, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	j, exists := t.jobs[d.ID]
	if !exists {
		j = newJob(d)
		t.jobs[d.ID] = j
	}
	t.mu.Unlock()

	action := ActionAdded
	if exists {
		if err := j.update(d); err != nil {
			return nil, err
		}
		action = ActionChanged
	}

	if t.callback != nil {
		t.callback(action, j)
	}
	return j, nil
}

// ApplyJSON parses a raw job document and applies it.
func (t *Tracker) ApplyJSON(raw []byte) (*Job, error) {
	d, err := ParseDocument(raw)
	if err != nil {
		return nil, err
	}
	return t.Apply(d)
}

// Get retrieves a job by id.
func (t *Tracker) Get(id int) (*Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// List returns jobs ordered by id. A non-empty printer restricts the result
// to that printer's jobs.
func (t *Tracker) List(printer string) []*Job {
	t.mu.RLock()
	out := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		if printer != "" && j.Snapshot().Printer != printer {
			continue
		}
		out = append(out, j)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		return out[a].ID() < out[b].ID()
	})
	return out
}

// Remove stops tracking a job. It reports whether the job was known.
func (t *Tracker) Remove(id int) bool {
	t.mu.Lock()
	j, ok := t.jobs[id]
	delete(t.jobs, id)
	t.mu.Unlock()

	if ok && t.callback != nil {
		t.callback(ActionRemoved, j)
	}
	return ok
}

// Totals counts tracked jobs by state and conclusion.
func (t *Tracker) Totals() Totals {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var totals Totals
	for _, j := range t.jobs {
		d := j.Snapshot()
		totals.Total++
		switch d.State {
		case StatePending:
			totals.Pending++
		case StateRunning:
			totals.Running++
		case StateStopped:
			switch d.Conclusion {
			case ConclusionEnded:
				totals.Ended++
			case ConclusionFailed:
				totals.Failed++
			case ConclusionCanceled:
				totals.Canceled++
			}
		}
	}
	return totals
}
