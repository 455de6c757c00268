package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrMalformedJob      = errors.New("malformed job document")
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// State is where a job is in its lifecycle on the daemon.
type State string

const (
	StatePending State = "PENDING"
	StateRunning State = "RUNNING"
	StateStopped State = "STOPPED"
)

// Conclusion is how a stopped job ended. Empty until the job stops.
type Conclusion string

const (
	ConclusionNone     Conclusion = ""
	ConclusionEnded    Conclusion = "ENDED"
	ConclusionFailed   Conclusion = "FAILED"
	ConclusionCanceled Conclusion = "CANCELED"
)

// Kind is the request that created the job.
type Kind string

const (
	KindPrint       Kind = "print"
	KindPrintToFile Kind = "printtofile"
	KindSlice       Kind = "slice"
)

// Step is the daemon's report of the job's current step.
type Step struct {
	Name     string `json:"name"`
	Progress int    `json:"progress"` // percent
}

// Data holds job values without synchronization. Safe to copy by value.
type Data struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	Printer     string     `json:"printer"`
	Kind        Kind       `json:"type"`
	State       State      `json:"state"`
	Conclusion  Conclusion `json:"conclusion"`
	CurrentStep *Step      `json:"currentstep,omitempty"`
	Failure     string     `json:"failure,omitempty"`
}

// ParseDocument decodes and validates a job document from the daemon.
func ParseDocument(raw []byte) (Data, error) {
	var doc struct {
		ID          *int            `json:"id"`
		Name        string          `json:"name"`
		Printer     string          `json:"printer"`
		Kind        Kind            `json:"type"`
		State       State           `json:"state"`
		Conclusion  *Conclusion     `json:"conclusion"`
		CurrentStep *Step           `json:"currentstep"`
		Failure     json.RawMessage `json:"failure"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if doc.ID == nil {
		return Data{}, fmt.Errorf("%w: missing id", ErrMalformedJob)
	}
	d := Data{
		ID:          *doc.ID,
		Name:        doc.Name,
		Printer:     doc.Printer,
		Kind:        doc.Kind,
		State:       doc.State,
		CurrentStep: doc.CurrentStep,
	}
	if doc.Conclusion != nil {
		d.Conclusion = *doc.Conclusion
	}
	if len(doc.Failure) > 0 && string(doc.Failure) != "null" {
		// The daemon sends failures as arbitrary JSON; keep it readable.
		var s string
		if json.Unmarshal(doc.Failure, &s) == nil {
			d.Failure = s
		} else {
			d.Failure = string(doc.Failure)
		}
	}
	if err := d.Validate(); err != nil {
		return Data{}, err
	}
	return d, nil
}

// Validate checks the enumerated fields.
func (d Data) Validate() error {
	switch d.State {
	case StatePending, StateRunning, StateStopped:
	default:
		return fmt.Errorf("%w: unknown state %q", ErrMalformedJob, d.State)
	}
	switch d.Conclusion {
	case ConclusionNone, ConclusionEnded, ConclusionFailed, ConclusionCanceled:
	default:
		return fmt.Errorf("%w: unknown conclusion %q", ErrMalformedJob, d.Conclusion)
	}
	if d.State == StateStopped && d.Conclusion == ConclusionNone {
		return fmt.Errorf("%w: stopped job %d has no conclusion", ErrMalformedJob, d.ID)
	}
	return nil
}

// Job is the handle for one unit of work on the daemon. Its data follows the
// daemon's job notifications.
type Job struct {
	mu   sync.RWMutex
	data Data
	done chan struct{}
}

func newJob(d Data) *Job {
	j := &Job{data: d, done: make(chan struct{})}
	if d.State == StateStopped {
		close(j.done)
	}
	return j
}

// ID is the daemon-assigned job id.
func (j *Job) ID() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.data.ID
}

// Snapshot returns a copy of the current job data.
func (j *Job) Snapshot() Data {
	j.mu.RLock()
	defer j.mu.RUnlock()
	d := j.data
	if d.CurrentStep != nil {
		step := *d.CurrentStep
		d.CurrentStep = &step
	}
	return d
}

// Done is closed once the job has stopped.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job stops or ctx ends.
func (j *Job) Wait(ctx context.Context) (Data, error) {
	select {
	case <-j.done:
		return j.Snapshot(), nil
	case <-ctx.Done():
		return j.Snapshot(), ctx.Err()
	}
}

func (j *Job) update(d Data) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.data.State == StateStopped && d.State != StateStopped {
		return fmt.Errorf("%w: job %d is stopped, got %s", ErrInvalidTransition, d.ID, d.State)
	}
	// Printer and kind are known from the request even when the daemon omits them.
	if d.Printer == "" {
		d.Printer = j.data.Printer
	}
	if d.Kind == "" {
		d.Kind = j.data.Kind
	}
	wasStopped := j.data.State == StateStopped
	j.data = d
	if d.State == StateStopped && !wasStopped {
		close(j.done)
	}
	return nil
}
