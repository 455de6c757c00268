package job

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseDocument(t *testing.T) {
	d, err := ParseDocument([]byte(`{
		"id": 7, "name": "model.stl", "printer": "bot-1", "type": "print",
		"state": "STOPPED", "conclusion": "FAILED",
		"currentstep": {"name": "slicing", "progress": 40},
		"failure": {"code": 3}
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.ID != 7 || d.Printer != "bot-1" || d.Kind != KindPrint {
		t.Fatalf("unexpected data: %+v", d)
	}
	if d.CurrentStep == nil || d.CurrentStep.Progress != 40 {
		t.Fatalf("current step: %+v", d.CurrentStep)
	}
	if d.Failure != `{"code": 3}` {
		t.Fatalf("failure: %q", d.Failure)
	}

	d, err = ParseDocument([]byte(`{"id": 8, "state": "STOPPED", "conclusion": "FAILED", "failure": "no such file"}`))
	if err != nil || d.Failure != "no such file" {
		t.Fatalf("string failure: %q, %v", d.Failure, err)
	}
}

func TestParseDocumentRejects(t *testing.T) {
	for _, raw := range []string{
		`[]`,
		`{"state": "PENDING"}`,
		`{"id": 1, "state": "QUEUED"}`,
		`{"id": 1, "state": "STOPPED"}`,
		`{"id": 1, "state": "STOPPED", "conclusion": "EXPLODED"}`,
	} {
		if _, err := ParseDocument([]byte(raw)); !errors.Is(err, ErrMalformedJob) {
			t.Fatalf("%s: expected ErrMalformedJob, got %v", raw, err)
		}
	}
}

func TestJobStoppedIsFinal(t *testing.T) {
	j := newJob(Data{ID: 1, State: StateRunning})
	if err := j.update(Data{ID: 1, State: StateStopped, Conclusion: ConclusionEnded}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := j.update(Data{ID: 1, State: StateRunning}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	// A repeated stop is accepted and does not close done twice.
	if err := j.update(Data{ID: 1, State: StateStopped, Conclusion: ConclusionEnded}); err != nil {
		t.Fatalf("repeat stop: %v", err)
	}
}

func TestJobKeepsPrinterAndKind(t *testing.T) {
	j := newJob(Data{ID: 1, Printer: "bot-1", Kind: KindSlice, State: StatePending})
	if err := j.update(Data{ID: 1, State: StateRunning}); err != nil {
		t.Fatalf("update: %v", err)
	}
	d := j.Snapshot()
	if d.Printer != "bot-1" || d.Kind != KindSlice {
		t.Fatalf("lost printer or kind: %+v", d)
	}
}

func TestJobWait(t *testing.T) {
	j := newJob(Data{ID: 2, State: StatePending})

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = j.update(Data{ID: 2, State: StateStopped, Conclusion: ConclusionCanceled})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d, err := j.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if d.Conclusion != ConclusionCanceled {
		t.Fatalf("conclusion: %q", d.Conclusion)
	}
}

func TestJobWaitContextDone(t *testing.T) {
	j := newJob(Data{ID: 3, State: StateRunning})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := j.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSnapshotCopiesStep(t *testing.T) {
	j := newJob(Data{ID: 4, State: StateRunning, CurrentStep: &Step{Name: "printing", Progress: 10}})
	d := j.Snapshot()
	d.CurrentStep.Progress = 99
	if j.Snapshot().CurrentStep.Progress != 10 {
		t.Fatal("snapshot shares the current step")
	}
}
