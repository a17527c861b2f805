package notify

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pageturn-io/pageturn/log"
	"github.com/pageturn-io/pageturn/types"
)

func sampleSummary() types.RunSummary {
	start := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	return types.RunSummary{
		TotalAttempted:  40,
		TotalSucceeded:  38,
		TotalFailed:     2,
		StartedAt:       start,
		FinishedAt:      start.Add(22 * time.Minute),
		DurationSeconds: 1320,
		FirstError:      &types.RunError{Index: 7, Kind: types.ErrKindTransient, Detail: "timeout"},
		LastError:       &types.RunError{Index: 31, Kind: types.ErrKindTransient, Detail: "status 502"},
	}
}

func TestNewEvent(t *testing.T) {
	event := NewEvent("run-001", types.StateCompleted, sampleSummary())

	if event.EventType != "run_summary" {
		t.Errorf("event type %q", event.EventType)
	}
	if event.SchemaVersion != types.Version {
		t.Errorf("schema version %q", event.SchemaVersion)
	}
	if event.RunID != "run-001" || event.State != "completed" {
		t.Errorf("identity fields: %q %q", event.RunID, event.State)
	}
	if event.TotalAttempted != 40 || event.TotalSucceeded != 38 || event.TotalFailed != 2 {
		t.Errorf("totals: %d/%d/%d", event.TotalAttempted, event.TotalSucceeded, event.TotalFailed)
	}
	if event.StartedAt != "2026-03-01T06:00:00Z" {
		t.Errorf("started_at %q", event.StartedAt)
	}
	if event.FinishedAt != "2026-03-01T06:22:00Z" {
		t.Errorf("finished_at %q", event.FinishedAt)
	}
	if event.FirstError == nil || event.FirstError.Index != 7 {
		t.Errorf("first error %+v", event.FirstError)
	}

	if !strings.Contains(event.Message, "38/40") {
		t.Errorf("message lacks totals: %q", event.Message)
	}
	if !strings.Contains(event.Message, "transient") {
		t.Errorf("message lacks first error kind: %q", event.Message)
	}
}

func TestNewEvent_CleanRunMessage(t *testing.T) {
	summary := sampleSummary()
	summary.TotalSucceeded = 40
	summary.TotalFailed = 0
	summary.FirstError = nil
	summary.LastError = nil

	event := NewEvent("run-002", types.StateCompleted, summary)
	if strings.Contains(event.Message, "error") {
		t.Errorf("clean run message mentions errors: %q", event.Message)
	}
}

// recordingNotifier captures Send calls and fails on demand.
type recordingNotifier struct {
	events []*Event
	err    error
	closed bool
}

func (n *recordingNotifier) Send(_ context.Context, event *Event) error {
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) Close() error {
	n.closed = true
	return nil
}

func testLogger() *log.Logger {
	return log.NewWithWriter("run-test", io.Discard)
}

func TestDispatcher_Delivered(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, testLogger())

	status := d.Dispatch(context.Background(), "run-001", types.StateCompleted, sampleSummary())

	if status != Delivered {
		t.Errorf("status = %s, want delivered", status)
	}
	if len(rec.events) != 1 || rec.events[0].RunID != "run-001" {
		t.Errorf("unexpected events %+v", rec.events)
	}
}

func TestDispatcher_FailureIsSwallowed(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("endpoint down")}
	d := NewDispatcher(rec, testLogger())

	// Delivery failure must never escalate beyond the returned status.
	status := d.Dispatch(context.Background(), "run-001", types.StateAborted, sampleSummary())
	if status != Failed {
		t.Errorf("status = %s, want failed", status)
	}
}

func TestDispatcher_NoChannel(t *testing.T) {
	d := NewDispatcher(nil, testLogger())

	status := d.Dispatch(context.Background(), "run-001", types.StateCompleted, sampleSummary())
	if status != Skipped {
		t.Errorf("status = %s, want skipped", status)
	}
}
