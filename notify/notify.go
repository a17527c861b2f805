// Package notify defines the notification boundary.
//
// The run supplies its summary; a configured channel delivers it. The
// core is agnostic to which channel is configured and how messages are
// rendered on the far side — delivery failure is a logging concern and
// never a failure of the read-simulation run itself.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/pageturn-io/pageturn/log"
	"github.com/pageturn-io/pageturn/types"
)

// Status is the delivery outcome reported back to the run for logging.
type Status string

const (
	// Delivered: the channel accepted the summary.
	Delivered Status = "delivered"
	// Failed: the channel could not be reached or rejected the summary.
	Failed Status = "failed"
	// Skipped: no channel is configured.
	Skipped Status = "skipped"
)

// Event is the payload published to a channel. Channel-specific
// formatting happens on the receiving side; this is the structured
// summary every channel gets.
type Event struct {
	SchemaVersion   string          `json:"schema_version"`
	EventType       string          `json:"event_type"` // always "run_summary"
	RunID           string          `json:"run_id"`
	State           string          `json:"state"`
	TotalAttempted  int             `json:"total_attempted"`
	TotalSucceeded  int             `json:"total_succeeded"`
	TotalFailed     int             `json:"total_failed"`
	DurationSeconds float64         `json:"duration_seconds"`
	StartedAt       string          `json:"started_at"`  // ISO 8601
	FinishedAt      string          `json:"finished_at"` // ISO 8601
	FirstError      *types.RunError `json:"first_error,omitempty"`
	LastError       *types.RunError `json:"last_error,omitempty"`
	Message         string          `json:"message"`
}

// Notifier delivers a run summary to one channel.
// Implementations must respect context cancellation and are single-use
// per run.
type Notifier interface {
	// Send delivers the event.
	Send(ctx context.Context, event *Event) error

	// Close releases channel resources.
	Close() error
}

// NewEvent builds the channel payload for a finished run.
func NewEvent(runID string, state types.RunState, summary types.RunSummary) *Event {
	return &Event{
		SchemaVersion:   types.Version,
		EventType:       "run_summary",
		RunID:           runID,
		State:           string(state),
		TotalAttempted:  summary.TotalAttempted,
		TotalSucceeded:  summary.TotalSucceeded,
		TotalFailed:     summary.TotalFailed,
		DurationSeconds: summary.DurationSeconds,
		StartedAt:       summary.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:      summary.FinishedAt.UTC().Format(time.RFC3339),
		FirstError:      summary.FirstError,
		LastError:       summary.LastError,
		Message:         summaryMessage(state, summary),
	}
}

// summaryMessage renders the one-line human message included in every
// notification.
func summaryMessage(state types.RunState, summary types.RunSummary) string {
	msg := fmt.Sprintf("reading session %s: %d/%d calls succeeded in %s",
		state,
		summary.TotalSucceeded,
		summary.TotalAttempted,
		time.Duration(summary.DurationSeconds*float64(time.Second)).Round(time.Second),
	)
	if summary.FirstError != nil {
		msg += fmt.Sprintf(" (first error: %s)", summary.FirstError.Kind)
	}
	return msg
}

// Dispatcher hands the run summary to the configured channel and turns
// the result into a log-only outcome.
type Dispatcher struct {
	notifier Notifier
	logger   *log.Logger
}

// NewDispatcher creates a dispatcher. A nil notifier means no channel is
// configured; Dispatch then reports Skipped.
func NewDispatcher(n Notifier, logger *log.Logger) *Dispatcher {
	return &Dispatcher{notifier: n, logger: logger}
}

// Dispatch delivers the summary. The run always ends by attempting to
// notify, even on abort, so the returned status exists purely for
// logging and is never an error of the run.
func (d *Dispatcher) Dispatch(ctx context.Context, runID string, state types.RunState, summary types.RunSummary) Status {
	if d.notifier == nil {
		d.logger.Info("no notification channel configured, skipping", nil)
		return Skipped
	}

	event := NewEvent(runID, state, summary)
	if err := d.notifier.Send(ctx, event); err != nil {
		d.logger.Error("notification delivery failed", map[string]any{
			"kind":  string(types.ErrKindNotificationFailed),
			"error": err.Error(),
		})
		return Failed
	}

	d.logger.Info("notification delivered", map[string]any{"state": string(state)})
	return Delivered
}
