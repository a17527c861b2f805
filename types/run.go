package types

import (
	"fmt"
	"time"
)

// RunState is the engine lifecycle state.
// Idle → Running → {Completed, Aborted}; terminal states are never
// re-entered, a new run requires a new engine.
type RunState string

const (
	// StateIdle: engine constructed, Run not yet called.
	StateIdle RunState = "idle"
	// StateRunning: iterations in progress.
	StateRunning RunState = "running"
	// StateCompleted: every requested iteration was attempted.
	StateCompleted RunState = "completed"
	// StateAborted: run terminated early on a fatal condition or deadline.
	StateAborted RunState = "aborted"
)

// Terminal reports whether the state is Completed or Aborted.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Read-count bounds. Anything outside this range is a configuration
// mistake, not a plausible reading session.
const (
	MinReadCount = 0
	MaxReadCount = 500
)

// RunConfig holds the caller-supplied parameters of one run.
// Constructed before the engine starts and read-only thereafter.
type RunConfig struct {
	// ReadCount is the number of read calls to simulate.
	ReadCount int
	// MinDelay and MaxDelay bound the randomized inter-call pacing.
	MinDelay time.Duration
	MaxDelay time.Duration
	// MaxRetriesPerCall is the retry budget per iteration, on top of the
	// first attempt.
	MaxRetriesPerCall int
	// RetryBackoffBase is the backoff unit; the wait before retry n is
	// RetryBackoffBase << (n-1).
	RetryBackoffBase time.Duration
	// MaxRunDuration bounds the whole run in wall-clock time. Zero means
	// unbounded. Exceeding it is a graceful abort, not an error.
	MaxRunDuration time.Duration
}

// Validate checks the config against sane bounds.
func (c *RunConfig) Validate() error {
	if c.ReadCount < MinReadCount || c.ReadCount > MaxReadCount {
		return fmt.Errorf("read count %d out of range [%d, %d]", c.ReadCount, MinReadCount, MaxReadCount)
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("min delay must be >= 0, got %s", c.MinDelay)
	}
	if c.MaxDelay < c.MinDelay {
		return fmt.Errorf("max delay %s must be >= min delay %s", c.MaxDelay, c.MinDelay)
	}
	if c.MaxRetriesPerCall < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetriesPerCall)
	}
	if c.RetryBackoffBase < 0 {
		return fmt.Errorf("retry backoff base must be >= 0, got %s", c.RetryBackoffBase)
	}
	if c.MaxRunDuration < 0 {
		return fmt.Errorf("max run duration must be >= 0, got %s", c.MaxRunDuration)
	}
	return nil
}

// CallResult records the final outcome of one iteration. It reflects the
// last attempt: success, or the last error after the retry budget was
// spent. Created by the engine and never mutated afterwards.
type CallResult struct {
	// Index is the 1-based iteration ordinal. Ordinals within one run are
	// strictly increasing and gapless.
	Index int `json:"index" msgpack:"index"`
	// Succeeded is true when some attempt of this iteration succeeded.
	Succeeded bool `json:"succeeded" msgpack:"succeeded"`
	// HTTPStatus is the status of the final attempt, zero if none was
	// received.
	HTTPStatus int `json:"http_status,omitempty" msgpack:"http_status,omitempty"`
	// ErrorKind classifies the final failure; empty on success.
	ErrorKind ErrorKind `json:"error_kind,omitempty" msgpack:"error_kind,omitempty"`
	// ErrorDetail is a human-readable failure description; empty on success.
	ErrorDetail string `json:"error_detail,omitempty" msgpack:"error_detail,omitempty"`
	// Attempts is how many attempts this iteration consumed.
	Attempts int `json:"attempts" msgpack:"attempts"`
	// LatencyMs is the final attempt's latency in milliseconds.
	LatencyMs int64 `json:"latency_ms" msgpack:"latency_ms"`
}

// RunError is the error slot of a summary (first or last failing call).
type RunError struct {
	// Index is the iteration that failed, zero when the run never
	// reached the engine (e.g. preflight rejection).
	Index int `json:"index,omitempty"`
	// Kind is the failure classification.
	Kind ErrorKind `json:"kind"`
	// Detail is a human-readable description.
	Detail string `json:"detail,omitempty"`
}

// RunSummary is the single aggregated report of a run, derived once from
// the CallResult sequence and handed to notification.
type RunSummary struct {
	TotalAttempted  int       `json:"total_attempted"`
	TotalSucceeded  int       `json:"total_succeeded"`
	TotalFailed     int       `json:"total_failed"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	FirstError      *RunError `json:"first_error,omitempty"`
	LastError       *RunError `json:"last_error,omitempty"`
}
