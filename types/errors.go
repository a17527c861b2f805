package types

import "fmt"

// ErrorKind classifies a call failure. The kind decides the retry policy:
// transient failures are retried within one iteration, session and
// structural failures abort the whole run.
type ErrorKind string

const (
	// ErrKindMalformedTemplate: captured request could not be parsed (pre-run).
	ErrKindMalformedTemplate ErrorKind = "malformed_template"
	// ErrKindMissingCredential: template lacks auth material (pre-run).
	ErrKindMissingCredential ErrorKind = "missing_credential"
	// ErrKindSessionExpired: preflight or mid-run credential rejection.
	ErrKindSessionExpired ErrorKind = "session_expired"
	// ErrKindTransient: timeout, connection error, 429 or 5xx.
	ErrKindTransient ErrorKind = "transient"
	// ErrKindFatal: unexpected success-path response shape.
	ErrKindFatal ErrorKind = "fatal"
	// ErrKindNotificationFailed: summary delivery failed (logged only).
	ErrKindNotificationFailed ErrorKind = "notification_failed"
)

// Retryable reports whether a failure of this kind may be retried
// within the per-call attempt budget.
func (k ErrorKind) Retryable() bool {
	return k == ErrKindTransient
}

// AbortsRun reports whether a failure of this kind terminates the whole
// run rather than just the current iteration. A mid-run credential
// failure invalidates all subsequent calls too.
func (k ErrorKind) AbortsRun() bool {
	return k == ErrKindSessionExpired || k == ErrKindFatal
}

// CallError wraps a single call-attempt failure with its classification.
// HTTPStatus is zero when the failure happened below the HTTP layer.
type CallError struct {
	Kind       ErrorKind
	HTTPStatus int
	Err        error
}

func (e *CallError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}
