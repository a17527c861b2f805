package types

import (
	"errors"
	"testing"
)

func TestErrorKind_Retryable(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		retryable bool
	}{
		{ErrKindTransient, true},
		{ErrKindSessionExpired, false},
		{ErrKindFatal, false},
		{ErrKindMalformedTemplate, false},
		{ErrKindMissingCredential, false},
		{ErrKindNotificationFailed, false},
	}
	for _, tt := range tests {
		if got := tt.kind.Retryable(); got != tt.retryable {
			t.Errorf("%s.Retryable() = %v, want %v", tt.kind, got, tt.retryable)
		}
	}
}

func TestErrorKind_AbortsRun(t *testing.T) {
	tests := []struct {
		kind   ErrorKind
		aborts bool
	}{
		{ErrKindSessionExpired, true},
		{ErrKindFatal, true},
		{ErrKindTransient, false},
		{ErrKindNotificationFailed, false},
	}
	for _, tt := range tests {
		if got := tt.kind.AbortsRun(); got != tt.aborts {
			t.Errorf("%s.AbortsRun() = %v, want %v", tt.kind, got, tt.aborts)
		}
	}
}

func TestCallError_Error(t *testing.T) {
	inner := errors.New("boom")

	withStatus := &CallError{Kind: ErrKindTransient, HTTPStatus: 503, Err: inner}
	if got := withStatus.Error(); got != "transient (status 503): boom" {
		t.Errorf("unexpected message %q", got)
	}

	withoutStatus := &CallError{Kind: ErrKindFatal, Err: inner}
	if got := withoutStatus.Error(); got != "fatal: boom" {
		t.Errorf("unexpected message %q", got)
	}

	if !errors.Is(withStatus, inner) {
		t.Error("CallError does not unwrap to the inner error")
	}
}
