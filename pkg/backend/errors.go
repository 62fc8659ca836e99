package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies backend failures. Transient and OutOfMemory are
// retry-eligible; everything else fails the job.
type ErrorKind string

const (
	KindModelLoadFailed ErrorKind = "model_load_failed"
	KindOutOfMemory     ErrorKind = "out_of_memory"
	KindInputUnreadable ErrorKind = "input_unreadable"
	KindTransient       ErrorKind = "transient"
	KindCancelled       ErrorKind = "cancelled"
	KindInternal        ErrorKind = "internal"
)

// Error is the typed failure surface of a SpeechBackend.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("backend %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a backend error of the given kind.
func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the error kind, defaulting to Internal for untyped errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// Retryable reports whether the scheduler may retry a chunk that failed with
// this error.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindOutOfMemory:
		return true
	default:
		return false
	}
}

// IsCancelled reports whether the error is a cancellation, either the typed
// backend kind or a raw context error.
func IsCancelled(err error) bool {
	if KindOf(err) == KindCancelled {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
