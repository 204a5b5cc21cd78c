package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrMalformedOutput indicates the backend returned text that could not be
// parsed into the structure the caller asked for. It is transient: a fresh
// sample usually parses.
var ErrMalformedOutput = errors.New("malformed model output")

// Kind classifies a generation failure.
type Kind string

const (
	// KindTransient failures may succeed when retried (timeouts, rate limits,
	// malformed output).
	KindTransient Kind = "transient"
	// KindFatal failures will not succeed on retry (auth, bad request,
	// missing backend).
	KindFatal Kind = "fatal"
)

// Error is a classified generation failure.
type Error struct {
	Kind    Kind
	Purpose Purpose
	Err     error
}

// Error returns the kind, purpose, and cause.
func (e *Error) Error() string {
	if e.Purpose != "" {
		return fmt.Sprintf("%s generation error (%s): %v", e.Kind, e.Purpose, e.Err)
	}
	return fmt.Sprintf("%s generation error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable generation failure.
func Transient(purpose Purpose, err error) error {
	return &Error{Kind: KindTransient, Purpose: purpose, Err: err}
}

// Fatal wraps err as a non-retryable generation failure.
func Fatal(purpose Purpose, err error) error {
	return &Error{Kind: KindFatal, Purpose: purpose, Err: err}
}

// IsTransient reports whether err is a generation failure worth retrying.
// Unclassified errors are treated as fatal.
func IsTransient(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == KindTransient
	}
	return false
}

// Classify wraps an unclassified backend error. Deadline expiry is transient;
// cancellation and everything else is fatal. Already classified errors pass
// through unchanged.
func Classify(purpose Purpose, err error) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrMalformedOutput) {
		return Transient(purpose, err)
	}
	return Fatal(purpose, err)
}
