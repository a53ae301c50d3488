package provider

import (
	"errors"
	"fmt"
	"time"
)

// Class partitions provider failures by how the caller should react.
type Class int

const (
	// ClassRateLimited means the backend refused the call due to quota or
	// rate limits. RetryAfter may carry the backend's own hint.
	ClassRateLimited Class = iota

	// ClassTransient covers network faults and temporary backend errors.
	ClassTransient

	// ClassFatal means retrying the same call cannot succeed.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	}
	return "unknown"
}

// Error is the classified failure returned by every Provider implementation.
type Error struct {
	Class      Class
	RetryAfter time.Duration // optional, only for ClassRateLimited
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewRateLimited wraps err as a rate-limit failure. retryAfter of zero means
// the backend gave no hint.
func NewRateLimited(err error, retryAfter time.Duration) *Error {
	return &Error{Class: ClassRateLimited, RetryAfter: retryAfter, Err: err}
}

// NewTransient wraps err as a retryable transient failure.
func NewTransient(err error) *Error {
	return &Error{Class: ClassTransient, Err: err}
}

// NewFatal wraps err as a non-retryable failure.
func NewFatal(err error) *Error {
	return &Error{Class: ClassFatal, Err: err}
}

// ClassOf extracts the error class. Unclassified errors are treated as fatal
// so that nothing retries blindly.
func ClassOf(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassFatal
}

// RetryAfterOf returns the backend's retry hint, or zero when absent.
func RetryAfterOf(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}
