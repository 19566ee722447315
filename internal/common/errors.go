package common

import (
	"errors"
	"fmt"
)

// Error categories. Services wrap these so callers can match with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrUpstream   = errors.New("upstream failure")
	ErrConflict   = errors.New("conflict")
	ErrClosed     = errors.New("service closed")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UpstreamKind classifies fetch failures.
type UpstreamKind string

const (
	UpstreamTimeout UpstreamKind = "timeout"
	UpstreamNetwork UpstreamKind = "network"
	UpstreamStatus  UpstreamKind = "status"
	UpstreamParse   UpstreamKind = "parse"
)

// UpstreamError is returned when a remote page cannot be fetched or parsed.
type UpstreamError struct {
	Kind UpstreamKind
	URL  string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s error for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

// Retryable reports whether another attempt could succeed. Parse errors and
// 4xx statuses are not retried.
func (e *UpstreamError) Retryable() bool {
	switch e.Kind {
	case UpstreamTimeout, UpstreamNetwork:
		return true
	case UpstreamStatus:
		var se *StatusError
		if errors.As(e.Err, &se) {
			return se.Code == 429 || se.Code >= 500
		}
		return true
	default:
		return false
	}
}

// StatusError carries a non-2xx HTTP status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.Code)
}

// NotFoundError wraps ErrNotFound with the entity kind and id.
func NotFoundError(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// ConflictError wraps ErrConflict with a reason.
func ConflictError(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}
