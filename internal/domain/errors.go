package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable error category surfaced to clients in
// the {"error": <kind>} body. Kinds are stable; tests and clients assert on
// them, never on message text.
type ErrorKind string

const (
	// Client input errors (4xx).
	KindInvalidRange   ErrorKind = "InvalidRange"
	KindInvalidBBox    ErrorKind = "InvalidBBox"
	KindInvalidGroupBy ErrorKind = "InvalidGroupBy"

	// Engine-side errors (5xx, safe to retry).
	KindUpstreamTimeout     ErrorKind = "UpstreamTimeout"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
)

// Error carries an ErrorKind alongside a human-readable message and an
// optional wrapped cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two Errors by kind, so sentinel-style checks like
// errors.Is(err, &Error{Kind: KindInvalidBBox}) work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// Retryable reports whether the caller may safely retry the request.
func (e *Error) Retryable() bool {
	return e.Kind == KindUpstreamTimeout || e.Kind == KindUpstreamUnavailable
}

// NewError creates an Error with the given kind and message.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates an Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error wrapping a cause.
func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the ErrorKind from an error chain. The second return is
// false when the chain contains no *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsClientError reports whether the kind belongs to the 4xx family.
func (k ErrorKind) IsClientError() bool {
	switch k {
	case KindInvalidRange, KindInvalidBBox, KindInvalidGroupBy:
		return true
	}
	return false
}
