// Package apperr defines the error kinds that cross the service boundary.
//
// Domain services return *Error values for every failure that the caller is
// allowed to see. Anything else is treated as an internal failure: it is
// logged server-side and answered with a generic message.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Error kinds. Use errors.Is against these to classify a failure.
var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
)

// Error is a user-facing failure of a known kind. Message is safe to return
// to clients verbatim.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Validation returns an input validation failure.
func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated returns a missing or invalid principal failure.
func Unauthenticated(msg string) error {
	return &Error{Kind: ErrUnauthenticated, Message: msg}
}

// Forbidden returns a role or ownership failure.
func Forbidden(msg string) error {
	return &Error{Kind: ErrForbidden, Message: msg}
}

// NotFound returns an unknown id failure.
func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

// Conflict returns a concurrent modification failure.
func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Message: msg}
}

// Public reports whether err carries a user-facing message and returns it.
func Public(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
