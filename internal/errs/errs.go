// Package errs defines the closed set of error kinds the scheduler
// returns. Callers switch on Kind, never on error string content.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of scheduler error categories.
type Kind int

const (
	// Internal is the zero value on purpose: an unclassified error must
	// never silently compare equal to a real kind.
	Internal Kind = iota
	BadRequest
	UnknownJob
	UnknownTaskQueue
	Conflict
	StoreUnavailable
	DeadlineExceeded
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case UnknownJob:
		return "unknown_job"
	case UnknownTaskQueue:
		return "unknown_task_queue"
	case Conflict:
		return "conflict"
	case StoreUnavailable:
		return "store_unavailable"
	case DeadlineExceeded:
		return "deadline_exceeded"
	default:
		return "internal"
	}
}

// Error is the scheduler's single error type. Op names the failing
// operation, Field names the offending field for BadRequest, Err wraps the
// underlying cause (a driver error, a context error, etc).
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %q): %v", e.Op, e.Kind, e.Field, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap attaches a kind and operation name to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// BadField builds a BadRequest error naming the offending field.
func BadField(op, field string, err error) *Error {
	return &Error{Kind: BadRequest, Op: op, Field: field, Err: err}
}

// KindOf extracts the Kind of err, defaulting to Internal for anything
// that isn't an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
