// Package errkind is the shared error-kind taxonomy used across lusby's
// packages: a small closed set of Kind values, each package wrapping its
// own errors with one of them via golang.org/x/xerrors so the daemon's
// D-Bus boundary can map any internal error down to a flat bool/message
// pair without needing to know which package produced it.
package errkind

import (
	"golang.org/x/xerrors"
)

// Kind classifies an Error for the purpose of presenting it across the
// D-Bus boundary; it carries no further structure because every failure
// collapses to a bool at the wire.
type Kind string

const (
	InvalidInput       Kind = "invalid_input"
	Unauthorized       Kind = "unauthorized"
	VerificationFailed Kind = "verification_failed"
	BackendFailure     Kind = "backend_failure"
	IO                 Kind = "io"
	Serialization      Kind = "serialization"
	Internal           Kind = "internal"
)

// Error pairs a Kind with an underlying cause. Its Error text is the
// message followed by the cause's text; it does not implement a formatter,
// so %v and %+v both print that text only.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

// New constructs an Error of the given kind with a message only.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Wrap constructs an Error of the given kind wrapping cause via
// xerrors.Errorf, so cause stays reachable through Unwrap (errors.Is/As).
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, msg: msg, err: xerrors.Errorf("%s: %w", msg, cause)}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target is an *Error of the same Kind, so callers can
// do errors.Is(err, errkind.New(errkind.Unauthorized, "")) style checks
// without caring about the message.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to Internal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if xerrors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
