// Package storeerr defines the error kinds spec.md §7 requires the core to
// surface: ObjectAlreadyExists, NoSuchObject, LockUnavailable, Persistence,
// Configuration, and Cancelled.
package storeerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories from spec.md §7.
type Kind string

const (
	ObjectAlreadyExists Kind = "object_already_exists"
	NoSuchObject        Kind = "no_such_object"
	LockUnavailable     Kind = "lock_unavailable"
	Persistence         Kind = "persistence"
	Configuration       Kind = "configuration"
	Cancelled           Kind = "cancelled"
)

// Error is a Kind-tagged error that preserves its cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err carries the given Kind — use as
// storeerr.Is(err, storeerr.ObjectAlreadyExists).
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

func AlreadyExists(msg string) *Error { return New(ObjectAlreadyExists, msg, nil) }
func NotFound(msg string) *Error      { return New(NoSuchObject, msg, nil) }
func LockFailed(msg string, cause error) *Error {
	return New(LockUnavailable, msg, cause)
}
func Wrap(msg string, cause error) *Error { return New(Persistence, msg, cause) }
func Config(msg string) *Error            { return New(Configuration, msg, nil) }
func CancelledErr(msg string) *Error      { return New(Cancelled, msg, nil) }
