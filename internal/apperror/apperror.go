// Package apperror is the error taxonomy shared by the workflow core and its adapters.
package apperror

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindUnauthorized      Kind = "unauthorized"
	KindConflict          Kind = "conflict"
	KindPersistence       Kind = "persistence"
)

// Error carries a Kind, the operation that failed and an optional cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrPersistence       = &Error{Kind: KindPersistence}
)

func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s %s not found", entity, id)}
}

func InvalidTransition(from, action string) error {
	return &Error{Kind: KindInvalidTransition, Msg: fmt.Sprintf("action %q is not allowed in status %q", action, from)}
}

func Unauthorized(format string, args ...interface{}) error {
	return &Error{Kind: KindUnauthorized, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Persistence wraps a store failure with the sub-step that produced it.
func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Err: pkgerrors.WithStack(err)}
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Wrap prefixes an *Error with an operation name and keeps its Kind.
// Errors of other types become persistence errors.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &Error{Kind: e.Kind, Op: op, Msg: e.Msg, Err: e.Err}
	}
	return Persistence(op, err)
}
