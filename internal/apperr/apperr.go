// Package apperr classifies domain failures so transports can map them to
// status codes without knowing every package's sentinels.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a domain error.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalid
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Error is a classified error with a message safe to show to API clients.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func Invalid(msg string) *Error      { return &Error{Kind: KindInvalid, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) *Error     { return &Error{Kind: KindConflict, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }
func Forbidden(msg string) *Error    { return &Error{Kind: KindForbidden, Message: msg} }

// Invalidf formats a validation message.
func Invalidf(format string, args ...any) *Error {
	return Invalid(fmt.Sprintf(format, args...))
}

// Conflictf formats a conflict message.
func Conflictf(format string, args ...any) *Error {
	return Conflict(fmt.Sprintf(format, args...))
}

// KindOf reports the kind and client message of err. Unclassified errors are internal.
func KindOf(err error) (Kind, string) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind, appErr.Message
	}
	return KindInternal, ""
}

// Is reports whether err is classified with kind.
func Is(err error, kind Kind) bool {
	k, _ := KindOf(err)
	return err != nil && k == kind
}
