// Package apperr implements the seven-kind error taxonomy (§7): every error
// that can cross a service boundary is one of validation, authorization,
// notFound, conflict, unprocessable, upstream, or internal, each bound to
// an HTTP status when surfaced by a handler.
package apperr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind is one of the seven error kinds.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "notFound"
	KindConflict      Kind = "conflict"
	KindUnprocessable Kind = "unprocessable"
	KindUpstream      Kind = "upstream"
	KindInternal      Kind = "internal"
)

// Status returns the HTTP status this kind surfaces as.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	case KindUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error carried across service boundaries. Code is the
// six-digit XXYYZZ identifier (service/subsystem/condition); Message is the
// opaque system message; UserMessage is localisable and safe to show.
type Error struct {
	Kind        Kind
	Code        int
	Message     string
	UserMessage string
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (code=%06d): %s: %v", e.Kind, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s (code=%06d): %s", e.Kind, e.Code, e.Message)
}

// Unwrap lets errors.Is/errors.As see through to the underlying cause, so
// sentinels like pgx.ErrNoRows still compose.
func (e *Error) Unwrap() error { return e.cause }

// Code builds the XXYYZZ numeric identifier from a service id, subsystem
// id, and condition id (each 0-99).
func Code(service, subsystem, condition int) int {
	return service*10000 + subsystem*100 + condition
}

func newErr(kind Kind, code int, userMessage, msg string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(msg, args...), UserMessage: userMessage}
}

func Validation(code int, userMessage, msg string, args ...any) *Error {
	return newErr(KindValidation, code, userMessage, msg, args...)
}

func Authorization(code int, userMessage, msg string, args ...any) *Error {
	return newErr(KindAuthorization, code, userMessage, msg, args...)
}

func NotFound(code int, userMessage, msg string, args ...any) *Error {
	return newErr(KindNotFound, code, userMessage, msg, args...)
}

func Conflict(code int, userMessage, msg string, args ...any) *Error {
	return newErr(KindConflict, code, userMessage, msg, args...)
}

func Unprocessable(code int, userMessage, msg string, args ...any) *Error {
	return newErr(KindUnprocessable, code, userMessage, msg, args...)
}

// Upstream wraps a sidecar/store/dependency failure, preserving cause for
// errors.Is/errors.As.
func Upstream(code int, userMessage string, cause error) *Error {
	return &Error{Kind: KindUpstream, Code: code, Message: cause.Error(), UserMessage: userMessage, cause: cause}
}

// Internal wraps an unexpected error with a stack trace via pkg/errors.
func Internal(code int, userMessage string, cause error) *Error {
	return &Error{Kind: KindInternal, Code: code, Message: errors.WithStack(cause).Error(), UserMessage: userMessage, cause: cause}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}
