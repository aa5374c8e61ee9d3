package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies domain failures so the transport layer can render them.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

// Error is a domain rule violation raised at the point of detection.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on kind and code so sentinel values compare equal to copies carrying a cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Kind == other.Kind && e.Code == other.Code
}

// WithCause returns a copy of the error wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Err = cause
	return &cpy
}

// WithMessage returns a copy of the error carrying a more specific message.
func (e *Error) WithMessage(message string) *Error {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Message = message
	return &cpy
}

// StatusCode maps the error kind onto an HTTP status.
func (e *Error) StatusCode() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	return StatusFor(e.Kind)
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Forbidden(code, message string) *Error {
	return New(KindForbidden, code, message)
}

func BadRequest(code, message string) *Error {
	return New(KindBadRequest, code, message)
}

func Unauthorized(code, message string) *Error {
	return New(KindUnauthorized, code, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// As extracts the domain error from err, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the kind of err, defaulting to KindInternal for infrastructure failures.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

func StatusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Internal wraps an infrastructure failure with an "operation.reason" code for logs and clients.
func Internal(operation, reason string, cause error) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    operation + "." + reason,
		Message: "Internal error",
		Err:     cause,
	}
}
