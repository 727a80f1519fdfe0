// Package apperr defines the typed error kinds that every handler and
// session maps to an HTTP status code in one place. It uses
// github.com/cockroachdb/errors for wrapping with stack traces,
// reserving plain fmt.Errorf for everything that never crosses the
// wire as one of these kinds.
package apperr

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// Kind enumerates the error categories that need distinguishable HTTP
// and WS handling.
type Kind string

const (
	Unauthorized  Kind = "unauthorized"
	Forbidden     Kind = "forbidden"
	BadRequest    Kind = "bad_request"
	NotFound      Kind = "not_found"
	Internal      Kind = "internal_error"
	Unsupported   Kind = "unsupported"
	ParseError    Kind = "parse_error"
)

// Error is a Kind-tagged, wrapped error carrying a user-facing message.
type Error struct {
	kind    Kind
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's category.
func (e *Error) Kind() Kind { return e.kind }

// New builds a Kind-tagged error with no wrapped cause.
func New(kind Kind, message string) error {
	return &Error{kind: kind, message: message}
}

// Wrap attaches a Kind to an existing error, preserving it as the cause
// with a stack trace via cockroachdb/errors. message is recorded once,
// on the *Error itself; the cause keeps its own text untouched so
// Error() doesn't prepend it twice.
func Wrap(kind Kind, cause error, message string) error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{kind: kind, message: message, cause: errors.WithStack(cause)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to Internal otherwise.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.kind
	}
	return Internal
}

// HTTPStatus maps a Kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case BadRequest, ParseError:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Unsupported:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// StatusFor is a convenience combining KindOf and HTTPStatus.
func StatusFor(err error) int {
	return HTTPStatus(KindOf(err))
}
