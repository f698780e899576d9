// Package apperr defines the error taxonomy shared by all services.
// Services return *Error values; the HTTP layer maps them to stable
// status codes without leaking internals.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	// KindInternal is the fallback for unclassified failures.
	KindInternal Kind = iota
	// KindNotFound means the addressed entity does not exist.
	KindNotFound
	// KindConflict means a uniqueness or duplicate-assignment rule was violated.
	KindConflict
	// KindValidation means the request was malformed or out of bounds.
	KindValidation
	// KindProviderUnconfigured means a model provider lacks credentials.
	KindProviderUnconfigured
	// KindUnavailable means a backing dependency is down.
	KindUnavailable
)

// Error is a classified error with an operator-safe message.
type Error struct {
	Kind    Kind
	Message string
	// Field optionally names the request field that failed validation,
	// surfaced as a JSON pointer in the error body.
	Field string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// Is matches two *Error values by kind so sentinel comparisons work.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// HTTPStatus returns the stable status code for the error's kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindProviderUnconfigured:
		return http.StatusUnprocessableEntity
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Title returns the human-readable title for the error's kind.
func (e *Error) Title() string {
	switch e.Kind {
	case KindNotFound:
		return "Not Found"
	case KindConflict:
		return "Conflict"
	case KindValidation:
		return "Validation Error"
	case KindProviderUnconfigured:
		return "Provider Not Configured"
	case KindUnavailable:
		return "Service Unavailable"
	default:
		return "Internal Server Error"
	}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a conflict error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationField creates a validation error pointing at a request field.
func ValidationField(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// ProviderUnconfigured creates a provider-credentials error.
func ProviderUnconfigured(provider string) *Error {
	return &Error{
		Kind:    KindProviderUnconfigured,
		Message: fmt.Sprintf("provider %q is not configured; add the required API key via the secrets API", provider),
	}
}

// Unavailable creates a dependency-down error.
func Unavailable(format string, args ...any) *Error {
	return &Error{Kind: KindUnavailable, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unclassified failure.
func Internal(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), cause: cause}
}

// IsNotFound reports whether err is (or wraps) a not-found error.
func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

// IsConflict reports whether err is (or wraps) a conflict error.
func IsConflict(err error) bool { return kindOf(err) == KindConflict }

// IsValidation reports whether err is (or wraps) a validation error.
func IsValidation(err error) bool { return kindOf(err) == KindValidation }

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// From converts any error to an *Error, passing classified errors
// through and wrapping the rest as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err, "internal error")
}
