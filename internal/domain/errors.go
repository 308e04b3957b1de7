// Package domain provides the error kinds, response envelope and records
// shared by the API surface.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of an API error. The HTTP status for an error
// is resolved from its kind unless an explicit status is set.
type Kind string

const (
	// KindValidation indicates a malformed or invalid request payload.
	KindValidation Kind = "validation"

	// KindUnauthorized indicates missing or invalid credentials.
	KindUnauthorized Kind = "unauthorized"

	// KindForbidden indicates the caller may not perform the operation.
	KindForbidden Kind = "forbidden"

	// KindNotFound indicates a resource or route was not found.
	KindNotFound Kind = "not_found"

	// KindMethodNotAllowed indicates the route exists but not for the method.
	KindMethodNotAllowed Kind = "method_not_allowed"

	// KindRateLimit indicates rate limiting was triggered.
	KindRateLimit Kind = "rate_limit"

	// KindPayloadTooLarge indicates the request body exceeded the limit.
	KindPayloadTooLarge Kind = "payload_too_large"

	// KindTimeout indicates the request deadline elapsed before a response.
	KindTimeout Kind = "timeout"

	// KindUpstream indicates a failure in a downstream dependency (model, store).
	KindUpstream Kind = "upstream"

	// KindInternal indicates an unexpected server error.
	KindInternal Kind = "internal"
)

// Code is the machine-readable error code placed in the envelope.
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeChat             Code = "CHAT_ERROR"
	CodeAgent            Code = "AGENT_ERROR"
	CodeGraph            Code = "GRAPH_ERROR"
	CodeStream           Code = "STREAM_ERROR"
	CodeState            Code = "STATE_ERROR"
	CodeInternal         Code = "INTERNAL_ERROR"
	CodeNotFound         Code = "NOT_FOUND"
	CodeMethodNotAllowed Code = "METHOD_NOT_ALLOWED"
	CodeUnauthorized     Code = "UNAUTHORIZED"
)

// Error is the canonical error carried through handlers. An Error with a Code
// has been classified by the route that produced it; one without a Code is
// rendered by the error boundary as INTERNAL_ERROR.
type Error struct {
	Kind       Kind
	Code       Code
	Message    string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status code for this error.
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	return StatusForKind(e.Kind)
}

// StatusForKind maps an error kind to its default HTTP status.
func StatusForKind(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithCode attaches a route-level error code.
func (e *Error) WithCode(code Code) *Error {
	e.Code = code
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// Wrap records the underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// AsError extracts an *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Convenience constructors

// ErrValidation creates a validation error carrying VALIDATION_ERROR.
func ErrValidation(message string) *Error {
	return New(KindValidation, message).WithCode(CodeValidation)
}

// ErrNotFound creates a not found error carrying NOT_FOUND.
func ErrNotFound(message string) *Error {
	return New(KindNotFound, message).WithCode(CodeNotFound)
}

// ErrUnauthorized creates an unauthorized error.
func ErrUnauthorized(message string) *Error {
	return New(KindUnauthorized, message).WithCode(CodeUnauthorized)
}

// ErrTimeout creates a timeout error. It carries no code so that the error
// boundary renders it.
func ErrTimeout(message string) *Error {
	return New(KindTimeout, message)
}

// ErrPayloadTooLarge creates a body limit error. Like ErrTimeout it carries
// no code, so the boundary renders INTERNAL_ERROR with status 413.
func ErrPayloadTooLarge(message string) *Error {
	return New(KindPayloadTooLarge, message)
}

// ErrUpstream creates an upstream failure tagged with a route code
// (CHAT_ERROR, AGENT_ERROR and friends).
func ErrUpstream(code Code, message string, err error) *Error {
	return New(KindUpstream, message).WithCode(code).Wrap(err)
}

// ErrInternal creates an unclassified internal error.
func ErrInternal(message string) *Error {
	return New(KindInternal, message)
}
