// apperr/apperr.go
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is the single domain error shape used across the BFF. Every failure
// that reaches the request boundary is either an *Error or gets normalized
// into one by From.
type Error struct {
	// Detail is the human-readable message returned to the client.
	Detail string

	// Code is a short machine tag (e.g., "not_found", "supabase_error").
	Code string

	// Status is the HTTP status code for the response.
	Status int

	// Err is the underlying error, if any. Never exposed to clients.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap attaches an underlying error and returns e for chaining.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code, defaulting to 500.
func (e *Error) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// New creates an Error with the given code, detail, and HTTP status.
func New(code, detail string, status int) *Error {
	return &Error{Code: code, Detail: detail, Status: status}
}

// From extracts an *Error from err if possible, or wraps it as an internal
// error with a fixed, non-leaking detail. From(nil) returns nil.
func From(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return &Error{
		Code:   CodeInternal,
		Detail: "Unexpected error",
		Status: http.StatusInternalServerError,
		Err:    err,
	}
}

// Error codes used by the BFF.
const (
	CodeBadRequest      = "bad_request"
	CodeUnauthorized    = "unauthorized"
	CodeNotFound        = "not_found"
	CodeTooManyRequests = "rate_limited"
	CodeUpstream        = "supabase_error"
	CodeInternal        = "internal_error"
)

// BadRequest creates a 400 Bad Request error.
func BadRequest(detail string) *Error {
	return New(CodeBadRequest, detail, http.StatusBadRequest)
}

// Unauthorized creates a 401 Unauthorized error.
func Unauthorized(detail string) *Error {
	return New(CodeUnauthorized, detail, http.StatusUnauthorized)
}

// NotFound creates a 404 Not Found error.
func NotFound(detail string) *Error {
	return New(CodeNotFound, detail, http.StatusNotFound)
}

// TooManyRequests creates a 429 rate-limit error.
func TooManyRequests(detail string) *Error {
	return New(CodeTooManyRequests, detail, http.StatusTooManyRequests)
}

// Upstream creates an upstream error that mirrors the upstream status code.
func Upstream(detail string, status int) *Error {
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	return New(CodeUpstream, detail, status)
}

// BadUpstream creates a 502 error for malformed upstream responses.
func BadUpstream(detail string) *Error {
	return New(CodeUpstream, detail, http.StatusBadGateway)
}

// Internal creates a 500 Internal Server Error.
func Internal(detail string) *Error {
	return New(CodeInternal, detail, http.StatusInternalServerError)
}
