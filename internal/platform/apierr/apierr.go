package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries the HTTP status and a machine-readable code for a request that cannot be
// processed. Err holds the message shown to the caller.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	case e.Code != "":
		return e.Code
	default:
		return fmt.Sprintf("api error (%d)", e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func newf(status int, code, format string, args []any) *Error {
	return New(status, code, fmt.Errorf(format, args...))
}

// BadRequest covers malformed envelopes and payloads. The relay will not redeliver them.
func BadRequest(code, format string, args ...any) *Error {
	return newf(http.StatusBadRequest, code, format, args)
}

// Unauthorized covers signature failures.
func Unauthorized(code, format string, args ...any) *Error {
	return newf(http.StatusUnauthorized, code, format, args)
}

// Forbidden covers well-formed requests for topics or buckets outside the allowlist.
func Forbidden(code, format string, args ...any) *Error {
	return newf(http.StatusForbidden, code, format, args)
}

// Internal covers server misconfiguration. Callers should not retry until it is fixed.
func Internal(code, format string, args ...any) *Error {
	return newf(http.StatusInternalServerError, code, format, args)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// CodeOf returns the code carried by err, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
