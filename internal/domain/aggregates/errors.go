package aggregates

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies why an ingestion write did not apply.
type ErrorCode string

const (
	// CodeValidation: the notification or callback carried unusable input.
	CodeValidation ErrorCode = "validation"
	// CodeNotFound: a referenced atlas or file does not exist.
	CodeNotFound ErrorCode = "not_found"
	// CodeConflict: the write contradicts recorded state, e.g. an ETag mismatch.
	CodeConflict ErrorCode = "conflict"
	// CodeInvariantViolation: stored state is inconsistent and needs an operator.
	CodeInvariantViolation ErrorCode = "invariant_violation"
	// CodePreconditionFailed: a referenced row vanished mid-transaction.
	CodePreconditionFailed ErrorCode = "precondition_failed"
	// CodeRetryable: a transient database failure; redelivery may succeed.
	CodeRetryable ErrorCode = "retryable"
	CodeInternal  ErrorCode = "internal"
)

// Error carries the code plus the aggregate operation that produced it.
// Message is safe to return to the notification sender.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 2)
	if op := strings.TrimSpace(e.Op); op != "" {
		parts = append(parts, op)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if len(parts) == 0 {
		return string(e.Code)
	}
	return fmt.Sprintf("%s (%s)", strings.Join(parts, ": "), e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Errorf builds a causeless error with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...any) error {
	return NewError(code, op, fmt.Sprintf(format, args...), nil)
}

// Wrap tags err with code, reusing its text as the message.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var aggErr *Error
	if errors.As(err, &aggErr) {
		return aggErr.Code
	}
	return ""
}

func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether redelivering the same notification may succeed.
func IsRetryable(err error) bool {
	return IsCode(err, CodeRetryable)
}
