package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a standardized, machine-comparable error category.
type Code string

const (
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeForbidden        Code = "FORBIDDEN"
	CodeInternal         Code = "INTERNAL"
	CodeUnavailable      Code = "UNAVAILABLE"
	CodeDeadlineExceeded Code = "DEADLINE_EXCEEDED"
)

// AppError is the standard error type for this module and everything
// built on top of it. It carries a stable Code, a human-readable
// Message, and an optional wrapped cause.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with an explicit code.
func New(code Code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Err: cause}
}

// NotFound creates an AppError with CodeNotFound.
func NotFound(message string, cause error) *AppError {
	return New(CodeNotFound, message, cause)
}

// Conflict creates an AppError with CodeConflict.
// Used for optimistic-concurrency and state-precondition failures.
func Conflict(message string, cause error) *AppError {
	return New(CodeConflict, message, cause)
}

// InvalidArgument creates an AppError with CodeInvalidArgument.
func InvalidArgument(message string, cause error) *AppError {
	return New(CodeInvalidArgument, message, cause)
}

// Forbidden creates an AppError with CodeForbidden.
func Forbidden(message string, cause error) *AppError {
	return New(CodeForbidden, message, cause)
}

// Internal creates an AppError with CodeInternal.
func Internal(message string, cause error) *AppError {
	return New(CodeInternal, message, cause)
}

// Unavailable creates an AppError with CodeUnavailable, used for
// transient backend failures that callers should retry.
func Unavailable(message string, cause error) *AppError {
	return New(CodeUnavailable, message, cause)
}

// DeadlineExceeded creates an AppError with CodeDeadlineExceeded.
func DeadlineExceeded(message string, cause error) *AppError {
	return New(CodeDeadlineExceeded, message, cause)
}

// Wrap attaches context to an existing error without discarding its code.
// If err is already an *AppError its code is preserved; otherwise the
// result is CodeInternal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae *AppError
	if As(err, &ae) {
		return New(ae.Code, message+": "+ae.Message, ae.Err)
	}
	return New(CodeInternal, message, err)
}

// Is reports whether err, or any error it wraps, matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target's type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// CodeOf returns the Code of err if it is (or wraps) an *AppError, and
// CodeInternal otherwise.
func CodeOf(err error) Code {
	var ae *AppError
	if As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// IsTransient reports whether err represents a condition a caller
// should retry: unavailability or a deadline.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case CodeUnavailable, CodeDeadlineExceeded:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Code to the conventional HTTP status code.
func HTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
