package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a status change breaks the state machine
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Code is a stable, caller-facing error category.
type Code string

const (
	CodeInvalidArgument Code = "invalid_argument"
	CodeUnauthenticated Code = "unauthenticated"
	CodeNotFound        Code = "not_found"
	CodeConflict        Code = "conflict"
	CodeInternal        Code = "internal"
)

// Error is a coded application error. It wraps an optional cause so that
// errors.Is and errors.As keep working through it.
type Error struct {
	Code    Code
	Message string
	// Field names the offending input, if any
	Field string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Invalid creates an invalid-argument error.
func Invalid(message string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: message}
}

// Invalidf creates an invalid-argument error with a formatted message.
func Invalidf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// InvalidField creates an invalid-argument error tied to one input field.
func InvalidField(field string, cause error) *Error {
	return &Error{
		Code:    CodeInvalidArgument,
		Message: fmt.Sprintf("invalid %s", field),
		Field:   field,
		Cause:   cause,
	}
}

// Unauthenticated creates the error returned when the authorization gate refuses a caller.
func Unauthenticated() *Error {
	return &Error{Code: CodeUnauthenticated, Message: "caller is not authorized"}
}

// NotFoundf creates a not-found error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf creates a conflict error.
func Conflictf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure.
func Internal(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: CodeInternal, Message: message, Cause: err}
}

// CodeOf returns the code carried by err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// FieldOf returns the offending field carried by err, if any.
func FieldOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
