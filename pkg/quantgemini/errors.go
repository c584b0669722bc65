package quantgemini

import (
	"errors"
	"fmt"
)

// ErrorCode defines error classification codes for structured error handling.
type ErrorCode string

// Error codes for different error categories.
const (
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeDatabase     ErrorCode = "DATABASE_ERROR"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	// ErrCodeTransport covers network, auth and quota failures of a model call.
	ErrCodeTransport ErrorCode = "TRANSPORT_FAILURE"
	// ErrCodeFormat covers model output that is not valid JSON for the analysis schema.
	ErrCodeFormat ErrorCode = "FORMAT_FAILURE"
)

// Error represents a structured error with classification code.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with classification code and additional context.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost structured error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsErrorCode checks if an error matches a specific error code.
func IsErrorCode(err error, code ErrorCode) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}

// IsAnalysisFailure reports whether err is one of the two pipeline failure kinds.
func IsAnalysisFailure(err error) bool {
	return IsErrorCode(err, ErrCodeTransport) || IsErrorCode(err, ErrCodeFormat)
}
