// Package apperr defines the coded error type shared by tripassist components.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Code identifies an error condition that callers branch on.
type Code string

const (
	// CodeConfigInvalid marks a missing or unusable configuration value.
	CodeConfigInvalid Code = "CONFIG_INVALID"
	// CodeSubmissionFailed marks an outbound engine call that could not be made or was rejected.
	CodeSubmissionFailed Code = "SUBMISSION_FAILED"
	// CodeValidationFailed marks a payload that does not have the itinerary shape.
	CodeValidationFailed Code = "VALIDATION_FAILED"
	// CodeTimeout marks a result that did not arrive in time.
	CodeTimeout Code = "TIMEOUT"
	// CodeNotFound marks a session that is unknown and past its TTL.
	CodeNotFound Code = "NOT_FOUND"
	// CodeEngineError marks a failure reported by the workflow engine itself.
	CodeEngineError Code = "ENGINE_ERROR"
	// CodeInvalidInput marks a malformed client request.
	CodeInvalidInput Code = "INVALID_INPUT"
)

// Error is a structured error with a code and optional details.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON.
func (e *Error) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: err}
}

// Is reports whether any error in err's chain is an *Error with the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Message returns the human-readable message of a coded error, or err.Error() otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
