// Package errors provides structured error handling for the meeting pipeline.
// Each error carries a code naming the failing subsystem so callers can apply
// the right recovery policy (fail the start, skip the pass, fall back, etc).
package errors

import "fmt"

// Code identifies the subsystem a failure originated in.
type Code string

const (
	CodeUnknown       Code = "unknown"
	CodeCapture       Code = "capture"
	CodeTranscription Code = "transcription"
	CodeDiarization   Code = "diarization"
	CodeSummarization Code = "summarization"
	CodeStorage       Code = "storage"
	CodeConfig        Code = "config"
	CodeUnavailable   Code = "unavailable"
	CodeRateLimited   Code = "rate_limited"
)

// Error is the base error type with a structured code and optional metadata.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// New creates a new Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds a metadata entry to an Error.
func (e *Error) WithMetadata(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// CodeOf extracts the code from an error, walking the cause chain.
// Returns CodeUnknown for nil and non-structured errors.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return CodeUnknown
}

// IsCode checks whether an error carries a specific code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRetryable returns true if the error is worth retrying: transient
// transport and quota failures, not semantic ones.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeUnavailable, CodeRateLimited:
		return true
	default:
		return false
	}
}
