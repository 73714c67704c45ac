package types

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code. Codes cross the API
// boundary verbatim; human wording is left to clients.
type Code string

const (
	CodeRuntimeUnavailable     Code = "runtime-unavailable"
	CodeNotReady               Code = "not-ready"
	CodeStaleState             Code = "stale-state"
	CodeAlreadyRunning         Code = "already-running"
	CodeConcurrentModification Code = "concurrent-modification"
	CodeUnknownProject         Code = "unknown-project"
	CodeProjectConflict        Code = "project-conflict"
	CodeUnknownToken           Code = "unknown-token"
	CodeInvalidScope           Code = "invalid-scope"
	CodeUnauthorized           Code = "unauthorized"
	CodeInvalidRequest         Code = "invalid-request"
	CodeTimeout                Code = "timeout"
	CodeInternal               Code = "internal"
)

// CodedError pairs a stable code with a message and optional detail.
type CodedError struct {
	Code    Code
	Message string
	Details map[string]any
}

func (e *CodedError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewCodedError builds a CodedError with a formatted message.
func NewCodedError(code Code, format string, args ...any) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a detail entry and returns the error for chaining.
func (e *CodedError) WithDetail(key string, value any) *CodedError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// CodeOf extracts the stable code from err, unwrapping as needed. Errors
// without a code map to CodeInternal.
func CodeOf(err error) Code {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}
