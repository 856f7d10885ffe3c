package errors

import (
	stderrors "errors"
	"fmt"
)

// Code represents a unique error identifier
type Code string

// Error categories
const (
	// Plan errors (PLAN-001 to PLAN-099)
	ErrCodePlanNotFound     Code = "PLAN-001"
	ErrCodePlanInvalid      Code = "PLAN-002"
	ErrCodePlanParse        Code = "PLAN-003"
	ErrCodePlanTimezone     Code = "PLAN-004"
	ErrCodePlanEntryInvalid Code = "PLAN-005"

	// Step errors (STEP-001 to STEP-099)
	ErrCodeStepUnknownHandler Code = "STEP-001"
	ErrCodeStepFailed         Code = "STEP-002"
	ErrCodeStepInputMissing   Code = "STEP-003"
	ErrCodeStepConfigInvalid  Code = "STEP-004"

	// Queue errors (QUEUE-001 to QUEUE-099)
	ErrCodeQueueJobInvalid Code = "QUEUE-001"
	ErrCodeQueueNotClaimed Code = "QUEUE-002"
	ErrCodeQueueIO         Code = "QUEUE-003"

	// Gate errors (GATE-001 to GATE-099)
	ErrCodeGateInputMissing Code = "GATE-001"
	ErrCodeGateInputInvalid Code = "GATE-002"
	ErrCodeGateFailed       Code = "GATE-003"

	// Upload errors (UPLOAD-001 to UPLOAD-099)
	ErrCodeUploadInputMissing Code = "UPLOAD-001"
	ErrCodeUploadAuthMissing  Code = "UPLOAD-002"
	ErrCodeUploadDepsMissing  Code = "UPLOAD-003"
	ErrCodeUploadAPI          Code = "UPLOAD-004"
	ErrCodeUploadExhausted    Code = "UPLOAD-005"

	// Process supervision errors (PROC-001 to PROC-099)
	ErrCodeProcSpawnFailed  Code = "PROC-001"
	ErrCodeProcNotSupported Code = "PROC-002"
	ErrCodeProcSignalFailed Code = "PROC-003"

	// Path and file I/O errors (IO-001 to IO-099)
	ErrCodePathEscape      Code = "IO-001"
	ErrCodeRunIDInvalid    Code = "IO-002"
	ErrCodeFileNotFound    Code = "IO-003"
	ErrCodeFileReadFailed  Code = "IO-004"
	ErrCodeFileWriteFailed Code = "IO-005"
	ErrCodeFileUnmarshal   Code = "IO-006"
)

// Error is an error with a stable code and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new Error wrapping an existing error
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of err if it carries one, or "" otherwise.
func CodeOf(err error) Code {
	var cerr *Error
	if stderrors.As(err, &cerr) {
		return cerr.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Common constructors

// NewPlanNotFoundError creates a plan file not found error
func NewPlanNotFoundError(path string) *Error {
	return Newf(ErrCodePlanNotFound, "plan file not found: %s", path)
}

// NewUnknownHandlerError creates a fatal unregistered-handler error.
// An unknown handler key is a configuration bug, never retried.
func NewUnknownHandlerError(stepID, handlerKey string) *Error {
	return Newf(ErrCodeStepUnknownHandler,
		"step %q uses unregistered handler %q", stepID, handlerKey)
}

// NewPathEscapeError creates an error for a path leaving the repository root
func NewPathEscapeError(label, value string) *Error {
	return Newf(ErrCodePathEscape, "%s must stay within the repository root: %s", label, value)
}

// NewRunIDInvalidError creates an error for a malformed run id
func NewRunIDInvalidError(runID string) *Error {
	return Newf(ErrCodeRunIDInvalid,
		"run id must be a single path segment without separators or traversal: %q", runID)
}
