// Package apperrors provides the deploy workflow's error taxonomy and exit-code mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrConfig       = errors.New("configuration error")
	ErrPackage      = errors.New("packaging error")
	ErrTransport    = errors.New("transport error")
	ErrAuth         = errors.New("authentication error")
	ErrLaunch       = errors.New("launch error")
	ErrPoll         = errors.New("poll error")
	ErrImportFailed = errors.New("import failed")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For config errors (e.g., "hostname")
	Op       string // Operation that failed (e.g., "webdav.upload")
	Status   int    // HTTP status code when the failure came from a response, 0 otherwise
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel and the cause so both are visible to errors.Is().
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Config creates a configuration error for a specific field.
func Config(field, message string) error {
	return &Error{
		Sentinel: ErrConfig,
		Message:  message,
		Field:    field,
	}
}

// Package creates a packaging error wrapping an underlying cause.
func Package(op string, cause error) error {
	return &Error{
		Sentinel: ErrPackage,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Transport creates an upload failure. status is 0 for network-level failures.
func Transport(op string, status int, message string, cause error) error {
	return &Error{
		Sentinel: ErrTransport,
		Message:  message,
		Op:       op,
		Status:   status,
		Cause:    cause,
	}
}

// Auth creates an authentication failure.
func Auth(message string, cause error) error {
	return &Error{
		Sentinel: ErrAuth,
		Message:  message,
		Op:       "ocapi.authenticate",
		Cause:    cause,
	}
}

// Launch creates an import launch failure.
func Launch(status int, message string, cause error) error {
	return &Error{
		Sentinel: ErrLaunch,
		Message:  message,
		Op:       "ocapi.startImport",
		Status:   status,
		Cause:    cause,
	}
}

// Poll creates a status polling failure.
func Poll(message string, cause error) error {
	return &Error{
		Sentinel: ErrPoll,
		Message:  message,
		Op:       "ocapi.executionStatus",
		Cause:    cause,
	}
}

// ImportFailed reports a job that ran to completion and exited with an error.
func ImportFailed(jobID, executionID string) error {
	return &Error{
		Sentinel: ErrImportFailed,
		Message:  fmt.Sprintf("import job %s execution %s finished with error", jobID, executionID),
		Op:       "job.poll",
	}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}
