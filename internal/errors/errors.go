// Package errors defines the typed error values returned by the SDRVault core
// to its boundary layers (HTTP handlers and the ctl tool).
package errors

import (
	stderrors "errors"
	"fmt"
)

// StageError is a core error with a machine-readable code, a human-readable
// message, the HTTP status the boundary layer should answer with, and an
// optional underlying cause.
type StageError struct {
	// Code identifies the error class (e.g., "WorkspaceNotFound").
	Code string
	// Message is a human-readable description of the error.
	Message string
	// HTTPStatus is the HTTP status code the API layer maps this error to.
	HTTPStatus int
	// Cause is the wrapped lower-level error, if any.
	Cause error
}

// Error implements the error interface for StageError.
func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *StageError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a StageError with the same code, so that
// errors.Is(err, ErrWorkspaceNotFound) matches every copy made by
// WithMessage or Wrap.
func (e *StageError) Is(target error) bool {
	t, ok := target.(*StageError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of the StageError with the given message.
func (e *StageError) WithMessage(format string, args ...any) *StageError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy of the StageError carrying cause.
func (e *StageError) Wrap(cause error) *StageError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// As extracts a *StageError from err's chain.
func As(err error) (*StageError, bool) {
	var se *StageError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Pre-defined errors for the core's failure modes.
var (
	// ErrConfiguration is returned when a required connection field is missing.
	ErrConfiguration = &StageError{
		Code:       "ConfigurationError",
		Message:    "Required configuration is missing",
		HTTPStatus: 500,
	}

	// ErrStoreUnavailable is returned when the object store cannot be reached
	// or answers with a server-side failure.
	ErrStoreUnavailable = &StageError{
		Code:       "StoreUnavailable",
		Message:    "The object store is unavailable",
		HTTPStatus: 503,
	}

	// ErrStoreClient is returned when the object store rejects a request
	// (bad credentials, missing bucket, missing key).
	ErrStoreClient = &StageError{
		Code:       "StoreClientError",
		Message:    "The object store rejected the request",
		HTTPStatus: 400,
	}

	// ErrWorkspaceNotFound is returned when a workspace id has no directory.
	ErrWorkspaceNotFound = &StageError{
		Code:       "WorkspaceNotFound",
		Message:    "The specified workspace does not exist",
		HTTPStatus: 404,
	}

	// ErrFileNotFound is returned when neither the requested file nor its
	// compressed sibling exists in the workspace.
	ErrFileNotFound = &StageError{
		Code:       "FileNotFound",
		Message:    "The specified file does not exist",
		HTTPStatus: 404,
	}

	// ErrTranscodeFailure is returned when the external decode step fails or
	// produces no output.
	ErrTranscodeFailure = &StageError{
		Code:       "TranscodeFailure",
		Message:    "Decoding the compressed recording failed",
		HTTPStatus: 500,
	}

	// ErrInvalidArgument is returned when a request parameter is malformed.
	ErrInvalidArgument = &StageError{
		Code:       "InvalidArgument",
		Message:    "Invalid Argument",
		HTTPStatus: 400,
	}

	// ErrInternal is returned for unexpected local failures (disk I/O).
	ErrInternal = &StageError{
		Code:       "InternalError",
		Message:    "We encountered an internal error. Please try again.",
		HTTPStatus: 500,
	}
)
