package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind represents the category of a workflow error.
type ErrorKind string

const (
	// ErrorKindNotFound indicates an entity id the service could not resolve.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindValidation indicates malformed local input, such as a missing file.
	ErrorKindValidation ErrorKind = "validation_error"

	// ErrorKindPrecondition indicates an operation requested from the wrong lifecycle state.
	ErrorKindPrecondition ErrorKind = "precondition_failed"

	// ErrorKindBusy indicates a duplicate request while an identical one is in flight.
	ErrorKindBusy ErrorKind = "busy"

	// ErrorKindTransport indicates a network or service failure.
	ErrorKindTransport ErrorKind = "transport_error"

	// ErrorKindSessionInvalid indicates the bearer token was rejected.
	ErrorKindSessionInvalid ErrorKind = "session_invalid"
)

// Local reports whether errors of this kind are raised without any network call.
func (k ErrorKind) Local() bool {
	switch k {
	case ErrorKindValidation, ErrorKindPrecondition, ErrorKindBusy:
		return true
	default:
		return false
	}
}

// WorkflowError is the single error type surfaced by the workflow controller,
// its stores and the design service client.
type WorkflowError struct {
	// Kind is the category of error
	Kind ErrorKind `json:"kind"`

	// Op is the operation that failed (e.g. "run_export")
	Op string `json:"op,omitempty"`

	// Message is the human-readable error message, server supplied when available
	Message string `json:"message"`

	// StatusCode is the HTTP status returned by the service, if any
	StatusCode int `json:"-"`

	// Err is the underlying cause
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is matches another *WorkflowError by kind, so errors.Is(err, ErrBusy) works.
func (e *WorkflowError) Is(target error) bool {
	t, ok := target.(*WorkflowError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == ""
}

// NewWorkflowError creates a new workflow error.
func NewWorkflowError(kind ErrorKind, message string) *WorkflowError {
	return &WorkflowError{
		Kind:    kind,
		Message: message,
	}
}

// WithOp records the failing operation.
func (e *WorkflowError) WithOp(op string) *WorkflowError {
	e.Op = op
	return e
}

// WithStatusCode records the HTTP status returned by the service.
func (e *WorkflowError) WithStatusCode(code int) *WorkflowError {
	e.StatusCode = code
	return e
}

// WithCause wraps an underlying error.
func (e *WorkflowError) WithCause(err error) *WorkflowError {
	e.Err = err
	return e
}

// Sentinel values for errors.Is comparisons.
var (
	ErrNotFound       = &WorkflowError{Kind: ErrorKindNotFound}
	ErrValidation     = &WorkflowError{Kind: ErrorKindValidation}
	ErrPrecondition   = &WorkflowError{Kind: ErrorKindPrecondition}
	ErrBusy           = &WorkflowError{Kind: ErrorKindBusy}
	ErrTransport      = &WorkflowError{Kind: ErrorKindTransport}
	ErrSessionInvalid = &WorkflowError{Kind: ErrorKindSessionInvalid}
)

// Convenience constructors for common errors

// ErrNotFoundf creates a not found error.
func ErrNotFoundf(format string, args ...any) *WorkflowError {
	return NewWorkflowError(ErrorKindNotFound, fmt.Sprintf(format, args...))
}

// ErrValidationf creates a local input validation error.
func ErrValidationf(format string, args ...any) *WorkflowError {
	return NewWorkflowError(ErrorKindValidation, fmt.Sprintf(format, args...))
}

// ErrPreconditionf creates a precondition failure.
func ErrPreconditionf(format string, args ...any) *WorkflowError {
	return NewWorkflowError(ErrorKindPrecondition, fmt.Sprintf(format, args...))
}

// ErrBusyf creates a busy error.
func ErrBusyf(format string, args ...any) *WorkflowError {
	return NewWorkflowError(ErrorKindBusy, fmt.Sprintf(format, args...))
}

// ErrTransportf creates a transport error.
func ErrTransportf(format string, args ...any) *WorkflowError {
	return NewWorkflowError(ErrorKindTransport, fmt.Sprintf(format, args...))
}

// KindForStatus maps an HTTP status code returned by the service to an error kind.
func KindForStatus(code int) ErrorKind {
	switch code {
	case http.StatusNotFound:
		return ErrorKindNotFound
	case http.StatusUnauthorized:
		return ErrorKindSessionInvalid
	default:
		return ErrorKindTransport
	}
}

// KindOf returns the kind of err, or the empty kind when err is not a WorkflowError.
func KindOf(err error) ErrorKind {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Kind
	}
	return ""
}

// IsKind reports whether err is a WorkflowError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// AsWorkflowError returns err as a WorkflowError tagged with op. Errors that are
// not already classified are reported as transport errors.
func AsWorkflowError(op string, err error) *WorkflowError {
	if err == nil {
		return nil
	}
	var we *WorkflowError
	if errors.As(err, &we) {
		if we.Op == "" {
			copied := *we
			copied.Op = op
			return &copied
		}
		return we
	}
	return NewWorkflowError(ErrorKindTransport, err.Error()).WithOp(op).WithCause(err)
}
