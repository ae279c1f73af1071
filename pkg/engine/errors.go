package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a reconciliation failure. The kind decides how far a
// failure propagates: configuration errors stop the whole run before any
// resource is touched, every other kind fails only the affected resource and
// the resources that depend on it.
type ErrorKind string

const (
	// ErrorKindConfiguration indicates bad or missing input, or a cyclic
	// dependency graph. Fatal: no partial run is attempted.
	ErrorKindConfiguration ErrorKind = "configuration"

	// ErrorKindInspection indicates the current state of a resource could not
	// be determined.
	ErrorKindInspection ErrorKind = "inspection"

	// ErrorKindPathConflict indicates a foreign object occupies a managed path.
	// The object is never removed.
	ErrorKindPathConflict ErrorKind = "path_conflict"

	// ErrorKindExecution indicates a create, copy, start or stop operation failed.
	ErrorKindExecution ErrorKind = "execution"

	// ErrorKindBlocked is recorded on resources that were not attempted because
	// a dependency failed.
	ErrorKindBlocked ErrorKind = "blocked_by_dependency"
)

// EngineError represents a classified error with resource context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource ID that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the action being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s)", e.Kind, msg, e.Resource, e.Operation)
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s)", e.Kind, msg, e.Resource)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

// Reason returns the message and underlying cause without the kind and
// resource decoration. It is what the CLI prints after the resource ID.
func (e *EngineError) Reason() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *EngineError {
	return &EngineError{
		Kind:    ErrorKindConfiguration,
		Message: message,
		Err:     err,
	}
}

// NewInspectionError creates a new inspection error.
func NewInspectionError(message string, err error) *EngineError {
	return &EngineError{
		Kind:    ErrorKindInspection,
		Message: message,
		Err:     err,
	}
}

// NewPathConflictError creates a new path conflict error.
func NewPathConflictError(path string) *EngineError {
	return &EngineError{
		Kind:    ErrorKindPathConflict,
		Message: fmt.Sprintf("path %s is occupied by a foreign object", path),
		Code:    ErrCodeConflict,
	}
}

// NewExecutionError creates a new execution error.
func NewExecutionError(message string, err error) *EngineError {
	return &EngineError{
		Kind:    ErrorKindExecution,
		Message: message,
		Err:     err,
	}
}

// NewBlockedError creates the error recorded on a resource whose dependency failed.
func NewBlockedError(resourceID, dependencyID string) *EngineError {
	return &EngineError{
		Kind:     ErrorKindBlocked,
		Message:  fmt.Sprintf("dependency %s failed", dependencyID),
		Code:     ErrCodeDependencyFailed,
		Resource: resourceID,
	}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resourceID string) *EngineError {
	e.Resource = resourceID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of a classified error, or the empty kind.
func KindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsConfiguration returns true if the error is a configuration error.
func IsConfiguration(err error) bool {
	return KindOf(err) == ErrorKindConfiguration
}

// IsInspection returns true if the error is an inspection error.
func IsInspection(err error) bool {
	return KindOf(err) == ErrorKindInspection
}

// IsPathConflict returns true if the error is a path conflict.
func IsPathConflict(err error) bool {
	return KindOf(err) == ErrorKindPathConflict
}

// IsExecution returns true if the error is an execution error.
func IsExecution(err error) bool {
	return KindOf(err) == ErrorKindExecution
}

// IsBlocked returns true if the resource was blocked by a failed dependency.
func IsBlocked(err error) bool {
	return KindOf(err) == ErrorKindBlocked
}

// Common error codes.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeCycle            = "DEPENDENCY_CYCLE"
	ErrCodePolicyDenied     = "POLICY_DENIED"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeEngineFailed     = "ENGINE_FAILED"
	ErrCodeDependencyFailed = "DEPENDENCY_FAILED"
)
