// Package errors provides centralized error definitions and error handling utilities
// for panebus. It defines the sentinel errors of the publishing pipeline, a
// domain error type carrying endpoint context, a semantic validation error, and
// classification helpers.
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewPublishError("dial failed", cause).
//	    WithEndpoint("ipc:///tmp/panebus-1000/default").
//	    WithRetryable(true)
//
//	err := errors.NewValidationError("invalid include pattern").WithField("publish.include")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrConnectFailed) { ... }
//
//	var pubErr *errors.PublishError
//	if errors.As(err, &pubErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is   = errors.Is
	As   = errors.As
	New  = errors.New
	Join = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Publishing sentinel errors
var (
	// ErrNotConnected indicates an operation needed a live bus connection.
	ErrNotConnected = New("publisher not connected")
	// ErrConnectFailed indicates the bus connection could not be established.
	ErrConnectFailed = New("connect failed")
	// ErrSendFailed indicates a message could not be written to the bus.
	ErrSendFailed = New("send failed")
	// ErrAbandoned indicates a connect attempt finished after the publisher was disconnected.
	ErrAbandoned = New("connect attempt abandoned")
	// ErrInvalidEndpoint indicates endpoint options could not be resolved.
	ErrInvalidEndpoint = New("invalid endpoint")
	// ErrInvalidInput indicates that input validation failed. Every
	// ValidationError matches it.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error
// -----------------------------------------------------------------------------

// PanebusError is the base interface for all panebus errors.
type PanebusError interface {
	error
	Unwrap() error
	Severity() Severity
	IsRetryable() bool
}

type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error      { return e.cause }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }

// -----------------------------------------------------------------------------
// Domain Errors
// -----------------------------------------------------------------------------

// PublishError represents a failure in the connect/send/close path of a publisher.
//
// Example:
//
//	err := errors.NewPublishError("write", errors.ErrSendFailed).
//	    WithEndpoint("ipc:///tmp/bus").WithEventType("session.created")
//	fmt.Println(err) // "publish error [endpoint=ipc:///tmp/bus, event=session.created]: write: send failed"
type PublishError struct {
	baseError
	Endpoint  string
	EventType string
}

// NewPublishError creates a new PublishError.
func NewPublishError(message string, cause error) *PublishError {
	return &PublishError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithEndpoint adds the bus endpoint to the error context.
func (e *PublishError) WithEndpoint(endpoint string) *PublishError {
	e.Endpoint = endpoint
	return e
}

// WithEventType adds the type of the event being published.
func (e *PublishError) WithEventType(eventType string) *PublishError {
	e.EventType = eventType
	return e
}

// WithSeverity sets the error severity.
func (e *PublishError) WithSeverity(s Severity) *PublishError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *PublishError) WithRetryable(r bool) *PublishError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *PublishError) Error() string {
	var parts []string
	if e.Endpoint != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", e.Endpoint))
	}
	if e.EventType != "" {
		parts = append(parts, fmt.Sprintf("event=%s", e.EventType))
	}

	prefix := "publish error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("publish error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PublishError) Is(target error) bool {
	if _, ok := target.(*PublishError); ok {
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or configuration.
//
// Example:
//
//	err := errors.NewValidationError("bad glob").WithField("publish.include").WithValue("[")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityWarning,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return target == ErrInvalidInput
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition,
// such as a bus endpoint that nobody is listening on yet.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pErr PanebusError
	if As(err, &pErr) {
		return pErr.IsRetryable()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement PanebusError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var pErr PanebusError
	if As(err, &pErr) {
		return pErr.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
