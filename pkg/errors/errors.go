package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrExecutionNotFound indicates that no execution exists for the given id
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrCheckpointNotFound indicates that no checkpoint has been persisted for an execution
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrExecutionTerminal indicates that a control action was issued against an execution
	// that has already reached a terminal status
	ErrExecutionTerminal = errors.New("execution already terminal")

	// ErrExecutionNotPaused indicates that resume was requested for an execution that is not paused
	ErrExecutionNotPaused = errors.New("execution is not paused")

	// ErrCapabilityNotRegistered indicates that no executor capability is registered
	// for the requested platform, type and version
	ErrCapabilityNotRegistered = errors.New("executor capability not registered")

	// ErrVersionNotFound indicates that no registered version satisfies a constraint
	ErrVersionNotFound = errors.New("version not found")

	// ErrVersionIncompatible indicates that the only registered versions are incompatible
	// with the declared constraint
	ErrVersionIncompatible = errors.New("version incompatible")
)

// Error represents a structured Daedalus error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsVersionNotFound checks if an error is a version-not-found error
func IsVersionNotFound(err error) bool {
	return errors.Is(err, ErrVersionNotFound)
}

// IsVersionIncompatible checks if an error is a version-incompatible error
func IsVersionIncompatible(err error) bool {
	return errors.Is(err, ErrVersionIncompatible)
}
