// Package executor defines the platform executor capability contract and the
// registry the compiler checks capabilities against. Executors perform the
// actual work of a node; everything above them (validation, retries,
// scheduling) is handled by the node runtime and the engine.
package executor

import (
	"context"
	"errors"
	"fmt"
)

// Result is the successful outcome of one executor invocation.
type Result struct {
	// Outputs is the data produced by the node, keyed by output port name.
	Outputs map[string]interface{}
	// Metrics are invocation measurements (durations, counts) reported by the
	// executor, keyed by metric name.
	Metrics map[string]float64
}

// Executor is the platform adapter capability. Implementations receive the
// node's merged effective configuration and its validated inputs, perform the
// node's work, and return outputs plus metrics.
//
// Execute is the only operation in the system expected to block on external
// I/O; implementations must honor context cancellation.
type Executor interface {
	Execute(ctx context.Context, config map[string]interface{}, inputs map[string]interface{}) (*Result, error)
}

// ErrorKind classifies executor failures.
type ErrorKind string

const (
	// KindTransient marks failures expected to clear on retry (network blips,
	// throttling, timeouts).
	KindTransient ErrorKind = "transient"
	// KindConfig marks failures caused by the node's configuration; retrying
	// cannot help.
	KindConfig ErrorKind = "config"
	// KindInternal marks unexpected executor defects.
	KindInternal ErrorKind = "internal"
)

// ExecutionError is a failed executor invocation. Retryable failures are
// retried by the node runtime until the node's attempt budget is exhausted.
type ExecutionError struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Retryable indicates whether the node runtime may retry the invocation.
	Retryable bool
	// Message is the human-readable failure description.
	Message string
	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("executor %s failure: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("executor %s failure: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// NewTransientError creates a retryable transient failure.
func NewTransientError(message string, err error) *ExecutionError {
	return &ExecutionError{Kind: KindTransient, Retryable: true, Message: message, Err: err}
}

// NewConfigError creates a non-retryable configuration failure.
func NewConfigError(message string, err error) *ExecutionError {
	return &ExecutionError{Kind: KindConfig, Retryable: false, Message: message, Err: err}
}

// NewInternalError creates a non-retryable internal failure.
func NewInternalError(message string, err error) *ExecutionError {
	return &ExecutionError{Kind: KindInternal, Retryable: false, Message: message, Err: err}
}

// IsRetryable reports whether an error is an ExecutionError marked retryable.
func IsRetryable(err error) bool {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Retryable
	}
	return false
}
