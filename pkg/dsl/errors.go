package dsl

import (
	"fmt"
	"strings"
)

// ParseError indicates that a pipeline document could not be decoded.
type ParseError struct {
	// Format is the serialization that failed ("yaml" or "json").
	Format string
	// Err is the underlying decode error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s pipeline document: %v", e.Format, e.Err)
}

// Unwrap returns the underlying decode error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationKind discriminates structural validation failures.
type ValidationKind string

const (
	// EmptyGraph indicates a pipeline with no nodes.
	EmptyGraph ValidationKind = "EmptyGraph"
	// DuplicateNodeID indicates two nodes sharing an id.
	DuplicateNodeID ValidationKind = "DuplicateNodeId"
	// DanglingEdge indicates an edge endpoint referencing a missing node id.
	DanglingEdge ValidationKind = "DanglingEdge"
	// CycleDetected indicates the graph is not acyclic.
	CycleDetected ValidationKind = "CycleDetected"
)

// ValidationError describes a structural defect in a pipeline graph.
// It is fatal: a graph that fails validation is never compiled or executed.
type ValidationError struct {
	// Kind classifies the defect.
	Kind ValidationKind
	// Detail is a human-readable diagnostic.
	Detail string
	// Cycle lists the node ids involved in the cycle, ascending, when
	// Kind is CycleDetected.
	Cycle []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Kind == CycleDetected && len(e.Cycle) > 0 {
		return fmt.Sprintf("%s: %s (nodes: %s)", e.Kind, e.Detail, strings.Join(e.Cycle, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func newValidationError(kind ValidationKind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
