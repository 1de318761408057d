// Package record defines the execution audit trail: per-run execution records,
// per-node attempt records, checkpoints, and the store contract they are
// persisted through.
package record

import (
	"time"

	"github.com/wehubfusion/Daedalus/pkg/version"
)

// ExecutionStatus is the overall status of one pipeline execution.
// Transitions are monotonic: once a terminal status is reached the record
// never moves back to a non-terminal one.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionPaused    ExecutionStatus = "PAUSED"
	ExecutionSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionSucceeded, ExecutionFailed, ExecutionCancelled:
		return true
	}
	return false
}

// NodeStatus is the per-node lifecycle state.
type NodeStatus string

const (
	NodePending    NodeStatus = "PENDING"
	NodeValidating NodeStatus = "VALIDATING"
	NodeRunning    NodeStatus = "RUNNING"
	NodeRetrying   NodeStatus = "RETRYING"
	NodeSucceeded  NodeStatus = "SUCCEEDED"
	NodeFailed     NodeStatus = "FAILED"
	NodeSkipped    NodeStatus = "SKIPPED"
	NodeCancelled  NodeStatus = "CANCELLED"
)

// Terminal reports whether the node state is final.
func (s NodeStatus) Terminal() bool {
	switch s {
	case NodeSucceeded, NodeFailed, NodeSkipped, NodeCancelled:
		return true
	}
	return false
}

// NodeExecutionRecord captures one node's progress within an execution.
type NodeExecutionRecord struct {
	NodeID string     `json:"nodeId"`
	Status NodeStatus `json:"status"`
	// Attempts counts executor invocations made so far. It never exceeds the
	// node's retry policy attempt budget.
	Attempts    int        `json:"attempts"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	// Outputs are the node's captured outputs, present only after success.
	Outputs map[string]interface{} `json:"outputs,omitempty"`
	// Error is the failure detail, present only after failure.
	Error string `json:"error,omitempty"`
}

// Metric is a single measurement reported during an execution.
type Metric struct {
	NodeID    string    `json:"nodeId,omitempty"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail is a recorded execution error.
type ErrorDetail struct {
	NodeID    string    `json:"nodeId,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Checkpoint is a snapshot sufficient to resume an execution without
// re-running completed work. The engine persists one after every node reaches
// a terminal per-node state; writes are serialized by a single owner.
type Checkpoint struct {
	ExecutionID string `json:"executionId"`
	// Sequence increases by one per checkpoint within an execution.
	Sequence int `json:"sequence"`
	// Statuses holds the per-node status at snapshot time.
	Statuses map[string]NodeStatus `json:"statuses"`
	// Attempts holds per-node attempt counts at snapshot time.
	Attempts map[string]int `json:"attempts"`
	// Outputs holds the captured outputs of every succeeded node.
	Outputs map[string]map[string]interface{} `json:"outputs"`
	// Frontier lists the node ids that were eligible to run at snapshot time.
	Frontier []string `json:"frontier"`
	// Status is the overall execution status at snapshot time.
	Status    ExecutionStatus `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ExecutionRecord is the full audit trail of one execution. The resolved
// version snapshot is written once at execution start and never changes for
// the life of the record, guaranteeing the run is reproducible.
type ExecutionRecord struct {
	ExecutionID     string `json:"executionId"`
	PipelineID      string `json:"pipelineId"`
	PipelineName    string `json:"pipelineName"`
	PipelineVersion string `json:"pipelineVersion"`
	// ResolvedVersions is the frozen per-node version snapshot.
	ResolvedVersions map[string]version.ResolvedPair `json:"resolvedVersions"`
	Status           ExecutionStatus                 `json:"status"`
	Nodes            []NodeExecutionRecord           `json:"nodes"`
	Metrics          []Metric                        `json:"metrics,omitempty"`
	Errors           []ErrorDetail                   `json:"errors,omitempty"`
	Checkpoint       *Checkpoint                     `json:"checkpoint,omitempty"`
	StartedAt        time.Time                       `json:"startedAt"`
	CompletedAt      *time.Time                      `json:"completedAt,omitempty"`
}

// Node returns the node record with the given id, or nil.
func (r *ExecutionRecord) Node(nodeID string) *NodeExecutionRecord {
	for i := range r.Nodes {
		if r.Nodes[i].NodeID == nodeID {
			return &r.Nodes[i]
		}
	}
	return nil
}
