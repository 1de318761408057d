package record

import "context"

// Store is the execution record persistence collaborator. The engine is the
// only writer for a given execution id; implementations do not need to
// arbitrate concurrent writers within one execution, only across executions.
type Store interface {
	// CreateExecution persists a new execution record, including its frozen
	// resolved-version snapshot.
	CreateExecution(ctx context.Context, rec *ExecutionRecord) error

	// UpdateNodeExecution upserts one node's record within an execution.
	UpdateNodeExecution(ctx context.Context, executionID string, node NodeExecutionRecord) error

	// UpdateExecutionStatus moves the overall status. Implementations may
	// assume the engine only requests monotonic transitions.
	UpdateExecutionStatus(ctx context.Context, executionID string, status ExecutionStatus) error

	// AppendMetric appends a measurement to the execution's metric list.
	AppendMetric(ctx context.Context, executionID string, metric Metric) error

	// AppendError appends an error to the execution's error list.
	AppendError(ctx context.Context, executionID string, detail ErrorDetail) error

	// SaveCheckpoint persists a checkpoint snapshot.
	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error

	// LoadLatestCheckpoint returns the most recent checkpoint for an
	// execution, or errors.ErrCheckpointNotFound.
	LoadLatestCheckpoint(ctx context.Context, executionID string) (*Checkpoint, error)

	// GetExecution returns the current record for an execution, or
	// errors.ErrExecutionNotFound.
	GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error)
}
