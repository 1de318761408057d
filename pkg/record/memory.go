package record

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// MemoryStore is an in-process Store for tests and embedded use.
// Records are deep-copied on the way in and out so callers cannot mutate
// stored state behind the store's back.
type MemoryStore struct {
	mu          sync.RWMutex
	executions  map[string]*ExecutionRecord
	checkpoints map[string][]*Checkpoint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		executions:  make(map[string]*ExecutionRecord),
		checkpoints: make(map[string][]*Checkpoint),
	}
}

// CreateExecution implements Store.
func (s *MemoryStore) CreateExecution(_ context.Context, rec *ExecutionRecord) error {
	if rec == nil || rec.ExecutionID == "" {
		return fmt.Errorf("execution record needs an execution id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.executions[rec.ExecutionID]; exists {
		return fmt.Errorf("execution '%s' already exists", rec.ExecutionID)
	}
	clone, err := cloneRecord(rec)
	if err != nil {
		return err
	}
	s.executions[rec.ExecutionID] = clone
	return nil
}

// UpdateNodeExecution implements Store.
func (s *MemoryStore) UpdateNodeExecution(_ context.Context, executionID string, node NodeExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return fmt.Errorf("%w: %s", sdkerrors.ErrExecutionNotFound, executionID)
	}
	for i := range rec.Nodes {
		if rec.Nodes[i].NodeID == node.NodeID {
			rec.Nodes[i] = node
			return nil
		}
	}
	rec.Nodes = append(rec.Nodes, node)
	return nil
}

// UpdateExecutionStatus implements Store.
func (s *MemoryStore) UpdateExecutionStatus(_ context.Context, executionID string, status ExecutionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return fmt.Errorf("%w: %s", sdkerrors.ErrExecutionNotFound, executionID)
	}
	rec.Status = status
	if status.Terminal() && rec.CompletedAt == nil {
		now := time.Now().UTC()
		rec.CompletedAt = &now
	}
	return nil
}

// AppendMetric implements Store.
func (s *MemoryStore) AppendMetric(_ context.Context, executionID string, metric Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return fmt.Errorf("%w: %s", sdkerrors.ErrExecutionNotFound, executionID)
	}
	rec.Metrics = append(rec.Metrics, metric)
	return nil
}

// AppendError implements Store.
func (s *MemoryStore) AppendError(_ context.Context, executionID string, detail ErrorDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return fmt.Errorf("%w: %s", sdkerrors.ErrExecutionNotFound, executionID)
	}
	rec.Errors = append(rec.Errors, detail)
	return nil
}

// SaveCheckpoint implements Store.
func (s *MemoryStore) SaveCheckpoint(_ context.Context, checkpoint *Checkpoint) error {
	if checkpoint == nil || checkpoint.ExecutionID == "" {
		return fmt.Errorf("checkpoint needs an execution id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.executions[checkpoint.ExecutionID]
	if !ok {
		return fmt.Errorf("%w: %s", sdkerrors.ErrExecutionNotFound, checkpoint.ExecutionID)
	}
	clone, err := cloneCheckpoint(checkpoint)
	if err != nil {
		return err
	}
	s.checkpoints[checkpoint.ExecutionID] = append(s.checkpoints[checkpoint.ExecutionID], clone)
	rec.Checkpoint = clone
	return nil
}

// LoadLatestCheckpoint implements Store.
func (s *MemoryStore) LoadLatestCheckpoint(_ context.Context, executionID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.checkpoints[executionID]
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: execution %s", sdkerrors.ErrCheckpointNotFound, executionID)
	}
	return cloneCheckpoint(history[len(history)-1])
}

// GetExecution implements Store.
func (s *MemoryStore) GetExecution(_ context.Context, executionID string) (*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sdkerrors.ErrExecutionNotFound, executionID)
	}
	return cloneRecord(rec)
}

// CheckpointCount returns the number of checkpoints persisted for an
// execution. Test helper.
func (s *MemoryStore) CheckpointCount(executionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.checkpoints[executionID])
}

func cloneRecord(rec *ExecutionRecord) (*ExecutionRecord, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to clone execution record: %w", err)
	}
	var clone ExecutionRecord
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("failed to clone execution record: %w", err)
	}
	return &clone, nil
}

func cloneCheckpoint(checkpoint *Checkpoint) (*Checkpoint, error) {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to clone checkpoint: %w", err)
	}
	var clone Checkpoint
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("failed to clone checkpoint: %w", err)
	}
	return &clone, nil
}
