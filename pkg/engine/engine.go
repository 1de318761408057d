// Package engine drives compiled pipeline graphs to completion: frontier
// scheduling in sequential or parallel mode, retry-aware node dispatch,
// checkpointing after every terminal node, and the pause/resume/cancel
// control surface.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/compiler"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/events"
	"github.com/wehubfusion/Daedalus/pkg/executor"
	"github.com/wehubfusion/Daedalus/pkg/record"
	"github.com/wehubfusion/Daedalus/pkg/runtime"
)

// CheckpointWriteError reports a failed checkpoint persistence. It is fatal to
// the execution: resuming from a silently lost checkpoint would re-run or skip
// the wrong nodes.
type CheckpointWriteError struct {
	ExecutionID string
	Err         error
}

// Error implements the error interface.
func (e *CheckpointWriteError) Error() string {
	return fmt.Sprintf("failed to write checkpoint for execution %s: %v", e.ExecutionID, e.Err)
}

// Unwrap returns the underlying store error.
func (e *CheckpointWriteError) Unwrap() error { return e.Err }

// NodeProgress is one entry of the progress report.
type NodeProgress struct {
	NodeID       string            `json:"nodeId"`
	Status       record.NodeStatus `json:"status"`
	AttemptCount int               `json:"attemptCount"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPublisher sets the progress event publisher.
func WithPublisher(publisher events.Publisher) Option {
	return func(e *Engine) {
		if publisher != nil {
			e.publisher = publisher
		}
	}
}

// WithRand sets the randomness source used to seed retry backoff jitter. The
// default engine uses no jitter, which keeps retry schedules deterministic.
// Each node invocation draws from its own source derived from this one, so
// parallel workers never contend on it.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// Engine executes compiled graphs. One Engine serves any number of executions;
// each execution's mutable state is owned by a single scheduler goroutine, so
// no locks are shared across executions.
type Engine struct {
	store  record.Store
	runner *runtime.Runner
	logger *zap.Logger
	tracer trace.Tracer

	pubMu     sync.RWMutex
	publisher events.Publisher

	rngMu sync.Mutex
	rng   *rand.Rand

	mu         sync.Mutex
	executions map[string]*execution
}

// New creates an engine dispatching executor invocations through the given
// capability registry and persisting records to the given store.
func New(store record.Store, capabilities *executor.Registry, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		publisher:  events.NopPublisher{},
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("daedalus/engine"),
		executions: make(map[string]*execution),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.runner = runtime.NewRunner(capabilities, e.logger)
	return e
}

// Start begins executing a compiled graph and returns the new execution id.
// The resolved-version snapshot is persisted before any node runs; the
// scheduler then runs in the background until the execution reaches a
// terminal state or is paused.
func (e *Engine) Start(ctx context.Context, graph *compiler.CompiledGraph, variables map[string]interface{}) (string, error) {
	executionID := uuid.New().String()
	ex := newExecution(executionID, graph, variables)

	rec := &record.ExecutionRecord{
		ExecutionID:      executionID,
		PipelineID:       graph.PipelineID(),
		PipelineName:     graph.Name(),
		PipelineVersion:  graph.PipelineVersion(),
		ResolvedVersions: graph.ResolvedVersions(),
		Status:           record.ExecutionPending,
		Nodes:            make([]record.NodeExecutionRecord, 0, graph.Len()),
		StartedAt:        time.Now().UTC(),
	}
	for _, id := range graph.Order() {
		rec.Nodes = append(rec.Nodes, record.NodeExecutionRecord{NodeID: id, Status: record.NodePending})
	}
	if err := e.store.CreateExecution(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to create execution record: %w", err)
	}
	if err := e.store.UpdateExecutionStatus(ctx, executionID, record.ExecutionRunning); err != nil {
		return "", fmt.Errorf("failed to update execution status: %w", err)
	}

	e.mu.Lock()
	e.executions[executionID] = ex
	e.mu.Unlock()

	e.logger.Info("Execution started",
		zap.String("executionId", executionID),
		zap.String("pipelineId", graph.PipelineID()),
		zap.String("mode", string(graph.Execution().Mode)),
		zap.Int("nodes", graph.Len()))

	e.publish(ctx, events.Event{
		Kind:        events.KindExecutionStarted,
		ExecutionID: executionID,
		PipelineID:  graph.PipelineID(),
		Status:      string(record.ExecutionRunning),
		Timestamp:   time.Now().UTC(),
	})

	e.launch(ex)
	return executionID, nil
}

// Wait blocks until the execution reaches a terminal state or the context is
// cancelled. A paused execution does not complete Wait until it is resumed and
// finishes, or cancelled.
func (e *Engine) Wait(ctx context.Context, executionID string) error {
	ex, err := e.execution(executionID)
	if err != nil {
		return err
	}
	select {
	case <-ex.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause stops dispatching new frontier members. In-flight node invocations
// finish and are recorded; the execution then settles at PAUSED with a final
// checkpoint.
func (e *Engine) Pause(executionID string) error {
	ex, err := e.execution(executionID)
	if err != nil {
		return err
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.status.Terminal() {
		return sdkerrors.ErrExecutionTerminal
	}
	ex.pauseRequested = true
	e.logger.Info("Pause requested", zap.String("executionId", executionID))
	return nil
}

// Resume continues a paused execution from its last checkpoint. Nodes already
// SUCCEEDED or SKIPPED in the checkpoint are never re-executed; every other
// node is re-evaluated from PENDING.
func (e *Engine) Resume(ctx context.Context, executionID string) error {
	ex, err := e.execution(executionID)
	if err != nil {
		return err
	}

	ex.mu.Lock()
	if ex.status != record.ExecutionPaused {
		ex.mu.Unlock()
		return sdkerrors.ErrExecutionNotPaused
	}

	checkpoint, err := e.store.LoadLatestCheckpoint(ctx, executionID)
	if err != nil {
		ex.mu.Unlock()
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	ex.restoreLocked(checkpoint)
	ex.status = record.ExecutionRunning
	ex.pauseRequested = false
	ex.mu.Unlock()

	if err := e.store.UpdateExecutionStatus(ctx, executionID, record.ExecutionRunning); err != nil {
		return fmt.Errorf("failed to update execution status: %w", err)
	}

	e.logger.Info("Execution resumed",
		zap.String("executionId", executionID),
		zap.Int("checkpointSequence", checkpoint.Sequence))

	e.publish(ctx, events.Event{
		Kind:        events.KindExecutionResumed,
		ExecutionID: executionID,
		PipelineID:  ex.graph.PipelineID(),
		Status:      string(record.ExecutionRunning),
		Timestamp:   time.Now().UTC(),
	})

	e.launch(ex)
	return nil
}

// Cancel requests cooperative abort. In-flight invocations are interrupted at
// their next lifecycle boundary; all non-terminal nodes end CANCELLED and the
// execution settles at CANCELLED.
func (e *Engine) Cancel(executionID string) error {
	ex, err := e.execution(executionID)
	if err != nil {
		return err
	}

	ex.mu.Lock()
	if ex.status.Terminal() {
		ex.mu.Unlock()
		return sdkerrors.ErrExecutionTerminal
	}
	ex.cancelRequested = true
	paused := ex.status == record.ExecutionPaused
	cancelRun := ex.cancelRun
	ex.mu.Unlock()

	e.logger.Info("Cancel requested", zap.String("executionId", executionID))

	if cancelRun != nil {
		cancelRun()
	}
	if paused {
		// No scheduler is running; finalize directly.
		e.finalizeCancelled(ex)
	}
	return nil
}

// Progress reports the current per-node status and attempt counts, in the
// graph's topological order.
func (e *Engine) Progress(executionID string) ([]NodeProgress, error) {
	ex, err := e.execution(executionID)
	if err != nil {
		return nil, err
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()

	progress := make([]NodeProgress, 0, ex.graph.Len())
	for _, id := range ex.graph.Order() {
		progress = append(progress, NodeProgress{
			NodeID:       id,
			Status:       ex.statuses[id],
			AttemptCount: ex.attempts[id],
		})
	}
	return progress, nil
}

// Status returns the overall status of an execution.
func (e *Engine) Status(executionID string) (record.ExecutionStatus, error) {
	ex, err := e.execution(executionID)
	if err != nil {
		return "", err
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.status, nil
}

func (e *Engine) execution(executionID string) (*execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ex, ok := e.executions[executionID]
	if !ok {
		return nil, sdkerrors.ErrExecutionNotFound
	}
	return ex, nil
}

// launch starts the scheduler goroutine for one run segment (initial start or
// a resume).
func (e *Engine) launch(ex *execution) {
	runCtx, cancel := context.WithCancel(context.Background())
	ex.mu.Lock()
	ex.cancelRun = cancel
	ex.mu.Unlock()
	go e.run(runCtx, ex)
}

// SetPublisher replaces the progress event publisher. Executions already in
// flight stay attached to the engine and route their next event through the
// new publisher.
func (e *Engine) SetPublisher(publisher events.Publisher) {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	e.pubMu.Lock()
	e.publisher = publisher
	e.pubMu.Unlock()
}

// nodeRand derives an independent jitter source for a single node invocation.
// math/rand sources are not safe for concurrent use, so parallel workers must
// never share the engine's seed source directly.
func (e *Engine) nodeRand() *rand.Rand {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	if e.rng == nil {
		return nil
	}
	return rand.New(rand.NewSource(e.rng.Int63()))
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	e.pubMu.RLock()
	publisher := e.publisher
	e.pubMu.RUnlock()
	// Publishing is best effort; a delivery failure never affects the
	// execution outcome.
	if err := publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("Failed to publish event",
			zap.String("executionId", event.ExecutionID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err))
	}
}
