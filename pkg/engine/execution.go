package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/compiler"
	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/dsl"
	"github.com/wehubfusion/Daedalus/pkg/events"
	"github.com/wehubfusion/Daedalus/pkg/record"
	"github.com/wehubfusion/Daedalus/pkg/runtime"
)

// execution is the per-run mutable state. It is owned by the single scheduler
// goroutine while the run is active; the mutex only arbitrates the control
// surface (pause/cancel/progress) against the scheduler.
type execution struct {
	id        string
	graph     *compiler.CompiledGraph
	variables map[string]interface{}

	mu          sync.Mutex
	status      record.ExecutionStatus
	statuses    map[string]record.NodeStatus
	attempts    map[string]int
	outputs     map[string]map[string]interface{}
	startedAt   map[string]time.Time
	completedAt map[string]time.Time
	sequence    int

	pauseRequested  bool
	cancelRequested bool
	cancelRun       context.CancelFunc

	finished   chan struct{}
	finishOnce sync.Once
}

func newExecution(id string, graph *compiler.CompiledGraph, variables map[string]interface{}) *execution {
	ex := &execution{
		id:          id,
		graph:       graph,
		variables:   variables,
		status:      record.ExecutionRunning,
		statuses:    make(map[string]record.NodeStatus, graph.Len()),
		attempts:    make(map[string]int, graph.Len()),
		outputs:     make(map[string]map[string]interface{}),
		startedAt:   make(map[string]time.Time),
		completedAt: make(map[string]time.Time),
		finished:    make(chan struct{}),
	}
	for _, nodeID := range graph.Order() {
		ex.statuses[nodeID] = record.NodePending
	}
	return ex
}

func (ex *execution) markFinished() {
	ex.finishOnce.Do(func() { close(ex.finished) })
}

// restoreLocked rebuilds the in-memory state from a checkpoint. Only
// SUCCEEDED and SKIPPED are trusted as settled; every other node is
// re-evaluated from PENDING. Caller holds ex.mu.
func (ex *execution) restoreLocked(checkpoint *record.Checkpoint) {
	ex.sequence = checkpoint.Sequence
	for _, nodeID := range ex.graph.Order() {
		switch checkpoint.Statuses[nodeID] {
		case record.NodeSucceeded:
			ex.statuses[nodeID] = record.NodeSucceeded
			ex.attempts[nodeID] = checkpoint.Attempts[nodeID]
			if outputs, ok := checkpoint.Outputs[nodeID]; ok {
				ex.outputs[nodeID] = outputs
			}
		case record.NodeSkipped:
			ex.statuses[nodeID] = record.NodeSkipped
			ex.attempts[nodeID] = checkpoint.Attempts[nodeID]
		default:
			ex.statuses[nodeID] = record.NodePending
			ex.attempts[nodeID] = 0
			delete(ex.outputs, nodeID)
			delete(ex.startedAt, nodeID)
			delete(ex.completedAt, nodeID)
		}
	}
}

// allTerminalLocked reports whether every node has settled. Caller holds ex.mu.
func (ex *execution) allTerminalLocked() bool {
	for _, status := range ex.statuses {
		if !status.Terminal() {
			return false
		}
	}
	return true
}

// readyLocked returns the frontier in deterministic order: PENDING nodes whose
// predecessors are all terminal, ascending by topological position. Caller
// holds ex.mu.
func (ex *execution) readyLocked() []string {
	var ready []string
	for _, nodeID := range ex.graph.Order() {
		if ex.statuses[nodeID] != record.NodePending {
			continue
		}
		eligible := true
		for _, pred := range ex.graph.Predecessors(nodeID) {
			if !ex.statuses[pred].Terminal() {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, nodeID)
		}
	}
	return ready
}

// inputsFor assembles a node's resolved inputs: the execution variables
// overlaid with each succeeded predecessor's outputs in ascending order.
func (ex *execution) inputsFor(nodeID string) map[string]interface{} {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	inputs := make(map[string]interface{}, len(ex.variables))
	for key, value := range ex.variables {
		inputs[key] = value
	}
	for _, pred := range ex.graph.Predecessors(nodeID) {
		if ex.statuses[pred] != record.NodeSucceeded {
			continue
		}
		for key, value := range ex.outputs[pred] {
			inputs[key] = value
		}
	}
	return inputs
}

// snapshot builds the next checkpoint and advances the sequence.
func (ex *execution) snapshot() *record.Checkpoint {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	ex.sequence++
	checkpoint := &record.Checkpoint{
		ExecutionID: ex.id,
		Sequence:    ex.sequence,
		Statuses:    make(map[string]record.NodeStatus, len(ex.statuses)),
		Attempts:    make(map[string]int, len(ex.attempts)),
		Outputs:     make(map[string]map[string]interface{}, len(ex.outputs)),
		Frontier:    ex.readyLocked(),
		Status:      ex.status,
		CreatedAt:   time.Now().UTC(),
	}
	for nodeID, status := range ex.statuses {
		checkpoint.Statuses[nodeID] = status
	}
	for nodeID, attempts := range ex.attempts {
		checkpoint.Attempts[nodeID] = attempts
	}
	for nodeID, outputs := range ex.outputs {
		checkpoint.Outputs[nodeID] = outputs
	}
	return checkpoint
}

// nodeRecordLocked builds the persisted view of one node. Caller holds ex.mu.
func (ex *execution) nodeRecordLocked(nodeID string, detail string) record.NodeExecutionRecord {
	rec := record.NodeExecutionRecord{
		NodeID:   nodeID,
		Status:   ex.statuses[nodeID],
		Attempts: ex.attempts[nodeID],
		Error:    detail,
	}
	if t, ok := ex.startedAt[nodeID]; ok {
		started := t
		rec.StartedAt = &started
	}
	if t, ok := ex.completedAt[nodeID]; ok {
		completed := t
		rec.CompletedAt = &completed
	}
	if ex.statuses[nodeID] == record.NodeSucceeded {
		rec.Outputs = ex.outputs[nodeID]
	}
	return rec
}

// nodeUpdate is one message from a node worker to the scheduler: either an
// intermediate lifecycle transition or the final outcome.
type nodeUpdate struct {
	nodeID     string
	transition *runtime.Transition
	outcome    *runtime.Outcome
}

type gateAction int

const (
	gateRun gateAction = iota
	gateSkip
	gateCancel
	gateFail
)

type gateDecision struct {
	action gateAction
	detail string
}

// run is the scheduler loop for one run segment. It is the sole writer of the
// execution record and checkpoints while active.
func (e *Engine) run(ctx context.Context, ex *execution) {
	ctx, span := e.tracer.Start(ctx, "engine.execute", trace.WithAttributes(
		attribute.String("execution.id", ex.id),
		attribute.String("pipeline.id", ex.graph.PipelineID()),
		attribute.String("execution.mode", string(ex.graph.Execution().Mode)),
	))
	defer span.End()

	// Store writes must survive run-context cancellation so cancelled
	// executions still persist their final state.
	storeCtx := context.WithoutCancel(ctx)

	config := ex.graph.Execution()
	sequential := config.Mode != dsl.ModeParallel
	var limiter *concurrency.Limiter
	if !sequential {
		bound := config.Concurrency
		if bound <= 0 {
			bound = concurrency.LoadConfig().MaxConcurrent
		}
		limiter = concurrency.NewLimiter(bound)
	}

	// Workers never block on this channel: capacity covers the worst-case
	// transition count across all nodes, so the loop may exit early on a
	// fatal checkpoint error without stranding goroutines.
	capacity := 0
	for _, nodeID := range ex.graph.Order() {
		capacity += 3*ex.graph.Node(nodeID).Spec.Retry.Attempts() + 3
	}
	updates := make(chan nodeUpdate, capacity)

	inFlight := 0
	dispatched := make(map[string]bool, ex.graph.Len())

	for {
		ex.mu.Lock()
		cancelRequested := ex.cancelRequested
		pauseRequested := ex.pauseRequested
		ex.mu.Unlock()

		if !cancelRequested && !pauseRequested {
			if err := e.dispatch(ctx, storeCtx, ex, sequential, limiter, dispatched, &inFlight, updates); err != nil {
				e.failOnCheckpoint(storeCtx, ex, err)
				return
			}
		}

		if inFlight == 0 {
			ex.mu.Lock()
			allTerminal := ex.allTerminalLocked()
			ex.mu.Unlock()

			switch {
			case cancelRequested:
				e.finalizeCancelled(ex)
				return
			case allTerminal:
				e.finalize(storeCtx, ex)
				return
			case pauseRequested:
				e.finalizePaused(storeCtx, ex)
				return
			}
		}

		update := <-updates
		if update.transition != nil {
			e.applyTransition(storeCtx, ex, *update.transition)
		}
		if update.outcome != nil {
			inFlight--
			e.completeNode(storeCtx, ex, update.nodeID, *update.outcome)
			if err := e.writeCheckpoint(storeCtx, ex); err != nil {
				e.failOnCheckpoint(storeCtx, ex, err)
				return
			}
		}
	}
}

// dispatch settles skip/cancel decisions for frontier nodes and launches the
// runnable ones, honoring the sequential single-task constraint.
func (e *Engine) dispatch(ctx, storeCtx context.Context, ex *execution, sequential bool, limiter *concurrency.Limiter, dispatched map[string]bool, inFlight *int, updates chan nodeUpdate) error {
	for {
		ex.mu.Lock()
		ready := ex.readyLocked()
		ex.mu.Unlock()

		progressed := false
		for _, nodeID := range ready {
			if dispatched[nodeID] {
				continue
			}
			decision := e.gateNode(ex, nodeID)
			switch decision.action {
			case gateSkip:
				e.settleNode(storeCtx, ex, nodeID, record.NodeSkipped, decision.detail)
				progressed = true
			case gateCancel:
				e.settleNode(storeCtx, ex, nodeID, record.NodeCancelled, decision.detail)
				progressed = true
			case gateFail:
				e.settleNode(storeCtx, ex, nodeID, record.NodeFailed, decision.detail)
				progressed = true
			case gateRun:
				if sequential && *inFlight > 0 {
					continue
				}
				dispatched[nodeID] = true
				*inFlight++
				go e.runNode(ctx, ex, nodeID, limiter, updates)
				progressed = true
			}
		}
		if progressed {
			// Settled nodes may have unlocked new frontier members; any
			// engine-settled terminal also needs a checkpoint.
			if err := e.writeCheckpointIfSettled(storeCtx, ex, ready, dispatched); err != nil {
				return err
			}
			continue
		}
		return nil
	}
}

// writeCheckpointIfSettled persists a checkpoint when the dispatch pass
// settled at least one node without running it.
func (e *Engine) writeCheckpointIfSettled(storeCtx context.Context, ex *execution, ready []string, dispatched map[string]bool) error {
	ex.mu.Lock()
	settled := false
	for _, nodeID := range ready {
		if !dispatched[nodeID] && ex.statuses[nodeID].Terminal() {
			settled = true
			break
		}
	}
	ex.mu.Unlock()
	if !settled {
		return nil
	}
	return e.writeCheckpoint(storeCtx, ex)
}

// gateNode decides how an eligible node enters the frontier: run it, skip it
// because of upstream failure/skip or an unsatisfied edge condition, or cancel
// it because an upstream node was cancelled.
func (e *Engine) gateNode(ex *execution, nodeID string) gateDecision {
	continueOnError := ex.graph.Execution().ContinueOnError

	ex.mu.Lock()
	edges := ex.graph.IncomingEdges(nodeID)
	statuses := make(map[string]record.NodeStatus, len(edges))
	sourceOutputs := make(map[string]map[string]interface{}, len(edges))
	for _, edge := range edges {
		statuses[edge.Source] = ex.statuses[edge.Source]
		sourceOutputs[edge.Source] = ex.outputs[edge.Source]
	}
	ex.mu.Unlock()

	for _, edge := range edges {
		switch statuses[edge.Source] {
		case record.NodeCancelled:
			return gateDecision{action: gateCancel, detail: "upstream node " + edge.Source + " was cancelled"}
		case record.NodeSkipped:
			return gateDecision{action: gateSkip, detail: "upstream node " + edge.Source + " was skipped"}
		case record.NodeFailed:
			if !continueOnError {
				return gateDecision{action: gateSkip, detail: "upstream node " + edge.Source + " failed"}
			}
		case record.NodeSucceeded:
			satisfied, err := runtime.EvaluateCondition(edge.Condition, sourceOutputs[edge.Source])
			if err != nil {
				return gateDecision{action: gateFail, detail: err.Error()}
			}
			if !satisfied {
				return gateDecision{action: gateSkip, detail: "edge condition from " + edge.Source + " not met"}
			}
		}
	}
	return gateDecision{action: gateRun}
}

// settleNode moves a node to an engine-decided terminal state without running
// it, and records and publishes the transition.
func (e *Engine) settleNode(storeCtx context.Context, ex *execution, nodeID string, status record.NodeStatus, detail string) {
	ex.mu.Lock()
	if ex.statuses[nodeID].Terminal() {
		ex.mu.Unlock()
		return
	}
	ex.statuses[nodeID] = status
	ex.completedAt[nodeID] = time.Now().UTC()
	nodeRec := ex.nodeRecordLocked(nodeID, detail)
	ex.mu.Unlock()

	e.logger.Info("Node settled without execution",
		zap.String("executionId", ex.id),
		zap.String("nodeId", nodeID),
		zap.String("status", string(status)),
		zap.String("reason", detail))

	if err := e.store.UpdateNodeExecution(storeCtx, ex.id, nodeRec); err != nil {
		e.logger.Error("Failed to persist node record",
			zap.String("executionId", ex.id),
			zap.String("nodeId", nodeID),
			zap.Error(err))
	}
	if status == record.NodeFailed {
		e.appendError(storeCtx, ex, nodeID, detail)
	}

	e.publish(storeCtx, events.Event{
		Kind:        events.KindNodeTransition,
		ExecutionID: ex.id,
		PipelineID:  ex.graph.PipelineID(),
		NodeID:      nodeID,
		NodeStatus:  string(status),
		Detail:      detail,
		Timestamp:   time.Now().UTC(),
	})
}

// runNode executes one node in a worker goroutine, forwarding transitions and
// the final outcome to the scheduler.
func (e *Engine) runNode(ctx context.Context, ex *execution, nodeID string, limiter *concurrency.Limiter, updates chan<- nodeUpdate) {
	if limiter != nil {
		if err := limiter.Acquire(ctx); err != nil {
			updates <- nodeUpdate{nodeID: nodeID, outcome: &runtime.Outcome{
				Status: record.NodeCancelled,
				Err:    err,
			}}
			return
		}
		defer limiter.Release()
	}

	node := ex.graph.Node(nodeID)
	ctx, span := e.tracer.Start(ctx, "engine.node", trace.WithAttributes(
		attribute.String("execution.id", ex.id),
		attribute.String("node.id", nodeID),
		attribute.String("node.capability", node.Capability.String()),
	))
	defer span.End()

	outcome := e.runner.Run(ctx, runtime.Invocation{
		Node:   node,
		Inputs: ex.inputsFor(nodeID),
		Rand:   e.nodeRand(),
		Observe: func(t runtime.Transition) {
			updates <- nodeUpdate{nodeID: nodeID, transition: &t}
		},
	})
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
	}
	updates <- nodeUpdate{nodeID: nodeID, outcome: &outcome}
}

// applyTransition folds one node lifecycle transition into the execution
// state, persists the node record, and publishes a progress event.
func (e *Engine) applyTransition(storeCtx context.Context, ex *execution, t runtime.Transition) {
	ex.mu.Lock()
	if ex.statuses[t.NodeID].Terminal() {
		// Terminal states are monotonic; late transitions are dropped.
		ex.mu.Unlock()
		return
	}
	ex.statuses[t.NodeID] = t.To
	if t.Attempt > ex.attempts[t.NodeID] {
		ex.attempts[t.NodeID] = t.Attempt
	}
	if t.To == record.NodeRunning {
		if _, ok := ex.startedAt[t.NodeID]; !ok {
			ex.startedAt[t.NodeID] = t.Timestamp
		}
	}
	if t.To.Terminal() {
		ex.completedAt[t.NodeID] = t.Timestamp
	}
	nodeRec := ex.nodeRecordLocked(t.NodeID, t.Detail)
	ex.mu.Unlock()

	if err := e.store.UpdateNodeExecution(storeCtx, ex.id, nodeRec); err != nil {
		e.logger.Error("Failed to persist node record",
			zap.String("executionId", ex.id),
			zap.String("nodeId", t.NodeID),
			zap.Error(err))
	}

	e.publish(storeCtx, events.Event{
		Kind:        events.KindNodeTransition,
		ExecutionID: ex.id,
		PipelineID:  ex.graph.PipelineID(),
		NodeID:      t.NodeID,
		NodeStatus:  string(t.To),
		Attempt:     t.Attempt,
		Detail:      t.Detail,
		Timestamp:   t.Timestamp,
	})
}

// completeNode folds a node's final outcome into the execution state: outputs
// for succeeded nodes, error details for failed ones, metrics either way.
func (e *Engine) completeNode(storeCtx context.Context, ex *execution, nodeID string, outcome runtime.Outcome) {
	detail := ""
	if outcome.Err != nil {
		detail = outcome.Err.Error()
	}

	ex.mu.Lock()
	previous := ex.statuses[nodeID]
	ex.statuses[nodeID] = outcome.Status
	if outcome.Attempts > ex.attempts[nodeID] {
		ex.attempts[nodeID] = outcome.Attempts
	}
	if outcome.Status == record.NodeSucceeded {
		ex.outputs[nodeID] = outcome.Outputs
	}
	if _, ok := ex.completedAt[nodeID]; !ok {
		ex.completedAt[nodeID] = time.Now().UTC()
	}
	nodeRec := ex.nodeRecordLocked(nodeID, detail)
	ex.mu.Unlock()

	if err := e.store.UpdateNodeExecution(storeCtx, ex.id, nodeRec); err != nil {
		e.logger.Error("Failed to persist node record",
			zap.String("executionId", ex.id),
			zap.String("nodeId", nodeID),
			zap.Error(err))
	}

	for name, value := range outcome.Metrics {
		if err := e.store.AppendMetric(storeCtx, ex.id, record.Metric{
			NodeID:    nodeID,
			Name:      name,
			Value:     value,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			e.logger.Warn("Failed to append metric",
				zap.String("executionId", ex.id),
				zap.String("nodeId", nodeID),
				zap.String("metric", name),
				zap.Error(err))
		}
	}

	if outcome.Status == record.NodeFailed {
		e.appendError(storeCtx, ex, nodeID, detail)
	}

	// The worker never saw a transition for this outcome when the limiter
	// rejected it; publish the terminal state here so the stream stays whole.
	if previous != outcome.Status && !previous.Terminal() && outcome.Attempts == 0 {
		e.publish(storeCtx, events.Event{
			Kind:        events.KindNodeTransition,
			ExecutionID: ex.id,
			PipelineID:  ex.graph.PipelineID(),
			NodeID:      nodeID,
			NodeStatus:  string(outcome.Status),
			Detail:      detail,
			Timestamp:   time.Now().UTC(),
		})
	}

	e.logger.Info("Node completed",
		zap.String("executionId", ex.id),
		zap.String("nodeId", nodeID),
		zap.String("status", string(outcome.Status)),
		zap.Int("attempts", outcome.Attempts))
}

func (e *Engine) appendError(storeCtx context.Context, ex *execution, nodeID, detail string) {
	if err := e.store.AppendError(storeCtx, ex.id, record.ErrorDetail{
		NodeID:    nodeID,
		Message:   detail,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		e.logger.Warn("Failed to append error detail",
			zap.String("executionId", ex.id),
			zap.String("nodeId", nodeID),
			zap.Error(err))
	}
}

// writeCheckpoint persists the next snapshot. A failed write is returned as a
// CheckpointWriteError, which is fatal to the execution.
func (e *Engine) writeCheckpoint(storeCtx context.Context, ex *execution) error {
	checkpoint := ex.snapshot()
	if err := e.store.SaveCheckpoint(storeCtx, checkpoint); err != nil {
		return &CheckpointWriteError{ExecutionID: ex.id, Err: err}
	}
	e.publish(storeCtx, events.Event{
		Kind:        events.KindCheckpointSaved,
		ExecutionID: ex.id,
		PipelineID:  ex.graph.PipelineID(),
		Detail:      string(checkpoint.Status),
		Timestamp:   checkpoint.CreatedAt,
	})
	return nil
}

// failOnCheckpoint aborts the execution after a checkpoint write failure.
// Resume correctness depends on checkpoints, so the error is loud: recorded,
// logged, and the execution ends FAILED.
func (e *Engine) failOnCheckpoint(storeCtx context.Context, ex *execution, err error) {
	e.logger.Error("Checkpoint write failed, aborting execution",
		zap.String("executionId", ex.id),
		zap.Error(err))

	e.appendError(storeCtx, ex, "", err.Error())

	ex.mu.Lock()
	cancelRun := ex.cancelRun
	for _, nodeID := range ex.graph.Order() {
		if !ex.statuses[nodeID].Terminal() {
			ex.statuses[nodeID] = record.NodeCancelled
		}
	}
	ex.status = record.ExecutionFailed
	ex.mu.Unlock()

	if cancelRun != nil {
		cancelRun()
	}
	if updateErr := e.store.UpdateExecutionStatus(storeCtx, ex.id, record.ExecutionFailed); updateErr != nil {
		e.logger.Error("Failed to persist execution status",
			zap.String("executionId", ex.id),
			zap.Error(updateErr))
	}
	e.publishCompletion(storeCtx, ex, record.ExecutionFailed)
	ex.markFinished()
}

// finalize settles the overall status once every node is terminal: FAILED if
// any node failed, SUCCEEDED otherwise.
func (e *Engine) finalize(storeCtx context.Context, ex *execution) {
	ex.mu.Lock()
	status := record.ExecutionSucceeded
	for _, nodeStatus := range ex.statuses {
		if nodeStatus == record.NodeFailed {
			status = record.ExecutionFailed
			break
		}
	}
	ex.status = status
	ex.mu.Unlock()

	if err := e.store.UpdateExecutionStatus(storeCtx, ex.id, status); err != nil {
		e.logger.Error("Failed to persist execution status",
			zap.String("executionId", ex.id),
			zap.Error(err))
	}

	e.logger.Info("Execution completed",
		zap.String("executionId", ex.id),
		zap.String("status", string(status)))

	e.publishCompletion(storeCtx, ex, status)
	ex.markFinished()
}

// finalizePaused parks the execution at PAUSED behind a final checkpoint so a
// later resume sees every in-flight result that landed before the pause took
// effect.
func (e *Engine) finalizePaused(storeCtx context.Context, ex *execution) {
	ex.mu.Lock()
	if ex.cancelRequested {
		// Cancel landed while the scheduler was parking; it wins over the
		// pause and the execution settles at CANCELLED now, not on resume.
		ex.mu.Unlock()
		e.finalizeCancelled(ex)
		return
	}
	ex.status = record.ExecutionPaused
	ex.cancelRun = nil
	ex.mu.Unlock()

	if err := e.writeCheckpoint(storeCtx, ex); err != nil {
		e.failOnCheckpoint(storeCtx, ex, err)
		return
	}
	if err := e.store.UpdateExecutionStatus(storeCtx, ex.id, record.ExecutionPaused); err != nil {
		e.logger.Error("Failed to persist execution status",
			zap.String("executionId", ex.id),
			zap.Error(err))
	}

	e.logger.Info("Execution paused", zap.String("executionId", ex.id))

	e.publish(storeCtx, events.Event{
		Kind:        events.KindExecutionPaused,
		ExecutionID: ex.id,
		PipelineID:  ex.graph.PipelineID(),
		Status:      string(record.ExecutionPaused),
		Timestamp:   time.Now().UTC(),
	})
}

// finalizeCancelled marks every non-terminal node CANCELLED and settles the
// execution at CANCELLED. Also invoked directly for paused executions, where
// no scheduler loop is running.
func (e *Engine) finalizeCancelled(ex *execution) {
	storeCtx := context.Background()

	ex.mu.Lock()
	if ex.status.Terminal() {
		ex.mu.Unlock()
		return
	}
	var cancelled []string
	for _, nodeID := range ex.graph.Order() {
		if !ex.statuses[nodeID].Terminal() {
			ex.statuses[nodeID] = record.NodeCancelled
			ex.completedAt[nodeID] = time.Now().UTC()
			cancelled = append(cancelled, nodeID)
		}
	}
	ex.status = record.ExecutionCancelled
	records := make([]record.NodeExecutionRecord, 0, len(cancelled))
	for _, nodeID := range cancelled {
		records = append(records, ex.nodeRecordLocked(nodeID, "execution cancelled"))
	}
	ex.mu.Unlock()

	for _, nodeRec := range records {
		if err := e.store.UpdateNodeExecution(storeCtx, ex.id, nodeRec); err != nil {
			e.logger.Error("Failed to persist node record",
				zap.String("executionId", ex.id),
				zap.String("nodeId", nodeRec.NodeID),
				zap.Error(err))
		}
	}
	if err := e.writeCheckpoint(storeCtx, ex); err != nil {
		// The execution is already settling at CANCELLED; a lost final
		// checkpoint cannot break resume, so log instead of escalating.
		e.logger.Error("Failed to write final checkpoint",
			zap.String("executionId", ex.id),
			zap.Error(err))
	}
	if err := e.store.UpdateExecutionStatus(storeCtx, ex.id, record.ExecutionCancelled); err != nil {
		e.logger.Error("Failed to persist execution status",
			zap.String("executionId", ex.id),
			zap.Error(err))
	}

	e.logger.Info("Execution cancelled", zap.String("executionId", ex.id))

	e.publishCompletion(storeCtx, ex, record.ExecutionCancelled)
	ex.markFinished()
}

func (e *Engine) publishCompletion(storeCtx context.Context, ex *execution, status record.ExecutionStatus) {
	e.publish(storeCtx, events.Event{
		Kind:        events.KindExecutionCompleted,
		ExecutionID: ex.id,
		PipelineID:  ex.graph.PipelineID(),
		Status:      string(status),
		Timestamp:   time.Now().UTC(),
	})
}
