// Package runtime implements the generic per-node execution lifecycle shared
// by every node type: validate inputs, invoke the executor capability,
// validate outputs, and retry transient failures under the node's policy.
package runtime

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/wehubfusion/Daedalus/pkg/compiler"
	"github.com/wehubfusion/Daedalus/pkg/executor"
	"github.com/wehubfusion/Daedalus/pkg/record"
	"go.uber.org/zap"
)

// Transition is one node state change. The engine observes transitions to
// update the execution record and publish progress events; the runtime itself
// never touches shared state.
type Transition struct {
	NodeID    string
	From      record.NodeStatus
	To        record.NodeStatus
	Attempt   int
	Timestamp time.Time
	// Detail carries the failure or retry reason when there is one.
	Detail string
}

// Observer receives node transitions as they happen.
type Observer func(Transition)

// Outcome is the final result of running one node.
type Outcome struct {
	// Status is SUCCEEDED, FAILED or CANCELLED.
	Status record.NodeStatus
	// Outputs are the validated executor outputs on success.
	Outputs map[string]interface{}
	// Metrics are the successful invocation's reported measurements.
	Metrics map[string]float64
	// Attempts is the number of executor invocations made.
	Attempts int
	// Err is the terminal failure, if any.
	Err error
}

// Invocation carries everything needed to run one node once its dependencies
// are satisfied.
type Invocation struct {
	Node   *compiler.CompiledNode
	Inputs map[string]interface{}
	// Observe receives every transition; nil disables observation.
	Observe Observer
	// Rand adds jitter to retry backoff; nil disables jitter.
	Rand *rand.Rand
}

// Runner drives the node lifecycle state machine. A single Runner is shared
// by all nodes of an execution; it holds no per-node state.
type Runner struct {
	capabilities *executor.Registry
	logger       *zap.Logger

	// sleep is replaceable in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a node runner dispatching through the given capability
// registry.
func NewRunner(capabilities *executor.Registry, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		capabilities: capabilities,
		logger:       logger,
		sleep:        sleepContext,
	}
}

// Run executes one node to a terminal state. The caller has already decided
// the node is eligible (all predecessors terminal, edge conditions true);
// Run picks up the lifecycle at VALIDATING.
//
// Cancellation is cooperative: the context is checked before each validation
// and between a retry's backoff and its next attempt. An executor invocation
// already in flight is not interrupted, but a cancellation requested before it
// returns discards its result.
func (r *Runner) Run(ctx context.Context, inv Invocation) Outcome {
	node := inv.Node
	spec := node.Spec
	state := record.NodePending
	attempts := 0

	observe := func(to record.NodeStatus, detail string) {
		from := state
		state = to
		if inv.Observe != nil {
			inv.Observe(Transition{
				NodeID:    spec.ID,
				From:      from,
				To:        to,
				Attempt:   attempts,
				Timestamp: time.Now().UTC(),
				Detail:    detail,
			})
		}
	}

	impl, err := r.capabilities.Lookup(node.Capability)
	if err != nil {
		// Compilation checks capabilities, so this only happens if the
		// registry was reloaded underneath a running execution.
		observe(record.NodeFailed, err.Error())
		return Outcome{Status: record.NodeFailed, Attempts: attempts, Err: err}
	}

	for {
		if ctx.Err() != nil {
			observe(record.NodeCancelled, ctx.Err().Error())
			return Outcome{Status: record.NodeCancelled, Attempts: attempts, Err: ctx.Err()}
		}

		observe(record.NodeValidating, "")
		if err := ApplyRules(spec.Inputs, inv.Inputs); err != nil {
			// Input violations are configuration defects, not transient faults.
			observe(record.NodeFailed, err.Error())
			return Outcome{Status: record.NodeFailed, Attempts: attempts, Err: err}
		}

		attempts++
		observe(record.NodeRunning, "")

		result, execErr := impl.Execute(ctx, node.EffectiveConfig, inv.Inputs)

		if ctx.Err() != nil {
			// Cancellation was requested while the invocation was in flight;
			// its result is discarded.
			observe(record.NodeCancelled, ctx.Err().Error())
			return Outcome{Status: record.NodeCancelled, Attempts: attempts, Err: ctx.Err()}
		}

		if execErr == nil {
			if err := ApplyRules(spec.Outputs, result.Outputs); err != nil {
				observe(record.NodeFailed, err.Error())
				return Outcome{Status: record.NodeFailed, Attempts: attempts, Err: err}
			}
			observe(record.NodeSucceeded, "")
			return Outcome{
				Status:   record.NodeSucceeded,
				Outputs:  result.Outputs,
				Metrics:  result.Metrics,
				Attempts: attempts,
			}
		}

		if executor.IsRetryable(execErr) && attempts < spec.Retry.Attempts() {
			delay := BackoffDelay(spec.Retry, attempts, inv.Rand)
			observe(record.NodeRetrying, execErr.Error())
			r.logger.Debug("Retrying node after backoff",
				zap.String("nodeId", spec.ID),
				zap.Int("attempt", attempts),
				zap.Duration("backoff", delay),
				zap.Error(execErr))
			if err := r.sleep(ctx, delay); err != nil {
				observe(record.NodeCancelled, err.Error())
				return Outcome{Status: record.NodeCancelled, Attempts: attempts, Err: err}
			}
			continue
		}

		observe(record.NodeFailed, execErr.Error())
		return Outcome{Status: record.NodeFailed, Attempts: attempts, Err: execErr}
	}
}

// sleepContext waits for the delay or the context, whichever ends first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRuleViolation reports whether an error is a port rule violation.
func IsRuleViolation(err error) bool {
	var violation *RuleViolation
	return errors.As(err, &violation)
}
