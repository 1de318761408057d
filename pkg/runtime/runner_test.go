package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/compiler"
	"github.com/wehubfusion/Daedalus/pkg/dsl"
	"github.com/wehubfusion/Daedalus/pkg/executor"
	"github.com/wehubfusion/Daedalus/pkg/record"
	"github.com/wehubfusion/Daedalus/pkg/version"
)

// scriptedExecutor returns the queued errors in order, then succeeds.
type scriptedExecutor struct {
	failures []error
	calls    int
	outputs  map[string]interface{}
}

func (s *scriptedExecutor) Execute(context.Context, map[string]interface{}, map[string]interface{}) (*executor.Result, error) {
	s.calls++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}
	outputs := s.outputs
	if outputs == nil {
		outputs = map[string]interface{}{"done": true}
	}
	return &executor.Result{Outputs: outputs}, nil
}

func testRunner(t *testing.T, impl executor.Executor) (*Runner, *compiler.CompiledNode) {
	t.Helper()
	key := executor.CapabilityKey{Platform: "builtin", Type: "test", Version: version.MustParse("1.0.0")}
	registry := executor.NewRegistry(zap.NewNop())
	require.NoError(t, registry.Register(key, impl))

	runner := NewRunner(registry, zap.NewNop())
	runner.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }

	node := &compiler.CompiledNode{
		Spec:       dsl.PipelineNode{ID: "n1", Type: "task"},
		Capability: key,
	}
	return runner, node
}

func collectTransitions(sink *[]Transition) Observer {
	return func(tr Transition) { *sink = append(*sink, tr) }
}

func statuses(transitions []Transition) []record.NodeStatus {
	out := make([]record.NodeStatus, len(transitions))
	for i, tr := range transitions {
		out[i] = tr.To
	}
	return out
}

func TestRunSucceeds(t *testing.T) {
	impl := &scriptedExecutor{outputs: map[string]interface{}{"value": "ok"}}
	runner, node := testRunner(t, impl)

	var transitions []Transition
	outcome := runner.Run(context.Background(), Invocation{
		Node:    node,
		Observe: collectTransitions(&transitions),
	})

	assert.Equal(t, record.NodeSucceeded, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, "ok", outcome.Outputs["value"])
	assert.NoError(t, outcome.Err)
	assert.Equal(t,
		[]record.NodeStatus{record.NodeValidating, record.NodeRunning, record.NodeSucceeded},
		statuses(transitions))
}

func TestRunRetriesTransientFailuresUntilSuccess(t *testing.T) {
	impl := &scriptedExecutor{failures: []error{
		executor.NewTransientError("blip", nil),
		executor.NewTransientError("blip", nil),
	}}
	runner, node := testRunner(t, impl)
	node.Spec.Retry = dsl.RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Millisecond}

	var transitions []Transition
	outcome := runner.Run(context.Background(), Invocation{
		Node:    node,
		Observe: collectTransitions(&transitions),
	})

	assert.Equal(t, record.NodeSucceeded, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, 3, impl.calls)
	assert.Equal(t, []record.NodeStatus{
		record.NodeValidating, record.NodeRunning, record.NodeRetrying,
		record.NodeValidating, record.NodeRunning, record.NodeRetrying,
		record.NodeValidating, record.NodeRunning, record.NodeSucceeded,
	}, statuses(transitions))
}

func TestRunAttemptBudgetIsTotalInvocations(t *testing.T) {
	impl := &scriptedExecutor{failures: []error{
		executor.NewTransientError("blip", nil),
		executor.NewTransientError("blip", nil),
		executor.NewTransientError("blip", nil),
		executor.NewTransientError("blip", nil),
	}}
	runner, node := testRunner(t, impl)
	node.Spec.Retry = dsl.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond}

	outcome := runner.Run(context.Background(), Invocation{Node: node})

	assert.Equal(t, record.NodeFailed, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, 3, impl.calls)
	assert.True(t, executor.IsRetryable(outcome.Err))
}

func TestRunNonRetryableFailureStopsImmediately(t *testing.T) {
	impl := &scriptedExecutor{failures: []error{
		executor.NewConfigError("bad config", nil),
	}}
	runner, node := testRunner(t, impl)
	node.Spec.Retry = dsl.RetryPolicy{MaxAttempts: 5}

	outcome := runner.Run(context.Background(), Invocation{Node: node})

	assert.Equal(t, record.NodeFailed, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 1, impl.calls)
}

func TestRunInputViolationFailsWithoutInvocation(t *testing.T) {
	impl := &scriptedExecutor{}
	runner, node := testRunner(t, impl)
	node.Spec.Retry = dsl.RetryPolicy{MaxAttempts: 5}
	node.Spec.Inputs = []dsl.PortSpec{{
		Name:  "value",
		Rules: []dsl.ValidationRule{{Kind: dsl.RuleRequired}},
	}}

	var transitions []Transition
	outcome := runner.Run(context.Background(), Invocation{
		Node:    node,
		Inputs:  map[string]interface{}{},
		Observe: collectTransitions(&transitions),
	})

	// Input violations are never retried, even with budget remaining.
	assert.Equal(t, record.NodeFailed, outcome.Status)
	assert.Equal(t, 0, outcome.Attempts)
	assert.Equal(t, 0, impl.calls)
	assert.True(t, IsRuleViolation(outcome.Err))
	assert.Equal(t,
		[]record.NodeStatus{record.NodeValidating, record.NodeFailed},
		statuses(transitions))
}

func TestRunOutputViolationFails(t *testing.T) {
	impl := &scriptedExecutor{outputs: map[string]interface{}{"value": 42}}
	runner, node := testRunner(t, impl)
	node.Spec.Outputs = []dsl.PortSpec{{
		Name:  "value",
		Rules: []dsl.ValidationRule{{Kind: dsl.RuleType, Type: "string"}},
	}}

	outcome := runner.Run(context.Background(), Invocation{Node: node})

	assert.Equal(t, record.NodeFailed, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.True(t, IsRuleViolation(outcome.Err))
}

func TestRunCancelledBeforeStart(t *testing.T) {
	impl := &scriptedExecutor{}
	runner, node := testRunner(t, impl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := runner.Run(ctx, Invocation{Node: node})

	assert.Equal(t, record.NodeCancelled, outcome.Status)
	assert.Equal(t, 0, impl.calls)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
}

func TestRunCancelledDuringBackoff(t *testing.T) {
	impl := &scriptedExecutor{failures: []error{
		executor.NewTransientError("blip", nil),
	}}
	runner, node := testRunner(t, impl)
	node.Spec.Retry = dsl.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	runner.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	outcome := runner.Run(ctx, Invocation{Node: node})

	assert.Equal(t, record.NodeCancelled, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
}

func TestRunCancelledDuringInvocationDiscardsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	impl := &scriptedExecutor{}
	runner, node := testRunner(t, &cancellingExecutor{inner: impl, cancel: cancel})

	outcome := runner.Run(ctx, Invocation{Node: node})

	assert.Equal(t, record.NodeCancelled, outcome.Status)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Nil(t, outcome.Outputs)
}

// cancellingExecutor cancels the execution context from inside Execute, then
// returns a successful result that the runner must discard.
type cancellingExecutor struct {
	inner  *scriptedExecutor
	cancel context.CancelFunc
}

func (c *cancellingExecutor) Execute(ctx context.Context, config map[string]interface{}, inputs map[string]interface{}) (*executor.Result, error) {
	c.cancel()
	return c.inner.Execute(ctx, config, inputs)
}

func TestRunUnregisteredCapabilityFails(t *testing.T) {
	runner, node := testRunner(t, &scriptedExecutor{})
	node.Capability.Version = version.MustParse("9.9.9")

	outcome := runner.Run(context.Background(), Invocation{Node: node})

	assert.Equal(t, record.NodeFailed, outcome.Status)
	assert.Equal(t, 0, outcome.Attempts)
	assert.Error(t, outcome.Err)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))
	require.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestIsRuleViolation(t *testing.T) {
	assert.True(t, IsRuleViolation(&RuleViolation{Port: "p", Rule: dsl.RuleRequired}))
	assert.False(t, IsRuleViolation(errors.New("other")))
}
