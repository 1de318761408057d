package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/dsl"
	"github.com/wehubfusion/Daedalus/pkg/executor"
	"github.com/wehubfusion/Daedalus/pkg/version"
)

type nopExecutor struct{}

func (nopExecutor) Execute(context.Context, map[string]interface{}, map[string]interface{}) (*executor.Result, error) {
	return &executor.Result{}, nil
}

func testGraph() *dsl.PipelineGraph {
	return &dsl.PipelineGraph{
		ID:       "p1",
		Name:     "test",
		Platform: "builtin",
		Version:  "1.0.0",
		Defaults: map[string]interface{}{"region": "eu-west-1", "timeout": 30},
		Nodes: []dsl.PipelineNode{
			{ID: "b", Type: "task", Executor: dsl.ComponentRef{Name: "noop"}},
			{ID: "a", Type: "task", Executor: dsl.ComponentRef{Name: "noop"},
				Config: map[string]interface{}{"timeout": 5}},
			{ID: "c", Type: "task", Executor: dsl.ComponentRef{Name: "noop"}},
			{ID: "d", Type: "task", Executor: dsl.ComponentRef{Name: "noop"}},
		},
		Edges: []dsl.PipelineEdge{
			{Source: "a", Target: "c"},
			{Source: "b", Target: "c"},
			{Source: "c", Target: "d", Condition: "outputs.n > 0"},
		},
	}
}

func testResolved(ids ...string) map[string]version.ResolvedPair {
	resolved := make(map[string]version.ResolvedPair, len(ids))
	for _, id := range ids {
		resolved[id] = version.ResolvedPair{ExecutorVersion: version.MustParse("1.0.0")}
	}
	return resolved
}

func testCapabilities(t *testing.T) *executor.Registry {
	t.Helper()
	registry := executor.NewRegistry(zap.NewNop())
	require.NoError(t, registry.Register(executor.CapabilityKey{
		Platform: "builtin",
		Type:     "noop",
		Version:  version.MustParse("1.0.0"),
	}, nopExecutor{}))
	return registry
}

func TestCompileProducesDeterministicOrder(t *testing.T) {
	compiled, err := Compile(testGraph(), testResolved("a", "b", "c", "d"), testCapabilities(t))
	require.NoError(t, err)

	// Ties break ascending: a before b even though b is declared first.
	assert.Equal(t, []string{"a", "b", "c", "d"}, compiled.Order())
	assert.Equal(t, []string{"a", "b"}, compiled.EntryNodes())
	assert.Equal(t, []string{"d"}, compiled.ExitNodes())
	assert.Equal(t, []string{"a", "b"}, compiled.Predecessors("c"))
	assert.Equal(t, []string{"c"}, compiled.Successors("a"))

	edges := compiled.IncomingEdges("d")
	require.Len(t, edges, 1)
	assert.Equal(t, "outputs.n > 0", edges[0].Condition)
}

func TestCompileIsIdempotent(t *testing.T) {
	graph := testGraph()
	resolved := testResolved("a", "b", "c", "d")
	capabilities := testCapabilities(t)

	first, err := Compile(graph, resolved, capabilities)
	require.NoError(t, err)
	second, err := Compile(graph, resolved, capabilities)
	require.NoError(t, err)

	assert.Equal(t, first.Order(), second.Order())
	for _, id := range first.Order() {
		assert.Equal(t, first.Node(id).EffectiveConfig, second.Node(id).EffectiveConfig)
		assert.Equal(t, first.Node(id).Capability, second.Node(id).Capability)
	}
}

func TestCompileMergesEffectiveConfig(t *testing.T) {
	compiled, err := Compile(testGraph(), testResolved("a", "b", "c", "d"), testCapabilities(t))
	require.NoError(t, err)

	// Node override wins field by field; untouched defaults pass through.
	a := compiled.Node("a")
	assert.Equal(t, 5, a.EffectiveConfig["timeout"])
	assert.Equal(t, "eu-west-1", a.EffectiveConfig["region"])

	b := compiled.Node("b")
	assert.Equal(t, 30, b.EffectiveConfig["timeout"])
}

func TestCompileFailsOnUnregisteredCapability(t *testing.T) {
	graph := testGraph()
	graph.Nodes[0].Executor.Name = "missing"

	_, err := Compile(graph, testResolved("a", "b", "c", "d"), testCapabilities(t))
	require.Error(t, err)

	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "b", cerr.NodeID)
	assert.Contains(t, cerr.Detail, "not registered")
}

func TestCompileFailsOnUnresolvedNode(t *testing.T) {
	_, err := Compile(testGraph(), testResolved("a", "b", "c"), testCapabilities(t))
	require.Error(t, err)

	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "d", cerr.NodeID)
}

func TestCompileRevalidatesGraph(t *testing.T) {
	graph := testGraph()
	graph.Edges = append(graph.Edges, dsl.PipelineEdge{Source: "d", Target: "a"})

	_, err := Compile(graph, testResolved("a", "b", "c", "d"), testCapabilities(t))
	require.Error(t, err)

	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Detail, "validation")
}
