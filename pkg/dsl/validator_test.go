package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearGraph(ids ...string) *PipelineGraph {
	graph := &PipelineGraph{Name: "test", Platform: "test"}
	for _, id := range ids {
		graph.Nodes = append(graph.Nodes, PipelineNode{ID: id, Type: "task"})
	}
	for i := 1; i < len(ids); i++ {
		graph.Edges = append(graph.Edges, PipelineEdge{Source: ids[i-1], Target: ids[i]})
	}
	return graph
}

func TestValidateAcceptsLinearGraph(t *testing.T) {
	require.NoError(t, Validate(linearGraph("a", "b", "c")))
}

func TestValidateAcceptsDiamond(t *testing.T) {
	graph := &PipelineGraph{
		Name: "diamond",
		Nodes: []PipelineNode{
			{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"},
		},
		Edges: []PipelineEdge{
			{Source: "a", Target: "b"},
			{Source: "a", Target: "c"},
			{Source: "b", Target: "d"},
			{Source: "c", Target: "d"},
		},
	}
	require.NoError(t, Validate(graph))
}

func TestValidateRejectsEmptyGraph(t *testing.T) {
	err := Validate(&PipelineGraph{Name: "empty"})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, EmptyGraph, verr.Kind)
}

func TestValidateRejectsDuplicateNodeID(t *testing.T) {
	graph := &PipelineGraph{
		Name:  "dup",
		Nodes: []PipelineNode{{ID: "a"}, {ID: "a"}},
	}
	err := Validate(graph)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, DuplicateNodeID, verr.Kind)
	assert.Contains(t, verr.Detail, "a")
}

func TestValidateRejectsDanglingEdge(t *testing.T) {
	tests := []struct {
		name string
		edge PipelineEdge
	}{
		{name: "unknown source", edge: PipelineEdge{Source: "ghost", Target: "a"}},
		{name: "unknown target", edge: PipelineEdge{Source: "a", Target: "ghost"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := &PipelineGraph{
				Name:  "dangling",
				Nodes: []PipelineNode{{ID: "a"}},
				Edges: []PipelineEdge{tt.edge},
			}
			err := Validate(graph)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, DanglingEdge, verr.Kind)
			assert.Contains(t, verr.Detail, "ghost")
		})
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	graph := linearGraph("a", "b", "c")
	graph.Edges = append(graph.Edges, PipelineEdge{Source: "c", Target: "a"})

	err := Validate(graph)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CycleDetected, verr.Kind)
	assert.Equal(t, []string{"a", "b", "c"}, verr.Cycle)
}

func TestValidateRejectsSelfCycle(t *testing.T) {
	graph := &PipelineGraph{
		Name:  "self",
		Nodes: []PipelineNode{{ID: "a"}},
		Edges: []PipelineEdge{{Source: "a", Target: "a"}},
	}

	err := Validate(graph)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CycleDetected, verr.Kind)
	assert.Equal(t, []string{"a"}, verr.Cycle)
}

func TestValidateReportsOnlyCycleMembers(t *testing.T) {
	// d hangs off the cycle but is removable, so it must not be reported.
	graph := &PipelineGraph{
		Name:  "partial",
		Nodes: []PipelineNode{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
		Edges: []PipelineEdge{
			{Source: "d", Target: "a"},
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
			{Source: "c", Target: "a"},
		},
	}

	err := Validate(graph)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CycleDetected, verr.Kind)
	assert.Equal(t, []string{"a", "b", "c"}, verr.Cycle)
}
