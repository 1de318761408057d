package compiler

import (
	"github.com/wehubfusion/Daedalus/pkg/dsl"
	"github.com/wehubfusion/Daedalus/pkg/executor"
	"github.com/wehubfusion/Daedalus/pkg/version"
)

// CompiledNode is one node of an executable plan: the declaration, its frozen
// resolved versions, the capability key the engine dispatches through, and the
// merged effective configuration.
type CompiledNode struct {
	Spec            dsl.PipelineNode
	Resolved        version.ResolvedPair
	Capability      executor.CapabilityKey
	EffectiveConfig map[string]interface{}
}

// CompiledGraph is the immutable executable plan. All state is built by
// Compile and only exposed through read accessors, so a single plan is safe
// for any number of concurrent readers.
type CompiledGraph struct {
	pipelineID      string
	name            string
	platform        string
	pipelineVersion string
	execution       dsl.ExecutionConfig

	nodes        map[string]*CompiledNode
	order        []string
	successors   map[string][]string
	predecessors map[string][]string
	incoming     map[string][]dsl.PipelineEdge
	entry        []string
	exit         []string
}

// PipelineID returns the pipeline id.
func (g *CompiledGraph) PipelineID() string { return g.pipelineID }

// Name returns the pipeline name.
func (g *CompiledGraph) Name() string { return g.name }

// Platform returns the platform executors are looked up under.
func (g *CompiledGraph) Platform() string { return g.platform }

// PipelineVersion returns the declared pipeline version.
func (g *CompiledGraph) PipelineVersion() string { return g.pipelineVersion }

// Execution returns the pipeline-level scheduling configuration.
func (g *CompiledGraph) Execution() dsl.ExecutionConfig { return g.execution }

// Len returns the number of nodes in the plan.
func (g *CompiledGraph) Len() int { return len(g.order) }

// Node returns the compiled node with the given id, or nil.
func (g *CompiledGraph) Node(id string) *CompiledNode { return g.nodes[id] }

// Order returns the deterministic topological order of node ids.
func (g *CompiledGraph) Order() []string { return copyStrings(g.order) }

// Successors returns the ids of nodes directly downstream of id, ascending.
func (g *CompiledGraph) Successors(id string) []string { return copyStrings(g.successors[id]) }

// Predecessors returns the ids of nodes directly upstream of id, ascending.
func (g *CompiledGraph) Predecessors(id string) []string { return copyStrings(g.predecessors[id]) }

// IncomingEdges returns the declared edges targeting id, including their
// optional conditions.
func (g *CompiledGraph) IncomingEdges(id string) []dsl.PipelineEdge {
	edges := g.incoming[id]
	out := make([]dsl.PipelineEdge, len(edges))
	copy(out, edges)
	return out
}

// EntryNodes returns the ids of nodes with no predecessors.
func (g *CompiledGraph) EntryNodes() []string { return copyStrings(g.entry) }

// ExitNodes returns the ids of nodes with no successors.
func (g *CompiledGraph) ExitNodes() []string { return copyStrings(g.exit) }

// ResolvedVersions returns the per-node resolved version snapshot.
func (g *CompiledGraph) ResolvedVersions() map[string]version.ResolvedPair {
	out := make(map[string]version.ResolvedPair, len(g.nodes))
	for id, node := range g.nodes {
		out[id] = node.Resolved
	}
	return out
}

func copyStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
