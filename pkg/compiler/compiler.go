// Package compiler turns a validated pipeline graph plus its resolved
// component versions into an immutable, executable plan.
package compiler

import (
	"fmt"
	"sort"

	"github.com/wehubfusion/Daedalus/pkg/dsl"
	"github.com/wehubfusion/Daedalus/pkg/executor"
	"github.com/wehubfusion/Daedalus/pkg/version"
)

// CompilationError indicates the plan could not be built, typically because a
// resolved executor has no registered capability implementation.
type CompilationError struct {
	NodeID string
	Detail string
}

// Error implements the error interface.
func (e *CompilationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("compilation failed at node '%s': %s", e.NodeID, e.Detail)
	}
	return fmt.Sprintf("compilation failed: %s", e.Detail)
}

// Compile merges a validated graph with its resolved versions into a
// CompiledGraph. The topological order is deterministic: ready nodes are
// emitted in ascending node id. Compilation has no side effects and compiling
// the same input twice yields structurally identical plans.
//
// The caller is expected to have run dsl.Validate first; Compile still guards
// against unresolved nodes and missing capabilities.
func Compile(graph *dsl.PipelineGraph, resolved map[string]version.ResolvedPair, capabilities *executor.Registry) (*CompiledGraph, error) {
	if err := dsl.Validate(graph); err != nil {
		return nil, &CompilationError{Detail: fmt.Sprintf("graph failed validation: %v", err)}
	}

	compiled := &CompiledGraph{
		pipelineID:      graph.ID,
		name:            graph.Name,
		platform:        graph.Platform,
		pipelineVersion: graph.Version,
		execution:       graph.Execution,
		nodes:           make(map[string]*CompiledNode, len(graph.Nodes)),
		successors:      make(map[string][]string, len(graph.Nodes)),
		predecessors:    make(map[string][]string, len(graph.Nodes)),
		incoming:        make(map[string][]dsl.PipelineEdge, len(graph.Nodes)),
	}

	for _, node := range graph.Nodes {
		pair, ok := resolved[node.ID]
		if !ok {
			return nil, &CompilationError{NodeID: node.ID, Detail: "no resolved versions for node"}
		}

		capability := executor.CapabilityKey{
			Platform: graph.Platform,
			Type:     node.Executor.Name,
			Version:  pair.ExecutorVersion,
		}
		if capabilities != nil && !capabilities.Has(capability) {
			return nil, &CompilationError{
				NodeID: node.ID,
				Detail: fmt.Sprintf("executor capability %s is not registered", capability),
			}
		}

		compiled.nodes[node.ID] = &CompiledNode{
			Spec:            node,
			Resolved:        pair,
			Capability:      capability,
			EffectiveConfig: mergeConfig(graph.Defaults, node.Config),
		}
	}

	for _, edge := range graph.Edges {
		compiled.successors[edge.Source] = append(compiled.successors[edge.Source], edge.Target)
		compiled.predecessors[edge.Target] = append(compiled.predecessors[edge.Target], edge.Source)
		compiled.incoming[edge.Target] = append(compiled.incoming[edge.Target], edge)
	}
	for id := range compiled.nodes {
		sort.Strings(compiled.successors[id])
		sort.Strings(compiled.predecessors[id])
	}

	compiled.order = topologicalOrder(compiled)

	for _, id := range compiled.order {
		if len(compiled.predecessors[id]) == 0 {
			compiled.entry = append(compiled.entry, id)
		}
		if len(compiled.successors[id]) == 0 {
			compiled.exit = append(compiled.exit, id)
		}
	}

	return compiled, nil
}

// topologicalOrder runs Kahn's algorithm with the ready set kept sorted, so
// ties always break by ascending node id.
func topologicalOrder(g *CompiledGraph) []string {
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.predecessors[id])
	}

	ready := make([]string, 0, len(g.nodes))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, next := range g.successors[id] {
			indegree[next]--
			if indegree[next] == 0 {
				// Insert keeping the ready set sorted.
				pos := sort.SearchStrings(ready, next)
				ready = append(ready, "")
				copy(ready[pos+1:], ready[pos:])
				ready[pos] = next
			}
		}
	}

	return order
}

// mergeConfig overlays node config onto pipeline defaults, field by field.
// The merge is shallow: a node-level key replaces the default wholesale.
func mergeConfig(defaults, overrides map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
