package dsl

import "sort"

// Validate checks the structural invariants of a pipeline graph: the graph
// must be non-empty, node ids must be unique, every edge endpoint must
// reference an existing node, and the graph must be acyclic.
//
// Duplicate ids and dangling references are collected in a single pass over
// the declaration; acyclicity is checked with Kahn's algorithm. When a cycle
// exists, the nodes that could not be removed are reported as the cycle.
// Validate has no side effects and does not mutate the graph.
func Validate(graph *PipelineGraph) error {
	if len(graph.Nodes) == 0 {
		return newValidationError(EmptyGraph, "pipeline '%s' declares no nodes", graph.Name)
	}

	ids := make(map[string]bool, len(graph.Nodes))
	for _, node := range graph.Nodes {
		if ids[node.ID] {
			return newValidationError(DuplicateNodeID, "node id '%s' is declared more than once", node.ID)
		}
		ids[node.ID] = true
	}

	indegree := make(map[string]int, len(graph.Nodes))
	successors := make(map[string][]string, len(graph.Nodes))
	for id := range ids {
		indegree[id] = 0
	}
	for _, edge := range graph.Edges {
		if !ids[edge.Source] {
			return newValidationError(DanglingEdge, "edge %s -> %s references unknown source node '%s'", edge.Source, edge.Target, edge.Source)
		}
		if !ids[edge.Target] {
			return newValidationError(DanglingEdge, "edge %s -> %s references unknown target node '%s'", edge.Source, edge.Target, edge.Target)
		}
		successors[edge.Source] = append(successors[edge.Source], edge.Target)
		indegree[edge.Target]++
	}

	// Kahn's algorithm: repeatedly remove zero-indegree nodes. Whatever
	// survives is exactly the set of nodes on or downstream-within a cycle.
	queue := make([]string, 0, len(indegree))
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	removed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		removed++
		for _, next := range successors[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if removed < len(graph.Nodes) {
		cycle := make([]string, 0, len(graph.Nodes)-removed)
		for id, deg := range indegree {
			if deg > 0 {
				cycle = append(cycle, id)
			}
		}
		sort.Strings(cycle)
		verr := newValidationError(CycleDetected, "pipeline '%s' contains a dependency cycle", graph.Name)
		verr.Cycle = cycle
		return verr
	}

	return nil
}
