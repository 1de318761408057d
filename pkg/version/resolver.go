package version

import (
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/dsl"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// ResolvedPair holds the concrete versions chosen for one node.
// Once recorded into an execution's snapshot the pair is frozen for the
// lifetime of that execution, even if the registry is reloaded.
type ResolvedPair struct {
	SubgraphVersion Version `json:"subgraphVersion"`
	ExecutorVersion Version `json:"executorVersion"`
}

// NotFoundError indicates that a component, or the exact version requested of
// it, is not registered.
type NotFoundError struct {
	Component  string
	Constraint string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no registered version of '%s' for constraint '%s'", e.Component, e.Constraint)
}

// Unwrap ties the error into the shared taxonomy.
func (e *NotFoundError) Unwrap() error { return sdkerrors.ErrVersionNotFound }

// IncompatibleError indicates that versions of the component exist but none
// satisfies the declared constraint.
type IncompatibleError struct {
	Component  string
	Constraint string
	Available  []Version
}

// Error implements the error interface.
func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("registered versions of '%s' are incompatible with constraint '%s'", e.Component, e.Constraint)
}

// Unwrap ties the error into the shared taxonomy.
func (e *IncompatibleError) Unwrap() error { return sdkerrors.ErrVersionIncompatible }

// Resolver selects concrete component versions against a registry snapshot.
// Resolution is pure and deterministic: an unchanged registry and identical
// constraint always yield the identical version.
type Resolver struct {
	registry *Registry
}

// NewResolver creates a resolver over the given registry.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve pins both of a node's component references: the subgraph lifecycle
// template and the executor adapter. A node without a subgraph reference
// resolves only its executor.
func (r *Resolver) Resolve(node dsl.PipelineNode) (ResolvedPair, error) {
	pair := ResolvedPair{}

	if node.Subgraph.Name != "" {
		v, err := r.ResolveRef(node.Subgraph.Name, node.Subgraph.Version)
		if err != nil {
			return ResolvedPair{}, fmt.Errorf("node '%s' subgraph: %w", node.ID, err)
		}
		pair.SubgraphVersion = v
	}

	v, err := r.ResolveRef(node.Executor.Name, node.Executor.Version)
	if err != nil {
		return ResolvedPair{}, fmt.Errorf("node '%s' executor: %w", node.ID, err)
	}
	pair.ExecutorVersion = v

	return pair, nil
}

// ResolveAll resolves every node in a graph, keyed by node id.
func (r *Resolver) ResolveAll(graph *dsl.PipelineGraph) (map[string]ResolvedPair, error) {
	resolved := make(map[string]ResolvedPair, len(graph.Nodes))
	for _, node := range graph.Nodes {
		pair, err := r.Resolve(node)
		if err != nil {
			return nil, err
		}
		resolved[node.ID] = pair
	}
	return resolved, nil
}

// ResolveRef resolves a single component reference.
func (r *Resolver) ResolveRef(component, constraintExpr string) (Version, error) {
	constraint, err := ParseConstraint(constraintExpr)
	if err != nil {
		return Version{}, err
	}

	available := r.registry.Versions(component)
	if len(available) == 0 {
		return Version{}, &NotFoundError{Component: component, Constraint: constraint.String()}
	}

	switch constraint.Kind {
	case ConstraintExact:
		for _, v := range available {
			if v.Compare(constraint.Exact) == 0 {
				return v, nil
			}
		}
		return Version{}, &NotFoundError{Component: component, Constraint: constraint.String()}

	case ConstraintLatestCompatible:
		// Lowest major that has a satisfying version, then the highest
		// version within that major. Available is sorted ascending, so the
		// first match fixes the major and the last match within it wins.
		best := Version{}
		found := false
		for _, v := range available {
			if !constraint.Matches(v) {
				continue
			}
			if !found {
				best = v
				found = true
				continue
			}
			if v.CompatibleWith(best) {
				best = v
			}
		}
		if !found {
			return Version{}, &IncompatibleError{Component: component, Constraint: constraint.String(), Available: available}
		}
		return best, nil

	default: // ConstraintRange
		best := Version{}
		found := false
		for _, v := range available {
			if constraint.Matches(v) {
				best = v
				found = true
			}
		}
		if !found {
			return Version{}, &IncompatibleError{Component: component, Constraint: constraint.String(), Available: available}
		}
		return best, nil
	}
}
