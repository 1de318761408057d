// Package dsl defines the declarative pipeline model and its validator.
// A pipeline is a directed acyclic graph of processing nodes connected by
// edges, parsed from YAML or JSON and validated before compilation.
package dsl

import "time"

// ExecutionMode selects how the engine schedules ready nodes.
type ExecutionMode string

const (
	// ModeSequential processes ready nodes strictly one at a time.
	ModeSequential ExecutionMode = "sequential"
	// ModeParallel dispatches the whole ready frontier concurrently,
	// bounded by the configured concurrency limit.
	ModeParallel ExecutionMode = "parallel"
)

// ExecutionConfig holds pipeline-level scheduling configuration.
type ExecutionConfig struct {
	// Mode is the scheduling mode (sequential or parallel).
	Mode ExecutionMode `yaml:"mode" json:"mode"`
	// Concurrency bounds the number of concurrently running nodes in parallel mode.
	// Values <= 0 mean unbounded.
	Concurrency int `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	// ContinueOnError keeps dispatching dependents of a failed node instead of skipping them.
	ContinueOnError bool `yaml:"continue_on_error,omitempty" json:"continueOnError,omitempty"`
}

// ComponentRef names a versioned component together with its version constraint.
// The constraint expression is resolved by the version package at execution start.
type ComponentRef struct {
	// Name is the registered component name.
	Name string `yaml:"name" json:"name"`
	// Version is the constraint expression: an exact version ("1.2.0"),
	// "latest-compatible", or a range (">=1.2.0 <2.0.0").
	Version string `yaml:"version" json:"version"`
}

// RuleKind discriminates the validation rule variants.
type RuleKind string

const (
	// RuleRequired requires the value to be present and non-empty.
	RuleRequired RuleKind = "required"
	// RuleType requires the value to have a given JSON type.
	RuleType RuleKind = "type"
	// RulePattern requires a string value to match a regular expression.
	RulePattern RuleKind = "pattern"
	// RuleRange requires a numeric value to lie within [Min, Max].
	RuleRange RuleKind = "range"
	// RuleEnum requires the value to be one of a fixed set.
	RuleEnum RuleKind = "enum"
)

// ValidationRule is the canonical, tagged representation of a port validation rule.
// Loose map- or string-typed rules from legacy documents are converted to this
// form by NormalizeRule at the parse boundary; the engine only ever sees this type.
type ValidationRule struct {
	Kind RuleKind `yaml:"kind" json:"kind"`
	// Type is the expected JSON type for RuleType (string, number, boolean, object, array).
	Type string `yaml:"type,omitempty" json:"type,omitempty"`
	// Pattern is the regular expression for RulePattern.
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	// Min and Max bound RuleRange. A nil bound is open.
	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	// Values enumerates the allowed values for RuleEnum.
	Values []interface{} `yaml:"values,omitempty" json:"values,omitempty"`
}

// PortSpec declares a named input or output of a node, optionally carrying
// a schema reference and validation rules checked by the node runtime.
type PortSpec struct {
	Name   string           `yaml:"name" json:"name"`
	Schema string           `yaml:"schema,omitempty" json:"schema,omitempty"`
	Rules  []ValidationRule `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// SecretSource discriminates where a secret value is fetched from.
type SecretSource string

const (
	// SecretEnv reads the secret from an environment variable.
	SecretEnv SecretSource = "env"
	// SecretVault reads the secret from the configured vault path.
	SecretVault SecretSource = "vault"
)

// SecretRef is the canonical, tagged representation of a node secret reference.
type SecretRef struct {
	// Source is where the secret is resolved from.
	Source SecretSource `yaml:"source" json:"source"`
	// Name is the key the executor sees the secret under.
	Name string `yaml:"name" json:"name"`
	// Key is the source-specific lookup key (variable name or vault path).
	Key string `yaml:"key" json:"key"`
}

// RetryPolicy bounds how a node's executor failures are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of executor invocations allowed, including
	// the first. Values <= 0 mean a single attempt with no retries.
	MaxAttempts int `yaml:"max_attempts,omitempty" json:"maxAttempts,omitempty"`
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty" json:"initialBackoff,omitempty"`
	// MaxBackoff caps the exponential backoff growth.
	MaxBackoff time.Duration `yaml:"max_backoff,omitempty" json:"maxBackoff,omitempty"`
}

// Attempts returns the effective total attempt budget.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// ResourceRequirements declares the resources a node's executor needs.
type ResourceRequirements struct {
	CPUMillis int `yaml:"cpu_millis,omitempty" json:"cpuMillis,omitempty"`
	MemoryMB  int `yaml:"memory_mb,omitempty" json:"memoryMB,omitempty"`
	TimeoutMS int `yaml:"timeout_ms,omitempty" json:"timeoutMS,omitempty"`
}

// PipelineNode is a single declared processing step.
type PipelineNode struct {
	// ID is unique within the graph.
	ID string `yaml:"id" json:"id"`
	// Type is a free-form tag describing the node kind.
	Type string `yaml:"type" json:"type"`
	// Executor references the platform adapter that performs the node's work.
	Executor ComponentRef `yaml:"executor" json:"executor"`
	// Subgraph references the reusable lifecycle template the node runs under.
	Subgraph ComponentRef `yaml:"subgraph,omitempty" json:"subgraph,omitempty"`
	// Inputs and Outputs declare the node's ports.
	Inputs  []PortSpec `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs []PortSpec `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	// Retry bounds executor retries for this node.
	Retry RetryPolicy `yaml:"retry,omitempty" json:"retry,omitempty"`
	// Resources declares executor resource requirements.
	Resources ResourceRequirements `yaml:"resources,omitempty" json:"resources,omitempty"`
	// Secrets are resolved and handed to the executor by name.
	Secrets []SecretRef `yaml:"secrets,omitempty" json:"secrets,omitempty"`
	// Config is the node's free-form configuration, merged over pipeline defaults
	// at compile time.
	Config map[string]interface{} `yaml:"config,omitempty" json:"config,omitempty"`
}

// PipelineEdge connects two nodes. The optional condition is a boolean
// expression evaluated against the source node's outputs; when it evaluates
// false the target node is skipped.
type PipelineEdge struct {
	Source    string `yaml:"source" json:"source"`
	Target    string `yaml:"target" json:"target"`
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// PipelineGraph is the parsed, declarative pipeline definition.
type PipelineGraph struct {
	// ID identifies the pipeline.
	ID string `yaml:"id,omitempty" json:"id,omitempty"`
	// Name is the human-readable pipeline name.
	Name string `yaml:"name" json:"name"`
	// Platform names the default platform executors are looked up under.
	Platform string `yaml:"platform" json:"platform"`
	// Version is the declared pipeline version.
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
	// Nodes are the declared processing steps, in document order.
	Nodes []PipelineNode `yaml:"nodes" json:"nodes"`
	// Edges are the declared dependencies.
	Edges []PipelineEdge `yaml:"edges,omitempty" json:"edges,omitempty"`
	// Execution is the pipeline-level scheduling configuration.
	Execution ExecutionConfig `yaml:"execution,omitempty" json:"execution,omitempty"`
	// Defaults are pipeline-level config defaults overridden field by field
	// by each node's own config at compile time.
	Defaults map[string]interface{} `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

// Node returns the node with the given id, or nil.
func (g *PipelineGraph) Node(id string) *PipelineNode {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}
