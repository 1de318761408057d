package dsl

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// document is the wire shape of a pipeline definition. Rule and secret fields
// are decoded loosely and canonicalized through the normalize shims, so legacy
// documents with shorthand strings or bare maps keep parsing.
type document struct {
	Pipeline pipelineDoc `yaml:"pipeline" json:"pipeline"`
}

type pipelineDoc struct {
	ID        string                 `yaml:"id,omitempty" json:"id,omitempty"`
	Name      string                 `yaml:"name" json:"name"`
	Platform  string                 `yaml:"platform" json:"platform"`
	Version   string                 `yaml:"version,omitempty" json:"version,omitempty"`
	Nodes     []nodeDoc              `yaml:"nodes" json:"nodes"`
	Edges     []PipelineEdge         `yaml:"edges,omitempty" json:"edges,omitempty"`
	Execution ExecutionConfig        `yaml:"execution,omitempty" json:"execution,omitempty"`
	Defaults  map[string]interface{} `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

type nodeDoc struct {
	ID        string                 `yaml:"id" json:"id"`
	Type      string                 `yaml:"type" json:"type"`
	Executor  ComponentRef           `yaml:"executor" json:"executor"`
	Subgraph  ComponentRef           `yaml:"subgraph,omitempty" json:"subgraph,omitempty"`
	Inputs    []portDoc              `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs   []portDoc              `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Retry     retryDoc               `yaml:"retry,omitempty" json:"retry,omitempty"`
	Resources ResourceRequirements   `yaml:"resources,omitempty" json:"resources,omitempty"`
	Secrets   []interface{}          `yaml:"secrets,omitempty" json:"secrets,omitempty"`
	Config    map[string]interface{} `yaml:"config,omitempty" json:"config,omitempty"`
}

type portDoc struct {
	Name   string        `yaml:"name" json:"name"`
	Schema string        `yaml:"schema,omitempty" json:"schema,omitempty"`
	Rules  []interface{} `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// retryDoc carries backoff values in milliseconds on the wire so YAML and JSON
// documents stay plain-number friendly.
type retryDoc struct {
	MaxAttempts      int `yaml:"max_attempts,omitempty" json:"maxAttempts,omitempty"`
	InitialBackoffMS int `yaml:"initial_backoff_ms,omitempty" json:"initialBackoffMs,omitempty"`
	MaxBackoffMS     int `yaml:"max_backoff_ms,omitempty" json:"maxBackoffMs,omitempty"`
}

// Parse decodes a YAML pipeline document into a PipelineGraph.
// The graph is structurally unchecked; call Validate before compiling it.
func Parse(text []byte) (*PipelineGraph, error) {
	var doc document
	if err := yaml.Unmarshal(text, &doc); err != nil {
		return nil, &ParseError{Format: "yaml", Err: err}
	}
	graph, err := fromDocument(&doc)
	if err != nil {
		return nil, &ParseError{Format: "yaml", Err: err}
	}
	return graph, nil
}

// ParseJSON decodes a JSON pipeline document into a PipelineGraph.
func ParseJSON(text []byte) (*PipelineGraph, error) {
	var doc document
	if err := json.Unmarshal(text, &doc); err != nil {
		return nil, &ParseError{Format: "json", Err: err}
	}
	graph, err := fromDocument(&doc)
	if err != nil {
		return nil, &ParseError{Format: "json", Err: err}
	}
	return graph, nil
}

// Export serializes a graph back to its YAML document form.
// Export(Parse(text)) is semantically lossless: nodes, edges and config values
// survive the round trip even though formatting may differ.
func Export(graph *PipelineGraph) ([]byte, error) {
	return yaml.Marshal(toDocument(graph))
}

// ExportJSON serializes a graph back to its JSON document form.
func ExportJSON(graph *PipelineGraph) ([]byte, error) {
	return json.Marshal(toDocument(graph))
}

func fromDocument(doc *document) (*PipelineGraph, error) {
	p := doc.Pipeline
	graph := &PipelineGraph{
		ID:        p.ID,
		Name:      p.Name,
		Platform:  p.Platform,
		Version:   p.Version,
		Edges:     append([]PipelineEdge(nil), p.Edges...),
		Execution: p.Execution,
		Defaults:  p.Defaults,
	}
	if graph.Execution.Mode == "" {
		graph.Execution.Mode = ModeSequential
	}

	graph.Nodes = make([]PipelineNode, 0, len(p.Nodes))
	for _, nd := range p.Nodes {
		node := PipelineNode{
			ID:       nd.ID,
			Type:     nd.Type,
			Executor: nd.Executor,
			Subgraph: nd.Subgraph,
			Retry: RetryPolicy{
				MaxAttempts:    nd.Retry.MaxAttempts,
				InitialBackoff: time.Duration(nd.Retry.InitialBackoffMS) * time.Millisecond,
				MaxBackoff:     time.Duration(nd.Retry.MaxBackoffMS) * time.Millisecond,
			},
			Resources: nd.Resources,
			Config:    nd.Config,
		}

		var err error
		if node.Inputs, err = normalizePorts(nd.ID, nd.Inputs); err != nil {
			return nil, err
		}
		if node.Outputs, err = normalizePorts(nd.ID, nd.Outputs); err != nil {
			return nil, err
		}
		for i, raw := range nd.Secrets {
			secret, err := NormalizeSecret(raw)
			if err != nil {
				return nil, fmt.Errorf("node '%s' secret %d: %w", nd.ID, i, err)
			}
			node.Secrets = append(node.Secrets, secret)
		}

		graph.Nodes = append(graph.Nodes, node)
	}

	return graph, nil
}

func normalizePorts(nodeID string, ports []portDoc) ([]PortSpec, error) {
	if len(ports) == 0 {
		return nil, nil
	}
	specs := make([]PortSpec, 0, len(ports))
	for _, pd := range ports {
		spec := PortSpec{Name: pd.Name, Schema: pd.Schema}
		for i, raw := range pd.Rules {
			rule, err := NormalizeRule(raw)
			if err != nil {
				return nil, fmt.Errorf("node '%s' port '%s' rule %d: %w", nodeID, pd.Name, i, err)
			}
			spec.Rules = append(spec.Rules, rule)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func toDocument(graph *PipelineGraph) *document {
	p := pipelineDoc{
		ID:        graph.ID,
		Name:      graph.Name,
		Platform:  graph.Platform,
		Version:   graph.Version,
		Edges:     graph.Edges,
		Execution: graph.Execution,
		Defaults:  graph.Defaults,
	}

	p.Nodes = make([]nodeDoc, 0, len(graph.Nodes))
	for _, node := range graph.Nodes {
		nd := nodeDoc{
			ID:       node.ID,
			Type:     node.Type,
			Executor: node.Executor,
			Subgraph: node.Subgraph,
			Retry: retryDoc{
				MaxAttempts:      node.Retry.MaxAttempts,
				InitialBackoffMS: int(node.Retry.InitialBackoff / time.Millisecond),
				MaxBackoffMS:     int(node.Retry.MaxBackoff / time.Millisecond),
			},
			Resources: node.Resources,
			Config:    node.Config,
		}
		nd.Inputs = exportPorts(node.Inputs)
		nd.Outputs = exportPorts(node.Outputs)
		for _, secret := range node.Secrets {
			nd.Secrets = append(nd.Secrets, map[string]interface{}{
				"source": string(secret.Source),
				"name":   secret.Name,
				"key":    secret.Key,
			})
		}
		p.Nodes = append(p.Nodes, nd)
	}

	return &document{Pipeline: p}
}

func exportPorts(specs []PortSpec) []portDoc {
	if len(specs) == 0 {
		return nil
	}
	ports := make([]portDoc, 0, len(specs))
	for _, spec := range specs {
		pd := portDoc{Name: spec.Name, Schema: spec.Schema}
		for _, rule := range spec.Rules {
			pd.Rules = append(pd.Rules, exportRule(rule))
		}
		ports = append(ports, pd)
	}
	return ports
}

func exportRule(rule ValidationRule) map[string]interface{} {
	m := map[string]interface{}{"kind": string(rule.Kind)}
	if rule.Type != "" {
		m["type"] = rule.Type
	}
	if rule.Pattern != "" {
		m["pattern"] = rule.Pattern
	}
	if rule.Min != nil {
		m["min"] = *rule.Min
	}
	if rule.Max != nil {
		m["max"] = *rule.Max
	}
	if len(rule.Values) > 0 {
		m["values"] = rule.Values
	}
	return m
}
