// Package client is the high-level entry point for running pipelines: it wires
// the parser, validator, version resolver, compiler, and execution engine
// behind one facade so callers go from DSL text to a running execution in a
// single call.
package client

import (
	"context"
	"fmt"

	natsio "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/internal/nats"
	"github.com/wehubfusion/Daedalus/pkg/compiler"
	"github.com/wehubfusion/Daedalus/pkg/dsl"
	"github.com/wehubfusion/Daedalus/pkg/engine"
	"github.com/wehubfusion/Daedalus/pkg/events"
	"github.com/wehubfusion/Daedalus/pkg/executor"
	"github.com/wehubfusion/Daedalus/pkg/record"
	"github.com/wehubfusion/Daedalus/pkg/version"
)

// ControlAction is one of the execution control operations.
type ControlAction string

const (
	ActionPause  ControlAction = "pause"
	ActionResume ControlAction = "resume"
	ActionCancel ControlAction = "cancel"
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger shared by the client and its engine.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStore sets the execution record store. Default is an in-memory store.
func WithStore(store record.Store) Option {
	return func(c *Client) {
		if store != nil {
			c.store = store
		}
	}
}

// WithPublisher sets the progress event publisher. Default discards events.
func WithPublisher(publisher events.Publisher) Option {
	return func(c *Client) {
		if publisher != nil {
			c.publisher = publisher
		}
	}
}

// Client bundles the pipeline core. Construct it once per process with the
// loaded registries; it is safe for concurrent use across executions.
//
// Example usage:
//
//	versions := version.NewRegistry(logger)
//	versions.MustRegister("transform", "1.3.1")
//	capabilities := executor.NewRegistry(logger)
//	capabilities.Register(executor.CapabilityKey{...}, impl)
//
//	c := client.New(versions, capabilities, client.WithLogger(logger))
//	executionID, err := c.StartYAML(ctx, pipelineText, nil)
type Client struct {
	versions     *version.Registry
	capabilities *executor.Registry
	store        record.Store
	publisher    events.Publisher
	logger       *zap.Logger

	engine   *engine.Engine
	natsConn *natsio.Conn
}

// New creates a client over the given version and capability registries.
func New(versions *version.Registry, capabilities *executor.Registry, opts ...Option) *Client {
	c := &Client{
		versions:     versions,
		capabilities: capabilities,
		store:        record.NewMemoryStore(),
		publisher:    events.NopPublisher{},
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.engine = engine.New(c.store, c.capabilities,
		engine.WithLogger(c.logger),
		engine.WithPublisher(c.publisher))
	return c
}

// ConnectEvents establishes a NATS connection and routes progress events
// through it. Executions already running stay controllable and publish their
// subsequent events through the connection.
func (c *Client) ConnectEvents(ctx context.Context, config *nats.ConnectionConfig) error {
	conn, err := nats.Connect(ctx, config, c.logger)
	if err != nil {
		return err
	}
	publisher, err := events.NewNATSPublisher(conn, config.SubjectPrefix, c.logger)
	if err != nil {
		_ = nats.Close(conn)
		return err
	}
	c.natsConn = conn
	c.publisher = publisher
	c.engine.SetPublisher(publisher)
	return nil
}

// Close drains the NATS connection if one was established.
func (c *Client) Close() error {
	if c.natsConn == nil {
		return nil
	}
	err := nats.Close(c.natsConn)
	c.natsConn = nil
	return err
}

// StartYAML parses a YAML pipeline document and starts executing it.
func (c *Client) StartYAML(ctx context.Context, text []byte, variables map[string]interface{}) (string, error) {
	graph, err := dsl.Parse(text)
	if err != nil {
		return "", err
	}
	return c.Start(ctx, graph, variables)
}

// StartJSON parses a JSON pipeline document and starts executing it.
func (c *Client) StartJSON(ctx context.Context, text []byte, variables map[string]interface{}) (string, error) {
	graph, err := dsl.ParseJSON(text)
	if err != nil {
		return "", err
	}
	return c.Start(ctx, graph, variables)
}

// Start validates, resolves, compiles, and begins executing a pipeline graph.
// Validation, resolution, and compilation failures are synchronous: no
// execution record is created and no node runs.
func (c *Client) Start(ctx context.Context, graph *dsl.PipelineGraph, variables map[string]interface{}) (string, error) {
	if err := dsl.Validate(graph); err != nil {
		return "", err
	}

	resolver := version.NewResolver(c.versions)
	resolved, err := resolver.ResolveAll(graph)
	if err != nil {
		return "", err
	}

	compiled, err := compiler.Compile(graph, resolved, c.capabilities)
	if err != nil {
		return "", err
	}

	return c.engine.Start(ctx, compiled, variables)
}

// Run starts a pipeline graph and blocks until it reaches a terminal state,
// then returns the full execution record.
func (c *Client) Run(ctx context.Context, graph *dsl.PipelineGraph, variables map[string]interface{}) (*record.ExecutionRecord, error) {
	executionID, err := c.Start(ctx, graph, variables)
	if err != nil {
		return nil, err
	}
	if err := c.engine.Wait(ctx, executionID); err != nil {
		return nil, err
	}
	return c.store.GetExecution(ctx, executionID)
}

// Control applies a pause, resume, or cancel action to an execution.
func (c *Client) Control(ctx context.Context, executionID string, action ControlAction) error {
	switch action {
	case ActionPause:
		return c.engine.Pause(executionID)
	case ActionResume:
		return c.engine.Resume(ctx, executionID)
	case ActionCancel:
		return c.engine.Cancel(executionID)
	default:
		return fmt.Errorf("unknown control action '%s'", action)
	}
}

// Wait blocks until the execution reaches a terminal state.
func (c *Client) Wait(ctx context.Context, executionID string) error {
	return c.engine.Wait(ctx, executionID)
}

// Progress reports per-node status and attempt counts.
func (c *Client) Progress(executionID string) ([]engine.NodeProgress, error) {
	return c.engine.Progress(executionID)
}

// Status returns the overall execution status.
func (c *Client) Status(executionID string) (record.ExecutionStatus, error) {
	return c.engine.Status(executionID)
}

// Record returns the persisted execution record.
func (c *Client) Record(ctx context.Context, executionID string) (*record.ExecutionRecord, error) {
	return c.store.GetExecution(ctx, executionID)
}

// Engine exposes the underlying engine for callers needing direct access.
func (c *Client) Engine() *engine.Engine {
	return c.engine
}
