// Package events defines the execution progress events emitted by the engine
// and the publisher contract they are delivered through.
package events

import (
	"context"
	"time"
)

// Kind identifies the category of a progress event.
type Kind string

const (
	KindExecutionStarted   Kind = "execution.started"
	KindExecutionPaused    Kind = "execution.paused"
	KindExecutionResumed   Kind = "execution.resumed"
	KindExecutionCompleted Kind = "execution.completed"
	KindNodeTransition     Kind = "node.transition"
	KindCheckpointSaved    Kind = "checkpoint.saved"
)

// Event is one progress notification for an execution. Node fields are only
// set for node-scoped kinds.
type Event struct {
	Kind        Kind      `json:"kind"`
	ExecutionID string    `json:"executionId"`
	PipelineID  string    `json:"pipelineId"`
	Status      string    `json:"status,omitempty"`
	NodeID      string    `json:"nodeId,omitempty"`
	NodeStatus  string    `json:"nodeStatus,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher delivers execution events to interested consumers. Publishing is
// best effort from the engine's point of view: a publish failure never fails
// the execution.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }

// ChannelPublisher delivers events to a Go channel, primarily for tests and
// in-process progress consumers. Delivery is non-blocking: events are dropped
// when the channel is full.
type ChannelPublisher struct {
	ch chan Event
}

// NewChannelPublisher creates a channel publisher with the given buffer size.
func NewChannelPublisher(buffer int) *ChannelPublisher {
	return &ChannelPublisher{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the channel.
func (p *ChannelPublisher) Events() <-chan Event { return p.ch }

// Publish implements Publisher.
func (p *ChannelPublisher) Publish(ctx context.Context, event Event) error {
	select {
	case p.ch <- event:
	default:
	}
	return nil
}
