package events

import (
	"context"
	"encoding/json"
	"fmt"

	natsio "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
)

// DefaultSubjectPrefix is the subject prefix execution events are published
// under when none is configured.
const DefaultSubjectPrefix = "daedalus.executions"

// natsConn is the slice of *nats.Conn the publisher uses, kept narrow so tests
// can substitute a recorder.
type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes execution events to NATS, one subject per execution
// (<prefix>.<executionId>), so consumers can subscribe to a single run or to
// the whole prefix with a wildcard. Delivery is guarded by a circuit breaker:
// a dead broker sheds events instead of slowing every node completion down.
type NATSPublisher struct {
	conn    natsConn
	prefix  string
	breaker *concurrency.CircuitBreaker
	logger  *zap.Logger
}

// NewNATSPublisher creates a publisher over an established NATS connection.
// An empty prefix falls back to DefaultSubjectPrefix.
func NewNATSPublisher(conn *natsio.Conn, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}
	return newNATSPublisher(conn, prefix, logger), nil
}

func newNATSPublisher(conn natsConn, prefix string, logger *zap.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{
		conn:    conn,
		prefix:  prefix,
		breaker: concurrency.NewCircuitBreaker(10, 0),
		logger:  logger,
	}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.breaker.IsOpen() {
		p.logger.Debug("Event publisher circuit open, dropping event",
			zap.String("executionId", event.ExecutionID),
			zap.String("kind", string(event.Kind)))
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", p.prefix, event.ExecutionID)
	if err := p.conn.Publish(subject, payload); err != nil {
		p.breaker.RecordFailure()
		p.logger.Warn("Failed to publish execution event",
			zap.String("subject", subject),
			zap.String("kind", string(event.Kind)),
			zap.Error(err))
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	p.breaker.RecordSuccess()
	return nil
}
