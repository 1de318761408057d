package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingConn captures published messages and can be scripted to fail.
type recordingConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func TestNATSPublisherSubjects(t *testing.T) {
	conn := &recordingConn{}
	p := newNATSPublisher(conn, "", nil)

	event := Event{
		Kind:        KindExecutionCompleted,
		ExecutionID: "e1",
		PipelineID:  "p1",
		Status:      "SUCCEEDED",
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "daedalus.executions.e1", conn.subjects[0])

	var decoded Event
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, KindExecutionCompleted, decoded.Kind)
	assert.Equal(t, "SUCCEEDED", decoded.Status)
}

func TestNATSPublisherCustomPrefix(t *testing.T) {
	conn := &recordingConn{}
	p := newNATSPublisher(conn, "pipelines.prod", nil)

	require.NoError(t, p.Publish(context.Background(), Event{ExecutionID: "e2"}))
	assert.Equal(t, []string{"pipelines.prod.e2"}, conn.subjects)
}

func TestNATSPublisherCancelledContext(t *testing.T) {
	conn := &recordingConn{}
	p := newNATSPublisher(conn, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, Event{ExecutionID: "e1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, conn.subjects)
}

func TestNATSPublisherCircuitOpensAfterRepeatedFailures(t *testing.T) {
	conn := &recordingConn{err: errors.New("broker down")}
	p := newNATSPublisher(conn, "", nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		assert.Error(t, p.Publish(ctx, Event{ExecutionID: "e1"}))
	}

	// The breaker is now open: publishes are shed silently.
	conn.err = nil
	require.NoError(t, p.Publish(ctx, Event{ExecutionID: "e1"}))
	assert.Empty(t, conn.subjects)
}

func TestNewNATSPublisherRequiresConnection(t *testing.T) {
	_, err := NewNATSPublisher(nil, "", nil)
	assert.Error(t, err)
}
