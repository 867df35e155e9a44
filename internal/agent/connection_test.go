// ABOUTME: Tests for Connection's outbound queue and close behavior.
// ABOUTME: Uses a port whose writes can be held to simulate slow apps.

package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fdc3-gateway/internal/protocol"
	"github.com/2389/fdc3-gateway/internal/transport"
)

// stallPort blocks every Send until released or closed.
type stallPort struct {
	release chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newStallPort() *stallPort {
	return &stallPort{release: make(chan struct{}), closed: make(chan struct{})}
}

func (p *stallPort) Send(*protocol.Message) error {
	select {
	case <-p.release:
		return nil
	case <-p.closed:
		return transport.ErrClosed
	}
}

func (p *stallPort) Recv() (*protocol.Message, error) {
	<-p.closed
	return nil, transport.ErrClosed
}

func (p *stallPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func TestDeliverDropsWhenQueueFull(t *testing.T) {
	port := newStallPort()
	conn := NewConnection("c1", transport.Hello{Origin: "https://a.example.com"}, nil, port, 1, testLogger(), nil)
	defer conn.Close()

	msg := &protocol.Message{Topic: protocol.TopicContext}
	results := []bool{conn.Deliver(msg), conn.Deliver(msg), conn.Deliver(msg)}

	// The writer holds at most one frame and the queue one more.
	assert.Contains(t, results, false)
	assert.True(t, results[0])
}

func TestReplyWaitsForSpace(t *testing.T) {
	port := newStallPort()
	conn := NewConnection("c1", transport.Hello{}, nil, port, 1, testLogger(), nil)
	defer conn.Close()

	msg := &protocol.Message{Topic: "return_x"}
	require.NoError(t, conn.Reply(t.Context(), msg))
	require.Eventually(t, func() bool { return len(conn.outbound) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, conn.Reply(t.Context(), msg))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, conn.Reply(ctx, msg), context.DeadlineExceeded)
}

func TestDeliverAfterCloseFails(t *testing.T) {
	appSide, agentSide := transport.Pipe(4)
	defer appSide.Close()
	conn := NewConnection("c1", transport.Hello{}, nil, agentSide, 4, testLogger(), nil)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.False(t, conn.Deliver(&protocol.Message{Topic: protocol.TopicContext}))
	assert.ErrorIs(t, conn.Reply(t.Context(), &protocol.Message{Topic: "return_x"}), ErrConnectionClosed)

	select {
	case <-conn.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestWriterForwardsInOrder(t *testing.T) {
	appSide, agentSide := transport.Pipe(4)
	conn := NewConnection("c1", transport.Hello{}, nil, agentSide, 4, testLogger(), nil)
	defer conn.Close()

	for _, topic := range []string{"a", "b", "c"} {
		require.True(t, conn.Deliver(&protocol.Message{Topic: topic}))
	}
	for _, want := range []string{"a", "b", "c"} {
		msg, err := appSide.Recv()
		require.NoError(t, err)
		assert.Equal(t, want, msg.Topic)
	}
}
