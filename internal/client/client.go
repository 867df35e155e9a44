// ABOUTME: Correlation layer: turns calls into tagged requests and matches replies by eventId.
// ABOUTME: Also receives the environment descriptor and agent-pushed events.

package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/protocol"
	"github.com/2389/fdc3-gateway/internal/transport"
)

// DefaultCallTimeout bounds awaited calls when Options leaves it unset.
const DefaultCallTimeout = 30 * time.Second

// eventBuffer is the number of pushed events held for handlers.
const eventBuffer = 64

// ErrClosed is returned by calls issued on, or pending at, a closed client.
var ErrClosed = errors.New("client closed")

// Options configures a Client.
type Options struct {
	// CallTimeout bounds awaited calls. Negative disables the bound; zero
	// uses DefaultCallTimeout.
	CallTimeout time.Duration
}

type pendingCall struct {
	method string
	ch     chan *protocol.Reply
}

// Client is an app's connection to the agent.
type Client struct {
	port    transport.Port
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall
	lastTS  int64

	envOnce  sync.Once
	envReady chan struct{}
	env      protocol.EnvironmentData

	handlers *handlerSet
	events   chan *protocol.Message

	done      chan struct{}
	readDone  chan struct{}
	eventDone chan struct{}
	closeOnce sync.Once
}

// New starts a client on port. Close releases it.
func New(port transport.Port, opts Options, logger *slog.Logger) *Client {
	timeout := opts.CallTimeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}
	c := &Client{
		port:      port,
		timeout:   timeout,
		logger:    logger.With("component", "client"),
		pending:   make(map[string]*pendingCall),
		envReady:  make(chan struct{}),
		handlers:  newHandlerSet(),
		events:    make(chan *protocol.Message, eventBuffer),
		done:      make(chan struct{}),
		readDone:  make(chan struct{}),
		eventDone: make(chan struct{}),
	}
	go c.readLoop()
	go c.eventLoop()
	return c
}

// Environment waits for the environment descriptor sent on connect.
func (c *Client) Environment(ctx context.Context) (protocol.EnvironmentData, error) {
	select {
	case <-c.envReady:
		return c.env, nil
	case <-c.done:
		return protocol.EnvironmentData{}, ErrClosed
	case <-ctx.Done():
		return protocol.EnvironmentData{}, ctx.Err()
	}
}

// Call sends an awaited request and waits for its reply. A rejected reply
// is returned together with the typed error it names.
func (c *Client) Call(ctx context.Context, method string, payload any) (*protocol.Reply, error) {
	eventID, ts, pc, err := c.register(method)
	if err != nil {
		return nil, err
	}

	msg, err := protocol.NewRequest(protocol.Header{Method: method, EventID: eventID, TS: ts}, payload)
	if err != nil {
		c.forget(eventID)
		return nil, err
	}
	if err := c.port.Send(msg); err != nil {
		c.forget(eventID)
		if errors.Is(err, transport.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}

	var timeout <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case reply := <-pc.ch:
		if !reply.Result {
			return reply, fdc3.ParseError(method, reply.Error)
		}
		return reply, nil
	case <-timeout:
		c.forget(eventID)
		if method == protocol.MethodOpen {
			return nil, fdc3.AppTimeout
		}
		return nil, fdc3.ResolverTimeout
	case <-ctx.Done():
		c.forget(eventID)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// Notify sends a void request. No reply is expected.
func (c *Client) Notify(_ context.Context, method string, payload any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.mu.Lock()
	ts := c.nextTSLocked()
	c.mu.Unlock()

	msg, err := protocol.NewRequest(protocol.Header{Method: method, TS: ts}, payload)
	if err != nil {
		return err
	}
	if err := c.port.Send(msg); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// register allocates a correlation id and records the pending call before
// anything is sent, so a reply can never arrive ahead of its listener.
func (c *Client) register(method string) (string, int64, *pendingCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return "", 0, nil, ErrClosed
	default:
	}

	ts := c.nextTSLocked()
	eventID := protocol.EventID(method, ts)
	for {
		if _, taken := c.pending[eventID]; !taken {
			break
		}
		ts++
		eventID = protocol.EventID(method, ts)
	}
	c.lastTS = max(c.lastTS, ts)

	pc := &pendingCall{method: method, ch: make(chan *protocol.Reply, 1)}
	c.pending[eventID] = pc
	return eventID, ts, pc, nil
}

// nextTSLocked returns a strictly increasing Unix-nanosecond timestamp.
func (c *Client) nextTSLocked() int64 {
	ts := time.Now().UnixNano()
	if ts <= c.lastTS {
		ts = c.lastTS + 1
	}
	c.lastTS = ts
	return ts
}

func (c *Client) forget(eventID string) {
	c.mu.Lock()
	delete(c.pending, eventID)
	c.mu.Unlock()
}

// Outstanding returns the number of calls awaiting a reply.
func (c *Client) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	defer close(c.events)

	for {
		msg, err := c.port.Recv()
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) {
				c.logger.Warn("connection to agent failed", "error", err)
			}
			c.shutdown()
			return
		}

		if eventID, ok := protocol.EventIDFromReplyTopic(msg.Topic); ok {
			c.resolve(eventID, msg.Data)
			continue
		}

		switch msg.Topic {
		case protocol.TopicEnvironment:
			c.handleEnvironment(msg.Data)
		case protocol.TopicContext, protocol.TopicIntent, protocol.TopicOpen:
			select {
			case c.events <- msg:
			default:
				c.logger.Warn("event queue full, dropping event", "topic", msg.Topic)
			}
		default:
			c.logger.Debug("ignoring frame", "topic", msg.Topic)
		}
	}
}

func (c *Client) handleEnvironment(data json.RawMessage) {
	c.envOnce.Do(func() {
		if err := json.Unmarshal(data, &c.env); err != nil {
			c.logger.Warn("malformed environment descriptor", "error", err)
		}
		close(c.envReady)
	})
}

// resolve completes the pending call for eventID. Replies for unknown or
// expired ids are ignored.
func (c *Client) resolve(eventID string, data json.RawMessage) {
	c.mu.Lock()
	pc, ok := c.pending[eventID]
	if ok {
		delete(c.pending, eventID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("reply for unknown call", "event_id", eventID)
		return
	}

	reply := &protocol.Reply{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, reply); err != nil {
			c.logger.Warn("malformed reply", "event_id", eventID, "error", err)
			reply = &protocol.Reply{}
		}
	}
	pc.ch <- reply
}

// shutdown marks the client closed and fails every pending call.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
	default:
		close(c.done)
	}
	clear(c.pending)
}

// Done is closed when the connection to the agent ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close disconnects from the agent and waits for the client's goroutines.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.port.Close()
		<-c.readDone
		<-c.eventDone
	})
	return err
}
