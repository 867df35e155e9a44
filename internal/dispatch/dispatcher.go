// ABOUTME: Topic-to-handler registry and the per-connection read loop.
// ABOUTME: Guarantees one reply per request in flight and no reply for void calls.

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/2389/fdc3-gateway/internal/agent"
	"github.com/2389/fdc3-gateway/internal/dedupe"
	"github.com/2389/fdc3-gateway/internal/metrics"
	"github.com/2389/fdc3-gateway/internal/protocol"
	"github.com/2389/fdc3-gateway/internal/transport"
)

var (
	// ErrInvalidPayload wraps payload decoding and validation failures.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrMalformedFrame is sent back for frames that are not valid JSON.
	ErrMalformedFrame = errors.New("malformed request")

	// ErrHandlerPanic is sent back when a handler panics.
	ErrHandlerPanic = errors.New("internal error")
)

// Request is an inbound request frame.
type Request struct {
	Topic  string
	Header protocol.Header
	Data   json.RawMessage

	validate *validator.Validate
}

// Void reports whether the caller expects no reply.
func (r *Request) Void() bool {
	return r.Header.EventID == ""
}

// Bind decodes the request payload into v and validates it.
func (r *Request) Bind(v any) error {
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, v); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}
	if r.validate != nil {
		if err := r.validate.Struct(v); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}
	return nil
}

// Handler handles requests for one topic.
type Handler interface {
	Handle(ctx context.Context, conn *agent.Connection, req *Request) (any, error)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, conn *agent.Connection, req *Request) (any, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, conn *agent.Connection, req *Request) (any, error) {
	return f(ctx, conn, req)
}

// Options configures a Dispatcher.
type Options struct {
	// Guard rejects a request whose (connection, eventId) is still being
	// handled. Optional.
	Guard *dedupe.Cache
	// MessagesPerSecond limits each connection's inbound rate; 0 disables.
	MessagesPerSecond float64
	Burst             int
	// HandlerTimeout bounds each handler call; 0 disables.
	HandlerTimeout time.Duration
	Metrics        *metrics.Metrics
}

// Dispatcher routes inbound frames to handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	validate *validator.Validate
	opts     Options
	logger   *slog.Logger
}

// New creates a Dispatcher with no handlers.
func New(opts Options, logger *slog.Logger) *Dispatcher {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
		logger:   logger.With("component", "dispatch"),
	}
}

// Register sets the handler for topic.
func (d *Dispatcher) Register(topic string, h Handler) error {
	if h == nil {
		return fmt.Errorf("handler for %q cannot be nil", topic)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[topic]; exists {
		return fmt.Errorf("handler already registered for %q", topic)
	}
	d.handlers[topic] = h
	d.logger.Debug("handler registered", "topic", topic)
	return nil
}

// Topics returns the registered topics, sorted.
func (d *Dispatcher) Topics() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	topics := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Serve processes conn's frames in order until the connection ends. A
// closed connection returns nil.
func (d *Dispatcher) Serve(ctx context.Context, conn *agent.Connection) error {
	var limiter *rate.Limiter
	if d.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(d.opts.MessagesPerSecond), d.opts.Burst)
	}
	if d.opts.Guard != nil {
		defer d.opts.Guard.Forget(conn.ID)
	}

	for {
		msg, err := conn.Recv()
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		d.Dispatch(ctx, conn, msg)
	}
}

// Dispatch handles one frame.
func (d *Dispatcher) Dispatch(ctx context.Context, conn *agent.Connection, msg *protocol.Message) {
	header, err := protocol.ParseHeader(msg.Data)
	if err != nil {
		d.logger.Warn("malformed request",
			"conn_id", conn.ID,
			"topic", msg.Topic,
			"event_id", header.EventID,
			"error", err,
		)
		if header.EventID != "" {
			d.reply(ctx, conn, header.EventID, protocol.Fail(ErrMalformedFrame))
		}
		return
	}

	d.mu.RLock()
	handler, exists := d.handlers[msg.Topic]
	d.mu.RUnlock()

	if !exists {
		d.logger.Warn("no handler for topic",
			"conn_id", conn.ID,
			"topic", msg.Topic,
			"event_id", header.EventID,
		)
		return
	}

	req := &Request{Topic: msg.Topic, Header: header, Data: msg.Data, validate: d.validate}
	if !req.Void() && d.opts.Guard != nil {
		if !d.opts.Guard.Claim(conn.ID, header.EventID) {
			d.logger.Warn("request already in flight, dropping", "conn_id", conn.ID, "event_id", header.EventID)
			return
		}
		defer d.opts.Guard.Release(conn.ID, header.EventID)
	}

	start := time.Now()
	result, err := d.invoke(ctx, handler, conn, req)
	d.opts.Metrics.Request(msg.Topic, err == nil, time.Since(start))

	if err != nil {
		d.logger.Debug("handler failed",
			"conn_id", conn.ID,
			"topic", msg.Topic,
			"event_id", header.EventID,
			"error", err,
		)
	}

	if req.Void() {
		return
	}

	var reply *protocol.Reply
	if err != nil {
		reply = protocol.Fail(err)
	} else if reply, err = protocol.Ok(result); err != nil {
		d.logger.Error("failed to encode result", "topic", msg.Topic, "error", err)
		reply = protocol.Fail(ErrHandlerPanic)
	}
	d.reply(ctx, conn, header.EventID, reply)
}

// invoke runs the handler, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, conn *agent.Connection, req *Request) (result any, err error) {
	if d.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.HandlerTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				"conn_id", conn.ID,
				"topic", req.Topic,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result, err = nil, ErrHandlerPanic
		}
	}()

	return h.Handle(ctx, conn, req)
}

func (d *Dispatcher) reply(ctx context.Context, conn *agent.Connection, eventID string, r *protocol.Reply) {
	msg, err := protocol.NewReply(eventID, r)
	if err != nil {
		d.logger.Error("failed to encode reply", "event_id", eventID, "error", err)
		return
	}
	if err := conn.Reply(ctx, msg); err != nil {
		d.logger.Debug("reply not sent", "conn_id", conn.ID, "event_id", eventID, "error", err)
	}
}
