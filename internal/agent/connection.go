// ABOUTME: Represents a single connected app and owns its transport port.
// ABOUTME: Outbound frames go through a bounded queue drained by one writer goroutine.

package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/metrics"
	"github.com/2389/fdc3-gateway/internal/protocol"
	"github.com/2389/fdc3-gateway/internal/transport"
)

// ErrConnectionClosed is returned when queueing to a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Connection represents a connected app.
type Connection struct {
	ID          string
	TabID       string
	Origin      string
	Transport   string
	ConnectedAt time.Time

	// directory is the resolved App Directory entry, nil for dynamic apps.
	// Immutable after creation.
	directory *fdc3.AppEntry

	port       transport.Port
	outbound   chan *protocol.Message
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewConnection creates a Connection for port and starts its writer. The
// caller must eventually call Close.
func NewConnection(id string, hello transport.Hello, entry *fdc3.AppEntry, port transport.Port, buffer int, logger *slog.Logger, m *metrics.Metrics) *Connection {
	if buffer < 1 {
		buffer = 1
	}
	c := &Connection{
		ID:          id,
		TabID:       hello.TabID,
		Origin:      hello.Origin,
		Transport:   hello.Transport,
		ConnectedAt: time.Now(),
		directory:   entry,
		port:        port,
		outbound:    make(chan *protocol.Message, buffer),
		done:        make(chan struct{}),
		writerDone:  make(chan struct{}),
		logger:      logger.With("conn_id", id, "origin", hello.Origin),
		metrics:     m,
	}
	go c.writeLoop()
	return c
}

// Directory returns the app's directory entry, or nil for dynamic apps.
func (c *Connection) Directory() *fdc3.AppEntry {
	return c.directory
}

// AppName is the directory name of the app, or its origin when the app has
// no directory entry.
func (c *Connection) AppName() string {
	if c.directory != nil {
		return c.directory.Name
	}
	return c.Origin
}

// Metadata describes this running instance to other apps.
func (c *Connection) Metadata() fdc3.AppMetadata {
	var md fdc3.AppMetadata
	if c.directory != nil {
		md = c.directory.Metadata()
	} else {
		md = fdc3.AppMetadata{Name: c.Origin}
	}
	md.InstanceID = c.ID
	return md
}

// Info describes the connection for introspection.
func (c *Connection) Info() *Info {
	return &Info{
		ID:          c.ID,
		TabID:       c.TabID,
		Origin:      c.Origin,
		AppName:     c.AppName(),
		Transport:   c.Transport,
		Directory:   c.directory != nil,
		ConnectedAt: c.ConnectedAt,
	}
}

// Recv reads the next inbound frame.
func (c *Connection) Recv() (*protocol.Message, error) {
	return c.port.Recv()
}

// Done is closed when the connection is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Deliver queues an agent-initiated event without blocking. It returns false
// when the queue is full or the connection is closed; the frame is dropped.
func (c *Connection) Deliver(msg *protocol.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.outbound <- msg:
		c.metrics.Delivery(msg.Topic, true)
		return true
	default:
		c.metrics.Delivery(msg.Topic, false)
		c.logger.Warn("outbound queue full, dropping frame", "topic", msg.Topic)
		return false
	}
}

// Reply queues a frame, waiting for queue space. Used for replies and the
// environment descriptor, which must not be dropped.
func (c *Connection) Reply(ctx context.Context, msg *protocol.Message) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.outbound <- msg:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) writeLoop() {
	defer close(c.writerDone)

	for {
		select {
		case msg := <-c.outbound:
			if err := c.port.Send(msg); err != nil {
				if !errors.Is(err, transport.ErrClosed) {
					c.logger.Warn("failed to write frame", "topic", msg.Topic, "error", err)
				}
				// Closing the port ends the reader, which tears the
				// connection down through the manager.
				_ = c.port.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close stops the writer and closes the port. Frames still queued are
// discarded. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.port.Close()
		<-c.writerDone
	})
	return err
}
