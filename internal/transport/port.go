// ABOUTME: Port abstraction over bidirectional message transports.
// ABOUTME: Includes the in-process Pipe used by embedded apps and tests.

package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/2389/fdc3-gateway/internal/protocol"
)

// ErrClosed is returned by Send and Recv once a port is closed.
var ErrClosed = errors.New("port closed")

// Port is one end of an app connection.
type Port interface {
	// Send writes a frame. Safe for concurrent use.
	Send(msg *protocol.Message) error
	// Recv blocks until the next frame arrives or the port closes.
	Recv() (*protocol.Message, error)
	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Hello describes a newly accepted connection.
type Hello struct {
	// Origin is the app's origin (scheme://host[:port]).
	Origin string
	// TabID is the host's window/tab identifier for the app.
	TabID string
	// Transport names the transport that accepted the connection.
	Transport string
}

// ServeFunc runs an accepted connection until it ends.
type ServeFunc func(ctx context.Context, port Port, hello Hello) error

// pipe is the shared state of a Pipe pair.
type pipe struct {
	done chan struct{}
	once sync.Once
}

func (p *pipe) close() {
	p.once.Do(func() { close(p.done) })
}

type pipePort struct {
	p   *pipe
	in  <-chan *protocol.Message
	out chan<- *protocol.Message
}

// Pipe returns two connected in-process ports. Closing either end closes
// both.
func Pipe(buffer int) (Port, Port) {
	p := &pipe{done: make(chan struct{})}
	ab := make(chan *protocol.Message, buffer)
	ba := make(chan *protocol.Message, buffer)
	return &pipePort{p: p, in: ba, out: ab}, &pipePort{p: p, in: ab, out: ba}
}

func (pp *pipePort) Send(msg *protocol.Message) error {
	select {
	case <-pp.p.done:
		return ErrClosed
	default:
	}
	select {
	case pp.out <- msg:
		return nil
	case <-pp.p.done:
		return ErrClosed
	}
}

func (pp *pipePort) Recv() (*protocol.Message, error) {
	select {
	case msg := <-pp.in:
		return msg, nil
	case <-pp.p.done:
		// Frames written before the close are still delivered.
		select {
		case msg := <-pp.in:
			return msg, nil
		default:
			return nil, ErrClosed
		}
	}
}

func (pp *pipePort) Close() error {
	pp.p.close()
	return nil
}
