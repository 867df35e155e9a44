// ABOUTME: gRPC transport for native apps: a bidi stream of protobuf Frames.
// ABOUTME: Each Frame carries one topic and the same JSON payload the WebSocket transport sends.

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/2389/fdc3-gateway/internal/protocol"
	pb "github.com/2389/fdc3-gateway/proto/fdc3"
)

// Metadata keys carried on the Connect stream.
const (
	MetadataOrigin = "origin"
	MetadataTabID  = "tab-id"
)

// frameStream is the subset of the generated client and server streams used
// by grpcPort.
type frameStream interface {
	Send(*pb.Frame) error
	Recv() (*pb.Frame, error)
}

func toFrame(msg *protocol.Message) *pb.Frame {
	return &pb.Frame{Topic: msg.Topic, Data: msg.Data}
}

func fromFrame(f *pb.Frame) *protocol.Message {
	msg := &protocol.Message{Topic: f.GetTopic()}
	if data := f.GetData(); len(data) > 0 {
		msg.Data = json.RawMessage(data)
	}
	return msg
}

// grpcPort adapts a gRPC stream to Port. Frames are received by a dedicated
// goroutine so Close can unblock Recv on the server side.
type grpcPort struct {
	stream  frameStream
	sendMu  sync.Mutex
	frames  chan *protocol.Message
	recvErr error
	done    chan struct{}
	once    sync.Once
	onClose func()
}

func newGRPCPort(stream frameStream, onClose func()) *grpcPort {
	p := &grpcPort{
		stream:  stream,
		frames:  make(chan *protocol.Message),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	go p.recvLoop()
	return p
}

func (p *grpcPort) recvLoop() {
	defer close(p.frames)
	for {
		frame, err := p.stream.Recv()
		if err != nil {
			p.recvErr = err
			return
		}
		select {
		case p.frames <- fromFrame(frame):
		case <-p.done:
			return
		}
	}
}

func (p *grpcPort) Send(msg *protocol.Message) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if err := p.stream.Send(toFrame(msg)); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrClosed
		}
		return fmt.Errorf("sending frame: %w", err)
	}
	return nil
}

func (p *grpcPort) Recv() (*protocol.Message, error) {
	select {
	case msg, ok := <-p.frames:
		if !ok {
			// recvErr is written before frames is closed.
			if p.recvErr == nil || errors.Is(p.recvErr, io.EOF) || status.Code(p.recvErr) == codes.Canceled {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("receiving frame: %w", p.recvErr)
		}
		return msg, nil
	case <-p.done:
		return nil, ErrClosed
	}
}

func (p *grpcPort) Close() error {
	p.once.Do(func() {
		close(p.done)
		if p.onClose != nil {
			p.onClose()
		}
	})
	return nil
}

// GRPCService hands each Connect stream to a ServeFunc.
type GRPCService struct {
	pb.UnimplementedDesktopAgentServer

	serve  ServeFunc
	logger *slog.Logger
}

// RegisterGRPC registers the desktop agent service on s.
func RegisterGRPC(s *grpc.Server, serve ServeFunc, logger *slog.Logger) *GRPCService {
	svc := &GRPCService{serve: serve, logger: logger}
	pb.RegisterDesktopAgentServer(s, svc)
	return svc
}

// Connect implements pb.DesktopAgentServer.
func (s *GRPCService) Connect(stream pb.DesktopAgent_ConnectServer) error {
	hello := Hello{Transport: "grpc"}
	if md, ok := metadata.FromIncomingContext(stream.Context()); ok {
		if v := md.Get(MetadataOrigin); len(v) > 0 {
			hello.Origin = v[0]
		}
		if v := md.Get(MetadataTabID); len(v) > 0 {
			hello.TabID = v[0]
		}
	}
	if hello.TabID == "" {
		hello.TabID = uuid.New().String()
	}

	port := newGRPCPort(stream, nil)
	defer func() { _ = port.Close() }()

	if err := s.serve(stream.Context(), port, hello); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Warn("grpc connection ended with error", "origin", hello.Origin, "error", err)
		return status.Errorf(codes.Internal, "connection failed: %v", err)
	}
	return nil
}

// DialGRPC opens a Connect stream to the agent at addr. The stream outlives
// ctx; closing the port closes the underlying client connection.
func DialGRPC(ctx context.Context, addr, origin, tabID string) (Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("creating grpc client: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	streamCtx = metadata.AppendToOutgoingContext(streamCtx, MetadataOrigin, origin, MetadataTabID, tabID)

	stream, err := pb.NewDesktopAgentClient(conn).Connect(streamCtx)
	if err != nil {
		cancel()
		_ = conn.Close()
		return nil, fmt.Errorf("opening connect stream: %w", err)
	}

	return newGRPCPort(stream, func() {
		_ = stream.CloseSend()
		cancel()
		_ = conn.Close()
	}), nil
}
