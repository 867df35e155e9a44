// ABOUTME: Tests for the gRPC transport using a loopback listener.
// ABOUTME: Verifies metadata handshake and bidirectional frame delivery.

package transport

import (
	"encoding/json"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"

	"github.com/2389/fdc3-gateway/internal/protocol"
	pb "github.com/2389/fdc3-gateway/proto/fdc3"
)

func newGRPCServer(t *testing.T, serve ServeFunc) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	RegisterGRPC(srv, serve, slog.New(slog.DiscardHandler))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestGRPCRoundTrip(t *testing.T) {
	hellos := make(chan Hello, 1)
	addr := newGRPCServer(t, echoServe(hellos))

	port, err := DialGRPC(t.Context(), addr, "native://blotter", "tab-9")
	require.NoError(t, err)
	defer port.Close()

	require.NoError(t, port.Send(&protocol.Message{Topic: "hi", Data: json.RawMessage(`{"x":"y"}`)}))

	select {
	case hello := <-hellos:
		assert.Equal(t, "native://blotter", hello.Origin)
		assert.Equal(t, "tab-9", hello.TabID)
		assert.Equal(t, "grpc", hello.Transport)
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the stream")
	}

	msg, err := port.Recv()
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", msg.Topic)
	assert.JSONEq(t, `{"x":"y"}`, string(msg.Data))
}

func TestGRPCRecvAfterCloseReturnsErrClosed(t *testing.T) {
	hellos := make(chan Hello, 1)
	addr := newGRPCServer(t, echoServe(hellos))

	port, err := DialGRPC(t.Context(), addr, "native://blotter", "tab-9")
	require.NoError(t, err)
	require.NoError(t, port.Close())

	_, err = port.Recv()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, port.Send(&protocol.Message{Topic: "late"}), ErrClosed)
}

func TestFrameCarriesJSONPayload(t *testing.T) {
	msg := &protocol.Message{
		Topic: "return_joinChannel_1",
		Data:  json.RawMessage(`{"result":true,"data":{"id":"red"}}`),
	}

	wire, err := proto.Marshal(toFrame(msg))
	require.NoError(t, err)

	var frame pb.Frame
	require.NoError(t, proto.Unmarshal(wire, &frame))
	assert.Equal(t, "return_joinChannel_1", frame.GetTopic())

	got := fromFrame(&frame)
	assert.Equal(t, msg.Topic, got.Topic)
	assert.JSONEq(t, string(msg.Data), string(got.Data))

	assert.Nil(t, fromFrame(&pb.Frame{Topic: "ping"}).Data, "empty data stays absent")
}
