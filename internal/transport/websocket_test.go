// ABOUTME: Tests for the WebSocket transport against an httptest server.
// ABOUTME: Verifies the hello handshake fields and frame round trips.

package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fdc3-gateway/internal/protocol"
)

// echoServe replies to every frame with the same frame, prefixed topic.
func echoServe(hellos chan<- Hello) ServeFunc {
	return func(ctx context.Context, port Port, hello Hello) error {
		hellos <- hello
		for {
			msg, err := port.Recv()
			if err != nil {
				return err
			}
			if err := port.Send(&protocol.Message{Topic: "echo:" + msg.Topic, Data: msg.Data}); err != nil {
				return err
			}
		}
	}
}

func newWSServer(t *testing.T, serve ServeFunc, origins []string) string {
	t.Helper()
	handler := WebSocketHandler(NewUpgrader(origins), serve, 1<<20, slog.New(slog.DiscardHandler))
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketRoundTrip(t *testing.T) {
	hellos := make(chan Hello, 1)
	endpoint := newWSServer(t, echoServe(hellos), nil)

	port, err := DialWebSocket(t.Context(), endpoint, "https://app.example.com", "tab-1")
	require.NoError(t, err)
	defer port.Close()

	select {
	case hello := <-hellos:
		assert.Equal(t, "https://app.example.com", hello.Origin)
		assert.Equal(t, "tab-1", hello.TabID)
		assert.Equal(t, "websocket", hello.Transport)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection")
	}

	require.NoError(t, port.Send(&protocol.Message{Topic: "ping", Data: json.RawMessage(`{"a":1}`)}))
	msg, err := port.Recv()
	require.NoError(t, err)
	assert.Equal(t, "echo:ping", msg.Topic)
	assert.JSONEq(t, `{"a":1}`, string(msg.Data))
}

func TestWebSocketAssignsTabIDWhenMissing(t *testing.T) {
	hellos := make(chan Hello, 1)
	endpoint := newWSServer(t, echoServe(hellos), nil)

	port, err := DialWebSocket(t.Context(), endpoint, "https://app.example.com", "")
	require.NoError(t, err)
	defer port.Close()

	hello := <-hellos
	assert.NotEmpty(t, hello.TabID)
}

func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	hellos := make(chan Hello, 1)
	endpoint := newWSServer(t, echoServe(hellos), []string{"https://trusted.example.com"})

	_, err := DialWebSocket(t.Context(), endpoint, "https://evil.example.com", "tab-1")
	require.Error(t, err)
}

func TestNewUpgraderOriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"empty list allows all", nil, "https://a.example.com", true},
		{"wildcard allows all", []string{"*"}, "https://a.example.com", true},
		{"listed origin", []string{"https://a.example.com"}, "https://a.example.com", true},
		{"unlisted origin", []string{"https://a.example.com"}, "https://b.example.com", false},
		{"no origin header", []string{"https://a.example.com"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := NewUpgrader(tt.allowed)
			req := httptest.NewRequest(http.MethodGet, "/fdc3", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, up.CheckOrigin(req))
		})
	}
}
