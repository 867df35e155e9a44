// ABOUTME: WebSocket transport for browser apps using gorilla/websocket.
// ABOUTME: Provides the upgrade handler with an origin allow-list and a dialer for clients.

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/fdc3-gateway/internal/protocol"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

// wsPort adapts a websocket connection to Port. Writes are serialized by mu.
type wsPort struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	done   chan struct{}
	closed sync.Once
}

func newWSPort(conn *websocket.Conn) *wsPort {
	p := &wsPort{conn: conn, done: make(chan struct{})}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go p.keepalive()
	return p
}

func (p *wsPort) keepalive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			p.mu.Unlock()
			if err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *wsPort) Send(msg *protocol.Message) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := p.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

func (p *wsPort) Recv() (*protocol.Message, error) {
	_, data, err := p.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, ErrClosed
		}
		select {
		case <-p.done:
			return nil, ErrClosed
		default:
		}
		return nil, fmt.Errorf("reading frame: %w", err)
	}

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		// A garbled frame is surfaced as a frame with no topic so the
		// reader can log it without tearing down the connection.
		return &protocol.Message{Data: data}, nil
	}
	return &msg, nil
}

func (p *wsPort) Close() error {
	var err error
	p.closed.Do(func() {
		close(p.done)
		p.mu.Lock()
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		p.mu.Unlock()
		err = p.conn.Close()
	})
	return err
}

// NewUpgrader creates a WebSocket upgrader that accepts the given origins.
// An empty list or "*" accepts every origin.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

// WebSocketHandler upgrades requests and hands each connection to serve.
// The app origin comes from the Origin header, falling back to the origin
// query parameter for non-browser clients. tabId defaults to a fresh uuid.
func WebSocketHandler(upgrader websocket.Upgrader, serve ServeFunc, maxMessageBytes int64, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		if maxMessageBytes > 0 {
			conn.SetReadLimit(maxMessageBytes)
		}

		hello := Hello{
			Origin:    r.Header.Get("Origin"),
			TabID:     r.URL.Query().Get("tabId"),
			Transport: "websocket",
		}
		if hello.Origin == "" {
			hello.Origin = r.URL.Query().Get("origin")
		}
		if hello.TabID == "" {
			hello.TabID = uuid.New().String()
		}

		port := newWSPort(conn)
		defer func() { _ = port.Close() }()

		if err := serve(r.Context(), port, hello); err != nil && !errors.Is(err, ErrClosed) {
			logger.Warn("websocket connection ended with error", "origin", hello.Origin, "error", err)
		}
	})
}

// DialWebSocket connects to an agent's WebSocket endpoint.
func DialWebSocket(ctx context.Context, endpoint, origin, tabID string) (Port, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	q := u.Query()
	if tabID != "" {
		q.Set("tabId", tabID)
	}
	if origin != "" {
		q.Set("origin", origin)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u.Redacted(), err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return newWSPort(conn), nil
}
