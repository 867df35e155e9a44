// ABOUTME: Manages connected apps: directory resolution, registration and teardown.
// ABOUTME: Sends each app its environment descriptor before it becomes reachable.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/2389/fdc3-gateway/internal/directory"
	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/metrics"
	"github.com/2389/fdc3-gateway/internal/protocol"
	"github.com/2389/fdc3-gateway/internal/transport"
)

// DefaultOutboundBuffer is the per-connection outbound queue size.
const DefaultOutboundBuffer = 64

// ErrAlreadyRegistered indicates a connection with the same ID is already live.
var ErrAlreadyRegistered = errors.New("connection already registered")

// ErrNotFound indicates the specified connection is not live.
var ErrNotFound = errors.New("connection not found")

// TabBinder attaches a new connection to the channel queued for its tab and
// returns that channel, or nil.
type TabBinder func(tabID string, conn *Connection) *fdc3.Channel

// TabUnbinder undoes a TabBinder for a connection that failed to register.
type TabUnbinder func(conn *Connection)

// DisconnectHook releases state held for a connection.
type DisconnectHook func(conn *Connection)

// Options configures a Manager.
type Options struct {
	Directory      directory.Directory
	OutboundBuffer int
	BindTab        TabBinder
	UnbindTab      TabUnbinder
	Metrics        *metrics.Metrics
}

// Manager owns the table of live connections.
type Manager struct {
	conns   map[string]*Connection
	mu      sync.RWMutex
	hooksMu sync.RWMutex
	hooks   []DisconnectHook
	opts    Options
	logger  *slog.Logger
}

// NewManager creates a new Manager instance.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	if opts.OutboundBuffer <= 0 {
		opts.OutboundBuffer = DefaultOutboundBuffer
	}
	return &Manager{
		conns:  make(map[string]*Connection),
		opts:   opts,
		logger: logger.With("component", "agent"),
	}
}

// OnDisconnect adds a hook run for every connection that ends, in the order
// hooks were added.
func (m *Manager) OnDisconnect(hook DisconnectHook) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Connect resolves the app behind port, queues its environment descriptor
// and registers it. Directory problems never fail the connection; the app is
// registered without directory data instead.
func (m *Manager) Connect(ctx context.Context, port transport.Port, hello transport.Hello) (*Connection, error) {
	entry := m.resolve(ctx, hello.Origin)

	conn := NewConnection(uuid.New().String(), hello, entry, port, m.opts.OutboundBuffer, m.logger, m.opts.Metrics)

	var current *fdc3.Channel
	if m.opts.BindTab != nil {
		current = m.opts.BindTab(hello.TabID, conn)
	}

	env, err := protocol.NewEvent(protocol.TopicEnvironment, protocol.EnvironmentData{
		CurrentChannel: current,
		TabID:          hello.TabID,
		Directory:      entry,
	})
	if err == nil {
		err = conn.Reply(ctx, env)
	}
	if err == nil {
		err = m.Register(conn)
	}
	if err != nil {
		if m.opts.UnbindTab != nil {
			m.opts.UnbindTab(conn)
		}
		m.runHooks(conn)
		_ = conn.Close()
		return nil, fmt.Errorf("registering %s: %w", hello.Origin, err)
	}
	return conn, nil
}

// resolve looks origin up in the directory. Zero or several matches, and
// any lookup failure, yield nil.
func (m *Manager) resolve(ctx context.Context, origin string) *fdc3.AppEntry {
	if m.opts.Directory == nil {
		m.opts.Metrics.DirectoryResolution(metrics.ResolutionDynamic)
		return nil
	}

	entries, err := m.opts.Directory.Search(ctx, origin)
	if err != nil {
		m.logger.Warn("directory lookup failed, registering without directory data",
			"origin", origin, "error", err)
		m.opts.Metrics.DirectoryResolution(metrics.ResolutionFailed)
		return nil
	}

	switch len(entries) {
	case 0:
		m.logger.Info("no directory match, treating as dynamic app", "origin", origin)
		m.opts.Metrics.DirectoryResolution(metrics.ResolutionDynamic)
		return nil
	case 1:
	default:
		m.logger.Warn("ambiguous directory match, treating as dynamic app",
			"origin", origin,
			"ambiguous", true,
			"matches", lo.Map(entries, func(e fdc3.AppEntry, _ int) string { return e.Name }),
		)
		m.opts.Metrics.DirectoryResolution(metrics.ResolutionAmbiguous)
		return nil
	}

	entry := entries[0]
	if entry.HasActions {
		actions, err := m.opts.Directory.Actions(ctx, entry.Name)
		if err != nil {
			m.logger.Warn("action lookup failed, registering without actions",
				"app", entry.Name, "error", err)
		} else {
			entry.Actions = actions
		}
	}
	m.opts.Metrics.DirectoryResolution(metrics.ResolutionMatched)
	return &entry
}

// Register adds a connection to the live table.
// Returns ErrAlreadyRegistered if a connection with the same ID exists.
func (m *Manager) Register(conn *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conns[conn.ID]; exists {
		return ErrAlreadyRegistered
	}

	m.conns[conn.ID] = conn
	m.opts.Metrics.ConnectionOpened()
	m.logger.Info("=== APP CONNECTED ===",
		"conn_id", conn.ID,
		"app", conn.AppName(),
		"tab_id", conn.TabID,
		"transport", conn.Transport,
		"directory", conn.directory != nil,
		"total_apps", len(m.conns),
	)
	return nil
}

// Disconnect removes a connection, releases everything registered for it
// and closes it.
func (m *Manager) Disconnect(conn *Connection) {
	m.mu.Lock()
	_, exists := m.conns[conn.ID]
	if exists {
		delete(m.conns, conn.ID)
	}
	remaining := len(m.conns)
	m.mu.Unlock()

	if exists {
		m.runHooks(conn)
	}
	_ = conn.Close()

	if exists {
		m.opts.Metrics.ConnectionClosed()
		m.logger.Info("=== APP DISCONNECTED ===",
			"conn_id", conn.ID,
			"app", conn.AppName(),
			"connected_for", time.Since(conn.ConnectedAt).Round(time.Millisecond),
			"total_apps", remaining,
		)
	}
}

func (m *Manager) runHooks(conn *Connection) {
	m.hooksMu.RLock()
	hooks := append([]DisconnectHook(nil), m.hooks...)
	m.hooksMu.RUnlock()

	for _, hook := range hooks {
		hook(conn)
	}
}

// Get retrieves a live connection by ID.
func (m *Manager) Get(id string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.conns[id]
	return conn, ok
}

// ByTab returns the live connection for a tab, if any.
func (m *Manager) ByTab(tabID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, conn := range m.conns {
		if conn.TabID == tabID {
			return conn, true
		}
	}
	return nil, false
}

// ByName returns the live connections whose app name is name, oldest first.
func (m *Manager) ByName(name string) []*Connection {
	m.mu.RLock()
	matches := lo.Filter(lo.Values(m.conns), func(c *Connection, _ int) bool {
		return c.AppName() == name
	})
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ConnectedAt.Before(matches[j].ConnectedAt)
	})
	return matches
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// List returns information about all live connections, oldest first.
func (m *Manager) List() []*Info {
	m.mu.RLock()
	infos := make([]*Info, 0, len(m.conns))
	for _, conn := range m.conns {
		infos = append(infos, conn.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// CloseAll closes every live connection's port. Each connection's reader
// then ends and tears the connection down through Disconnect.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	conns := lo.Values(m.conns)
	m.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.port.Close()
	}
}

// Info contains public information about a live connection.
type Info struct {
	ID          string    `json:"id"`
	TabID       string    `json:"tabId"`
	Origin      string    `json:"origin"`
	AppName     string    `json:"appName"`
	Transport   string    `json:"transport"`
	Directory   bool      `json:"directory"`
	ConnectedAt time.Time `json:"connectedAt"`
}
