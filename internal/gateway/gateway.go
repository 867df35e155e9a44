// ABOUTME: Gateway orchestrator that wires the broker components and runs the HTTP and gRPC servers
// ABOUTME: Owns the connection manager, channel router, intent registry, dispatcher and ledger

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/2389/fdc3-gateway/internal/agent"
	"github.com/2389/fdc3-gateway/internal/channels"
	"github.com/2389/fdc3-gateway/internal/client"
	"github.com/2389/fdc3-gateway/internal/config"
	"github.com/2389/fdc3-gateway/internal/dedupe"
	"github.com/2389/fdc3-gateway/internal/directory"
	"github.com/2389/fdc3-gateway/internal/dispatch"
	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/intents"
	"github.com/2389/fdc3-gateway/internal/ledger"
	"github.com/2389/fdc3-gateway/internal/metrics"
	"github.com/2389/fdc3-gateway/internal/store"
	"github.com/2389/fdc3-gateway/internal/transport"
)

// Gateway is the desktop agent. It accepts app connections over WebSocket,
// gRPC or in-process pipes and routes their requests.
type Gateway struct {
	config     *config.Config
	directory  directory.Directory
	router     *channels.Router
	registry   *intents.Registry
	manager    *agent.Manager
	dispatcher *dispatch.Dispatcher
	guard      *dedupe.Cache
	store      store.Store
	ledger     *ledger.Recorder
	metrics    *metrics.Metrics
	grpcServer *grpc.Server
	httpServer *http.Server
	logger     *slog.Logger

	// conns tracks ServeConn calls so Shutdown can wait for teardown.
	conns sync.WaitGroup

	closing      atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error

	mu        sync.Mutex
	httpAddr  net.Addr
	grpcAddr  net.Addr
	listening chan struct{}
}

// initDirectory builds the configured App Directory.
func initDirectory(cfg *config.Config, logger *slog.Logger) (directory.Directory, error) {
	switch {
	case cfg.Directory.URL != "":
		opts := []directory.Option{}
		if cfg.Directory.Timeout > 0 {
			opts = append(opts, directory.WithTimeout(cfg.Directory.Timeout))
		}
		logger.Info("using remote app directory", "url", cfg.Directory.URL)
		return directory.NewClient(cfg.Directory.URL, logger, opts...), nil
	case cfg.Directory.File != "":
		data, err := os.ReadFile(cfg.Directory.File)
		if err != nil {
			return nil, fmt.Errorf("reading directory file: %w", err)
		}
		var entries []fdc3.AppEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parsing directory file: %w", err)
		}
		logger.Info("using static app directory", "file", cfg.Directory.File, "apps", len(entries))
		return directory.NewStatic(entries...), nil
	default:
		logger.Warn("no app directory configured; all apps connect without directory data")
		return directory.NewStatic(), nil
	}
}

// initStore creates the ledger store.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("FDC3_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// createGRPCServer creates the gRPC server carrying the desktop agent service.
func createGRPCServer() *grpc.Server {
	return grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
}

// New creates a Gateway from cfg. Components are built but nothing listens
// until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	dir, err := initDirectory(cfg, logger)
	if err != nil {
		return nil, err
	}
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	gw, err := newGateway(cfg, dir, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// newGateway wires the components around an existing directory and store.
func newGateway(cfg *config.Config, dir directory.Directory, s store.Store, logger *slog.Logger) (*Gateway, error) {
	policy, err := intents.NewPolicy(cfg.Agent.IntentResolution)
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	gw := &Gateway{
		config:    cfg,
		directory: dir,
		router:    channels.NewRouter(cfg.Agent.Channels(), logger),
		registry:  intents.NewRegistry(dir, policy, logger),
		guard:     dedupe.New(cfg.Agent.ReplyDedupeTTL, cfg.Agent.ReplyDedupeMax),
		store:     s,
		ledger:    ledger.NewRecorder(s, logger),
		metrics:   m,
		logger:    logger.With("component", "gateway"),
		listening: make(chan struct{}),
	}

	gw.manager = agent.NewManager(agent.Options{
		Directory:      dir,
		OutboundBuffer: cfg.Agent.OutboundBuffer,
		Metrics:        m,
		BindTab: func(tabID string, conn *agent.Connection) *fdc3.Channel {
			return gw.router.Attach(conn.ID, tabID, conn)
		},
		UnbindTab: func(conn *agent.Connection) {
			gw.router.Unbind(conn.ID)
		},
	}, logger)
	gw.manager.OnDisconnect(func(conn *agent.Connection) {
		gw.router.Detach(conn.ID)
		gw.registry.DropClient(conn.ID)
	})

	gw.dispatcher = dispatch.New(dispatch.Options{
		Guard:             gw.guard,
		MessagesPerSecond: cfg.Limits.MessagesPerSecond,
		Burst:             cfg.Limits.Burst,
		HandlerTimeout:    cfg.Agent.HandlerTimeout,
		Metrics:           m,
	}, logger)
	if err := gw.registerHandlers(); err != nil {
		return nil, fmt.Errorf("registering handlers: %w", err)
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Event streams only end when their feed closes.
	gw.httpServer.RegisterOnShutdown(gw.ledger.Close)

	if cfg.Server.GRPCAddr != "" {
		gw.grpcServer = createGRPCServer()
		transport.RegisterGRPC(gw.grpcServer, gw.ServeConn, logger)
	}

	return gw, nil
}

// ServeConn runs one app connection to completion: it resolves and
// registers the app, dispatches its requests in order and tears it down when
// the port closes. It is the transport.ServeFunc for every transport.
func (g *Gateway) ServeConn(ctx context.Context, port transport.Port, hello transport.Hello) error {
	g.conns.Add(1)
	defer g.conns.Done()

	conn, err := g.manager.Connect(ctx, port, hello)
	if err != nil {
		return err
	}
	g.recordConnection(ctx, store.EventKindConnect, conn)

	defer func() {
		g.manager.Disconnect(conn)
		g.recordConnection(ctx, store.EventKindDisconnect, conn)
	}()

	return g.dispatcher.Serve(ctx, conn)
}

// Connect attaches an in-process app and returns its end of the pipe. The
// connection lives until either end is closed.
func (g *Gateway) Connect(ctx context.Context, hello transport.Hello) transport.Port {
	appSide, agentSide := transport.Pipe(g.config.Agent.OutboundBuffer)
	if hello.Transport == "" {
		hello.Transport = "pipe"
	}
	go func() {
		if err := g.ServeConn(ctx, agentSide, hello); err != nil {
			g.logger.Warn("in-process connection ended with error", "origin", hello.Origin, "error", err)
		}
		_ = agentSide.Close()
	}()
	return appSide
}

// NewClient connects an in-process app and returns its client, bounded by
// the configured call timeout. A zero timeout waits for replies forever.
func (g *Gateway) NewClient(ctx context.Context, hello transport.Hello) *client.Client {
	timeout := g.config.Client.CallTimeout
	if timeout == 0 {
		timeout = -1
	}
	return client.New(g.Connect(ctx, hello), client.Options{CallTimeout: timeout}, g.logger)
}

// AssignTabChannel puts the app in tabID on channelID, queueing the
// assignment when the tab has not connected yet. It reports whether the
// assignment took effect immediately.
func (g *Gateway) AssignTabChannel(tabID, channelID string) (bool, error) {
	applied, err := g.router.AssignTab(tabID, channelID)
	if err != nil {
		return false, err
	}
	g.logger.Info("tab channel assigned", "tab_id", tabID, "channel", channelID, "applied", applied)
	return applied, nil
}

// setupListeners creates TCP listeners for HTTP and, when configured, gRPC.
func (g *Gateway) setupListeners() (httpLn, grpcLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"grpc_addr", g.config.Server.GRPCAddr,
	)

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}

	g.mu.Lock()
	g.httpAddr = httpLn.Addr()
	if grpcLn != nil {
		g.grpcAddr = grpcLn.Addr()
	}
	g.mu.Unlock()
	close(g.listening)

	return httpLn, grpcLn, nil
}

// Addrs waits until Run is listening and returns the bound addresses. The
// gRPC address is nil when gRPC is disabled.
func (g *Gateway) Addrs(ctx context.Context) (httpAddr, grpcAddr net.Addr, err error) {
	select {
	case <-g.listening:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.httpAddr, g.grpcAddr, nil
}

// Run starts the servers and blocks until ctx is canceled or a server
// fails, then shuts down. Returns nil on a graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	httpLn, grpcLn, err := g.setupListeners()
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	if grpcLn != nil {
		eg.Go(func() error {
			g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-egCtx.Done()
		if ctx.Err() != nil {
			g.logger.Info("context canceled, initiating shutdown")
		}
		return g.gracefulShutdown()
	})

	return eg.Wait()
}

// gracefulShutdown performs shutdown with a fresh context and timeout, since
// the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	if g.grpcServer == nil {
		return
	}
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// waitConnections waits for every ServeConn to return.
func (g *Gateway) waitConnections(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections: %w", ctx.Err())
	}
}

// Shutdown stops accepting connections, closes every live app connection
// and releases resources. It is safe to call without Run, and more than
// once.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.shutdownErr = g.shutdown(ctx)
	})
	return g.shutdownErr
}

func (g *Gateway) shutdown(ctx context.Context) error {
	g.closing.Store(true)
	g.logger.Info("shutting down gateway", "connections", g.manager.Count())

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	// Hijacked WebSocket and in-process connections are not tracked by the
	// HTTP server; closing their ports ends each ServeConn.
	g.manager.CloseAll()
	g.shutdownGRPCServer(ctx)
	errs = appendCloseError(errs, "connections", g.waitConnections(ctx))

	g.ledger.Close()
	g.guard.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
