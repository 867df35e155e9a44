// ABOUTME: Agent-side handlers for every request topic an app may send
// ABOUTME: Each handler binds its payload, calls the router or registry, and records the outcome

package gateway

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"github.com/2389/fdc3-gateway/internal/agent"
	"github.com/2389/fdc3-gateway/internal/directory"
	"github.com/2389/fdc3-gateway/internal/dispatch"
	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/intents"
	"github.com/2389/fdc3-gateway/internal/protocol"
	"github.com/2389/fdc3-gateway/internal/store"
)

// errContextType is returned for requests whose context has no type.
var errContextType = fmt.Errorf("%w: context must be an object with a type", dispatch.ErrInvalidPayload)

// registerHandlers binds every supported topic on the dispatcher.
func (g *Gateway) registerHandlers() error {
	handlers := map[string]dispatch.HandlerFunc{
		protocol.MethodOpen:                  g.handleOpen,
		protocol.MethodBroadcast:             g.handleBroadcast,
		protocol.MethodRaiseIntent:           g.handleRaiseIntent,
		protocol.MethodFindIntent:            g.handleFindIntent,
		protocol.MethodFindIntentsByContext:  g.handleFindIntentsByContext,
		protocol.MethodGetSystemChannels:     g.handleGetSystemChannels,
		protocol.MethodJoinChannel:           g.handleJoinChannel,
		protocol.MethodLeaveCurrentChannel:   g.handleLeaveCurrentChannel,
		protocol.MethodGetCurrentChannel:     g.handleGetCurrentChannel,
		protocol.MethodGetCurrentContext:     g.handleGetCurrentContext,
		protocol.MethodGetOrCreateChannel:    g.handleGetOrCreateChannel,
		protocol.MethodAddContextListener:    g.handleAddContextListener,
		protocol.MethodRemoveContextListener: g.handleRemoveContextListener,
		protocol.MethodAddIntentListener:     g.handleAddIntentListener,
		protocol.MethodRemoveIntentListener:  g.handleRemoveIntentListener,
	}
	for topic, h := range handlers {
		if err := g.dispatcher.Register(topic, h); err != nil {
			return err
		}
	}
	return nil
}

// handleOpen forwards an open to the oldest running instance of the named
// app, or to the instance with that id. The agent never launches apps, so a
// directory app that is not running fails with ErrorOnLaunch.
func (g *Gateway) handleOpen(ctx context.Context, conn *agent.Connection, req *dispatch.Request) (any, error) {
	var p protocol.OpenRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	target, err := g.openTarget(ctx, p.Name)
	event := &store.LedgerEvent{Kind: store.EventKindOpen, ContextType: p.Context.Type(), Target: p.Name}
	if err != nil {
		g.recordEvent(ctx, conn, event, err)
		return nil, err
	}

	source := conn.Metadata()
	msg, err := protocol.NewEvent(protocol.TopicOpen, protocol.OpenEvent{Context: p.Context, Source: &source})
	if err != nil {
		return nil, err
	}
	if !target.Deliver(msg) {
		g.recordEvent(ctx, conn, event, fdc3.ErrorOnLaunch)
		return nil, fdc3.ErrorOnLaunch
	}

	event.Target = target.ID
	g.recordEvent(ctx, conn, event, nil)
	return target.Metadata(), nil
}

func (g *Gateway) openTarget(ctx context.Context, name string) (*agent.Connection, error) {
	if conn, ok := g.manager.Get(name); ok {
		return conn, nil
	}
	if running := g.manager.ByName(name); len(running) > 0 {
		return running[0], nil
	}

	_, err := g.directory.Get(ctx, name)
	switch {
	case err == nil:
		return nil, fdc3.ErrorOnLaunch
	case errors.Is(err, directory.ErrNotFound):
		return nil, fdc3.AppNotFound
	default:
		g.logger.Warn("directory lookup for open failed", "name", name, "error", err)
		return nil, fdc3.OpenResolverUnavailable
	}
}

func (g *Gateway) handleBroadcast(ctx context.Context, conn *agent.Connection, req *dispatch.Request) (any, error) {
	var p protocol.BroadcastRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	channel, _ := g.router.CurrentChannel(conn.ID)
	delivered, err := g.router.Broadcast(conn.ID, p.Context)
	if err != nil {
		return nil, err
	}

	if channel != nil {
		g.recordEvent(ctx, conn, &store.LedgerEvent{
			Kind:        store.EventKindBroadcast,
			Channel:     channel.ID,
			ContextType: p.Context.Type(),
		}, nil)
	}
	g.logger.Debug("broadcast", "conn_id", conn.ID, "context_type", p.Context.Type(), "delivered", delivered)
	return nil, nil
}

func (g *Gateway) handleRaiseIntent(ctx context.Context, conn *agent.Connection, req *dispatch.Request) (any, error) {
	var p protocol.RaiseIntentRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if !p.Context.Valid() {
		return nil, errContextType
	}

	res, err := g.registry.Raise(ctx, p.Intent, p.Context, p.Target, conn.Metadata())

	outcome := "delivered"
	if kind, ok := fdc3.Kind(err); ok {
		outcome = kind
	} else if err != nil {
		outcome = "error"
	}
	g.metrics.IntentRaised(outcome)

	g.recordEvent(ctx, conn, &store.LedgerEvent{
		Kind:        store.EventKindIntent,
		Intent:      p.Intent,
		ContextType: p.Context.Type(),
		Target:      cmp.Or(res.Source.InstanceID, p.Target),
	}, err)

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (g *Gateway) handleFindIntent(ctx context.Context, _ *agent.Connection, req *dispatch.Request) (any, error) {
	var p protocol.FindIntentRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	return g.registry.Find(ctx, p.Intent, p.Context.Type())
}

func (g *Gateway) handleFindIntentsByContext(ctx context.Context, _ *agent.Connection, req *dispatch.Request) (any, error) {
	var p protocol.FindIntentsByContextRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if !p.Context.Valid() {
		return nil, errContextType
	}
	return g.registry.FindByContext(ctx, p.Context.Type())
}

func (g *Gateway) handleGetSystemChannels(_ context.Context, _ *agent.Connection, _ *dispatch.Request) (any, error) {
	return g.router.SystemChannels(), nil
}

func (g *Gateway) handleJoinChannel(ctx context.Context, conn *agent.Connection, req *dispatch.Request) (any, error) {
	var p protocol.JoinChannelRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	ch, err := g.router.Join(conn.ID, p.Channel)
	g.recordEvent(ctx, conn, &store.LedgerEvent{Kind: store.EventKindJoin, Channel: p.Channel}, err)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (g *Gateway) handleLeaveCurrentChannel(ctx context.Context, conn *agent.Connection, _ *dispatch.Request) (any, error) {
	current, _ := g.router.CurrentChannel(conn.ID)
	if err := g.router.Leave(conn.ID); err != nil {
		return nil, err
	}
	if current != nil {
		g.recordEvent(ctx, conn, &store.LedgerEvent{Kind: store.EventKindLeave, Channel: current.ID}, nil)
	}
	return nil, nil
}

func (g *Gateway) handleGetCurrentChannel(_ context.Context, conn *agent.Connection, _ *dispatch.Request) (any, error) {
	return g.router.CurrentChannel(conn.ID)
}

// handleGetCurrentContext reads the latest context on the named channel,
// or the caller's channel when none is named.
func (g *Gateway) handleGetCurrentContext(_ context.Context, conn *agent.Connection, req *dispatch.Request) (any, error) {
	var p protocol.GetCurrentContextRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}

	channelID := p.Channel
	if channelID == "" {
		current, err := g.router.CurrentChannel(conn.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, fdc3.NoChannelFound
		}
		channelID = current.ID
	}
	return g.router.CurrentContext(channelID, p.ContextType)
}

func (g *Gateway) handleGetOrCreateChannel(_ context.Context, _ *agent.Connection, req *dispatch.Request) (any, error) {
	var p protocol.GetOrCreateChannelRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	return g.router.GetOrCreate(p.Channel)
}

func (g *Gateway) handleAddContextListener(_ context.Context, conn *agent.Connection, req *dispatch.Request) (any, error) {
	var p protocol.AddContextListenerRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	return nil, g.router.AddContextListener(conn.ID, p.ListenerID, p.ContextType)
}

func (g *Gateway) handleRemoveContextListener(_ context.Context, conn *agent.Connection, req *dispatch.Request) (any, error) {
	var p protocol.RemoveListenerRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if !g.router.RemoveContextListener(conn.ID, p.ListenerID) {
		g.logger.Debug("unknown context listener", "conn_id", conn.ID, "listener_id", p.ListenerID)
	}
	return nil, nil
}

func (g *Gateway) handleAddIntentListener(_ context.Context, conn *agent.Connection, req *dispatch.Request) (any, error) {
	var p protocol.AddIntentListenerRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if err := g.registry.Add(conn.ID, conn, p.ListenerID, p.Intent); err != nil {
		if errors.Is(err, intents.ErrMissingListenerID) {
			return nil, fmt.Errorf("%w: %w", dispatch.ErrInvalidPayload, err)
		}
		return nil, err
	}
	return nil, nil
}

func (g *Gateway) handleRemoveIntentListener(_ context.Context, conn *agent.Connection, req *dispatch.Request) (any, error) {
	var p protocol.RemoveListenerRequest
	if err := req.Bind(&p); err != nil {
		return nil, err
	}
	if !g.registry.Remove(conn.ID, p.ListenerID) {
		g.logger.Debug("unknown intent listener", "conn_id", conn.ID, "listener_id", p.ListenerID)
	}
	return nil, nil
}
