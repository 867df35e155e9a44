// ABOUTME: The FDC3 app API on top of the correlation layer.
// ABOUTME: Each method maps to one agent method and decodes its typed result.

package client

import (
	"context"

	"github.com/google/uuid"

	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/protocol"
)

type listenerKind int

const (
	contextListener listenerKind = iota
	intentListener
)

// Listener is a registered context or intent listener.
type Listener struct {
	ID     string
	kind   listenerKind
	client *Client
}

// Unsubscribe stops local delivery and releases the handle with the agent.
func (l *Listener) Unsubscribe(ctx context.Context) error {
	h := l.client.handlers
	h.mu.Lock()
	method := protocol.MethodRemoveContextListener
	if l.kind == intentListener {
		method = protocol.MethodRemoveIntentListener
		delete(h.intent, l.ID)
	} else {
		delete(h.context, l.ID)
	}
	h.mu.Unlock()

	_, err := l.client.Call(ctx, method, protocol.RemoveListenerRequest{ListenerID: l.ID})
	return err
}

// Open asks the agent to deliver an open to the running app called name,
// or to the instance with that id, and returns the app that received it.
func (c *Client) Open(ctx context.Context, name string, data fdc3.Context) (fdc3.AppMetadata, error) {
	var md fdc3.AppMetadata
	err := c.callDecode(ctx, protocol.MethodOpen, protocol.OpenRequest{Name: name, Context: data}, &md)
	return md, err
}

// Broadcast publishes context on the current channel. It is not answered.
func (c *Client) Broadcast(ctx context.Context, data fdc3.Context) error {
	return c.Notify(ctx, protocol.MethodBroadcast, protocol.BroadcastRequest{Context: data})
}

// RaiseIntent routes intent to a provider. target optionally names the app
// or instance that should receive it.
func (c *Client) RaiseIntent(ctx context.Context, intent string, data fdc3.Context, target string) (fdc3.IntentResolution, error) {
	var res fdc3.IntentResolution
	err := c.callDecode(ctx, protocol.MethodRaiseIntent, protocol.RaiseIntentRequest{
		Intent:  intent,
		Context: data,
		Target:  target,
	}, &res)
	return res, err
}

// FindIntent lists the apps able to handle intent, optionally narrowed by
// a context.
func (c *Client) FindIntent(ctx context.Context, intent string, data fdc3.Context) (fdc3.AppIntent, error) {
	var res fdc3.AppIntent
	err := c.callDecode(ctx, protocol.MethodFindIntent, protocol.FindIntentRequest{Intent: intent, Context: data}, &res)
	return res, err
}

// FindIntentsByContext lists the intents able to handle context.
func (c *Client) FindIntentsByContext(ctx context.Context, data fdc3.Context) ([]fdc3.AppIntent, error) {
	var res []fdc3.AppIntent
	err := c.callDecode(ctx, protocol.MethodFindIntentsByContext, protocol.FindIntentsByContextRequest{Context: data}, &res)
	return res, err
}

// GetSystemChannels lists the agent's system channels.
func (c *Client) GetSystemChannels(ctx context.Context) ([]fdc3.Channel, error) {
	var res []fdc3.Channel
	err := c.callDecode(ctx, protocol.MethodGetSystemChannels, nil, &res)
	return res, err
}

// JoinChannel moves the app into channel id.
func (c *Client) JoinChannel(ctx context.Context, id string) error {
	_, err := c.Call(ctx, protocol.MethodJoinChannel, protocol.JoinChannelRequest{Channel: id})
	return err
}

// LeaveCurrentChannel removes the app from its channel.
func (c *Client) LeaveCurrentChannel(ctx context.Context) error {
	_, err := c.Call(ctx, protocol.MethodLeaveCurrentChannel, nil)
	return err
}

// GetCurrentChannel returns the app's channel, or nil when it is in none.
func (c *Client) GetCurrentChannel(ctx context.Context) (*fdc3.Channel, error) {
	var res *fdc3.Channel
	err := c.callDecode(ctx, protocol.MethodGetCurrentChannel, nil, &res)
	return res, err
}

// GetCurrentContext reads the last context on channel, filtered by
// contextType when set. An empty channel means the current one. A nil
// Context means nothing has been broadcast.
func (c *Client) GetCurrentContext(ctx context.Context, channel, contextType string) (fdc3.Context, error) {
	var res fdc3.Context
	err := c.callDecode(ctx, protocol.MethodGetCurrentContext, protocol.GetCurrentContextRequest{
		Channel:     channel,
		ContextType: contextType,
	}, &res)
	if err != nil || string(res) == "null" {
		return nil, err
	}
	return res, nil
}

// GetOrCreateChannel returns app channel id, creating it if needed.
func (c *Client) GetOrCreateChannel(ctx context.Context, id string) (fdc3.Channel, error) {
	var res fdc3.Channel
	err := c.callDecode(ctx, protocol.MethodGetOrCreateChannel, protocol.GetOrCreateChannelRequest{Channel: id}, &res)
	return res, err
}

// AddContextListener registers handler for contexts of contextType, or all
// contexts when contextType is empty.
func (c *Client) AddContextListener(ctx context.Context, contextType string, handler ContextHandler) (*Listener, error) {
	l := &Listener{ID: uuid.NewString(), kind: contextListener, client: c}

	c.handlers.mu.Lock()
	c.handlers.context[l.ID] = handler
	c.handlers.mu.Unlock()

	_, err := c.Call(ctx, protocol.MethodAddContextListener, protocol.AddContextListenerRequest{
		ListenerID:  l.ID,
		ContextType: contextType,
	})
	if err != nil {
		c.handlers.mu.Lock()
		delete(c.handlers.context, l.ID)
		c.handlers.mu.Unlock()
		return nil, err
	}
	return l, nil
}

// AddIntentListener registers handler for intent.
func (c *Client) AddIntentListener(ctx context.Context, intent string, handler IntentHandler) (*Listener, error) {
	l := &Listener{ID: uuid.NewString(), kind: intentListener, client: c}

	c.handlers.mu.Lock()
	c.handlers.intent[l.ID] = handler
	c.handlers.mu.Unlock()

	_, err := c.Call(ctx, protocol.MethodAddIntentListener, protocol.AddIntentListenerRequest{
		ListenerID: l.ID,
		Intent:     intent,
	})
	if err != nil {
		c.handlers.mu.Lock()
		delete(c.handlers.intent, l.ID)
		c.handlers.mu.Unlock()
		return nil, err
	}
	return l, nil
}

// OnOpen registers a handler for opens forwarded to this app.
func (c *Client) OnOpen(handler OpenHandler) {
	c.handlers.mu.Lock()
	c.handlers.open = append(c.handlers.open, handler)
	c.handlers.mu.Unlock()
}

func (c *Client) callDecode(ctx context.Context, method string, payload any, out any) error {
	reply, err := c.Call(ctx, method, payload)
	if err != nil {
		return err
	}
	return reply.Decode(out)
}
