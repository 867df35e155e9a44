// Package client is the app-side library for talking to the desktop agent.
//
// # Overview
//
// A Client wraps a transport.Port and turns method calls into correlated
// request frames. Every awaited call gets a correlation id of the form
// "<method>_<ts>", unique among the client's outstanding calls, and resolves
// when the frame on "return_<id>" arrives:
//
//	c := client.New(port, client.Options{CallTimeout: 30 * time.Second}, logger)
//	env, err := c.Environment(ctx)
//	err = c.JoinChannel(ctx, "red")
//	err = c.Broadcast(ctx, fdc3.Context(`{"type":"fdc3.instrument","id":{"ticker":"MSFT"}}`))
//
// Void calls (Broadcast) are sent without an id and never answered.
//
// # Listeners
//
// AddContextListener and AddIntentListener register a local handler and a
// handle with the agent. Handlers run on a dedicated goroutine in delivery
// order, so they may call back into the Client. Listener.Unsubscribe
// releases both.
//
// # Timeouts
//
// An awaited call with no reply within the call timeout fails with
// ResolveError.ResolverTimeout, or OpenError.AppTimeout for open. A zero
// timeout waits until the reply, the caller's context or the connection
// ends.
package client
