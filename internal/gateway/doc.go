// Package gateway is the FDC3 desktop agent.
//
// # Overview
//
// The Gateway owns every broker component and the servers apps reach it
// through:
//
//	type Gateway struct {
//	    manager    *agent.Manager       // live app connections
//	    router     *channels.Router     // channel membership and contexts
//	    registry   *intents.Registry    // intent listeners and resolution
//	    dispatcher *dispatch.Dispatcher // per-connection request loop
//	    ledger     *ledger.Recorder     // event history and live feed
//	    // ... directory, store, metrics, servers
//	}
//
// Apps connect over WebSocket at /fdc3, over the gRPC Connect stream, or
// in-process through Connect. Every transport ends in ServeConn, which
// resolves the app against the App Directory, sends the environment frame,
// and dispatches requests until the connection closes. Disconnecting drops
// the app's channel membership and intent listeners.
//
// # HTTP API
//
//	GET  /api/channels                channels with members and context types
//	GET  /api/clients                 connected apps
//	GET  /api/events                  ledger query (kind, client, channel, since, until, limit, cursor)
//	GET  /api/events/stream           ledger events as Server-Sent Events (channel)
//	GET  /api/events/{id}             one ledger event
//	GET  /api/tabs/{tabId}            the tab's app, its channel and any queued channel
//	POST /api/tabs/{tabId}/channel    assign a tab to a channel, queued until it connects
//	GET  /health, /health/ready       liveness and readiness
//
// Prometheus metrics are served on the configured metrics path.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled
//
// Shutdown stops the servers, closes every app connection and waits for
// their teardown before closing the store.
package gateway
