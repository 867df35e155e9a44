// Package agent manages the apps connected to the desktop agent.
//
// # Overview
//
// The agent package handles the lifecycle of connected apps: identifying
// them against the App Directory, registering them in the live table,
// sending their environment descriptor, and releasing everything they held
// when they disconnect.
//
// # Manager
//
// The Manager tracks all connected apps:
//
//	mgr := agent.NewManager(agent.Options{Directory: dir, BindTab: router.BindTab}, logger)
//
// Key operations:
//
//   - Connect(ctx, port, hello): Resolve, greet and register an app
//   - Disconnect(conn): Remove an app and run disconnect hooks
//   - Get(id) / ByTab(tabID) / ByName(name): Look up live apps
//   - List(): Describe all live apps
//
// # Directory Resolution
//
// On connect the app's origin is searched in the directory:
//
//   - zero matches: a dynamic app with no directory data
//   - one match: resolved; actions are fetched when the entry declares them
//     and a failed fetch registers the app without actions
//   - several matches: ambiguous, logged and counted, then handled like zero
//
// Lookup failures never fail the connection.
//
// # Connection
//
// Connection owns the app's transport port. Frames to the app pass through
// a bounded queue drained by one writer goroutine:
//
//   - Deliver(msg): non-blocking, drops when the queue is full
//   - Reply(ctx, msg): waits for queue space
//
// The environment descriptor is the first frame queued on every
// connection, and it is queued before the connection is added to the live
// table, so no other topic can reach the app ahead of it.
//
// # Thread Safety
//
// Both Manager and Connection are thread-safe.
package agent
