// Package transport carries protocol.Message frames between apps and the
// desktop agent.
//
// Three transports share the Port interface:
//
//   - Pipe: an in-process pair for apps living in the host process
//   - WebSocket: browser apps, GET /fdc3?origin=...&tabId=...
//   - gRPC: native apps, bidirectional stream fdc3.DesktopAgent/Connect
//     of proto/fdc3 Frames whose data is the same JSON payload
//
// The agent side of every transport hands an accepted Port and its Hello to
// a ServeFunc and keeps the underlying connection open until it returns.
package transport
