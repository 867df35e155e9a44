// Package directory looks up applications in an App Directory.
//
// # Overview
//
// The agent consults the directory to identify each connecting app by its
// origin and to discover which apps declare support for an intent. Lookups
// are best effort: callers degrade gracefully when the directory is slow,
// unreachable or returns malformed data.
//
// # Implementations
//
//   - Client talks to an App Directory over HTTP. Concurrent identical
//     lookups are coalesced into one request.
//   - Static serves a fixed set of entries from memory. It backs
//     deployments without a directory service and tests.
//
// # HTTP surface
//
//	GET {url}/apps/search?origin={origin}          -> []AppEntry
//	GET {url}/apps/{name}/actions                  -> []Action
//	GET {url}/apps/{name}                          -> AppEntry
//	GET {url}/apps/search?intent={i}&context={t}   -> []AppEntry
package directory
