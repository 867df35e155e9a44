// Package fdc3 defines the data types shared by the desktop agent and the
// apps connected to it.
//
// # Context
//
// A Context is a typed JSON object. The only field the agent interprets is
// "type", which selects the last-known context slot on a channel and filters
// context listeners:
//
//	{"type": "fdc3.instrument", "id": {"ticker": "MSFT"}}
//
// # Errors
//
// The FDC3 error taxonomy is exposed as three string kinds that implement
// error, so handlers can return them directly and callers can match them
// with errors.Is:
//
//   - OpenError: AppNotFound, ErrorOnLaunch, AppTimeout, ResolverUnavailable
//   - ResolveError: NoAppsFound, ResolverUnavailable, ResolverTimeout
//   - ChannelError: NoChannelFound, AccessDenied, CreationFailed
//
// ParseError maps the string carried on the wire back to the typed kind.
//
// # Directory Entries
//
// AppEntry mirrors an App Directory record. Entries are immutable once
// fetched and are cached only on the connection that resolved them.
package fdc3
