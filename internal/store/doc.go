// Package store persists the gateway's event ledger using SQLite.
//
// # Architecture
//
// Store is the interface the gateway records through. SQLiteStore is the
// production implementation built on modernc.org/sqlite (pure Go, no cgo);
// MockStore keeps events in memory for tests and for running without a
// database path.
//
// # Ledger
//
// Every routed operation worth auditing becomes a LedgerEvent: connects and
// disconnects, channel joins and leaves, broadcasts, raised intents and
// forwarded opens. Events carry the acting client, the app name resolved from
// the directory, and the channel, intent, context type or target involved.
// Context payloads are not stored.
//
// # Pagination
//
// GetEvents pages through the ledger oldest first. NextCursor is opaque
// (base64 of "timestamp|event_id") and is passed back as Cursor to continue.
//
// # Schema
//
// The schema is created on open and migrations are idempotent, so opening an
// existing database from an older build is safe.
package store
