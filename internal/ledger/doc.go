// Package ledger records routed FDC3 operations.
//
// A Recorder persists each event to a store.Store and publishes it to live
// subscribers through a Feed. Recording never fails the operation that
// produced the event: store errors are logged and the event is still
// published.
//
// Feed subscribers pick a channel id to follow, or "" for every event.
// Delivery is non-blocking; a subscriber that falls behind loses events
// rather than slowing the broker.
package ledger
