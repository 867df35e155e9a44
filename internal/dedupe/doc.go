// ABOUTME: Package dedupe guards the at-most-one-reply rule for correlated requests.
// ABOUTME: Keys are (connection, eventId) pairs held for a bounded time.

// Package dedupe records which correlated requests have already been
// answered. The dispatch loop claims a (connection id, event id) pair before
// it writes a reply; a second claim for the same pair within the TTL fails,
// so a replayed or duplicated request never produces a second reply.
package dedupe
