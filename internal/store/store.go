// ABOUTME: Store interface and ledger types for fdc3-gateway persistence
// ABOUTME: Defines LedgerEvent, its kinds, and the query parameters

package store

import (
	"context"
	"errors"
	"time"
)

// ErrEventNotFound is returned when a requested event does not exist
var ErrEventNotFound = errors.New("event not found")

// ErrInvalidCursor is returned when a pagination cursor cannot be decoded
var ErrInvalidCursor = errors.New("invalid cursor")

// EventKind categorizes a ledger event
type EventKind string

const (
	EventKindConnect    EventKind = "connect"
	EventKindDisconnect EventKind = "disconnect"
	EventKindJoin       EventKind = "join"
	EventKindLeave      EventKind = "leave"
	EventKindBroadcast  EventKind = "broadcast"
	EventKindIntent     EventKind = "intent"
	EventKindOpen       EventKind = "open"
)

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventKindConnect, EventKindDisconnect, EventKindJoin, EventKindLeave,
		EventKindBroadcast, EventKindIntent, EventKindOpen:
		return true
	}
	return false
}

// LedgerEvent is one audited operation.
type LedgerEvent struct {
	ID          string    `json:"id"`
	Kind        EventKind `json:"kind"`
	ClientID    string    `json:"clientId"`
	AppName     string    `json:"appName,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	ContextType string    `json:"contextType,omitempty"`
	Intent      string    `json:"intent,omitempty"`
	Target      string    `json:"target,omitempty"` // instance or app the operation was routed to
	Detail      *string   `json:"detail,omitempty"` // optional outcome, e.g. an FDC3 error name
	Timestamp   time.Time `json:"timestamp"`
}

// GetEventsParams filters and pages ledger queries. Zero fields match all.
type GetEventsParams struct {
	Kind     EventKind
	ClientID string
	Channel  string
	Since    *time.Time // only events at or after this time
	Until    *time.Time // only events at or before this time
	Limit    int        // 1-500, defaults to 50
	Cursor   string     // opaque cursor from a previous result
}

// GetEventsResult is one page of ledger events.
type GetEventsResult struct {
	Events     []LedgerEvent `json:"events"`
	NextCursor string        `json:"nextCursor,omitempty"`
	HasMore    bool          `json:"hasMore"`
}

// Store records and queries the ledger.
type Store interface {
	SaveEvent(ctx context.Context, event *LedgerEvent) error
	GetEvent(ctx context.Context, id string) (*LedgerEvent, error)
	GetEvents(ctx context.Context, p GetEventsParams) (*GetEventsResult, error)
	Close() error
}

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultEventLimit
	}
	return min(limit, maxEventLimit)
}
