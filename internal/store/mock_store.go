// ABOUTME: Mock Store implementation for testing
// ABOUTME: Keeps ledger events in memory so tests run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	events map[string]*LedgerEvent // keyed by event ID
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		events: make(map[string]*LedgerEvent),
	}
}

// SaveEvent stores a ledger event.
func (m *MockStore) SaveEvent(ctx context.Context, event *LedgerEvent) error {
	if !event.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.events[event.ID]; exists {
		return fmt.Errorf("inserting event: duplicate id %s", event.ID)
	}

	// Make a copy to avoid external modification
	e := *event
	e.Timestamp = e.Timestamp.UTC()
	m.events[e.ID] = &e
	return nil
}

// GetEvent retrieves an event by ID.
func (m *MockStore) GetEvent(ctx context.Context, id string) (*LedgerEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	result := *e
	return &result, nil
}

// GetEvents lists events with the same filtering and ordering as SQLiteStore.
func (m *MockStore) GetEvents(ctx context.Context, p GetEventsParams) (*GetEventsResult, error) {
	p.Limit = clampLimit(p.Limit)

	var cursor *LedgerEvent
	if p.Cursor != "" {
		ts, id, err := decodeCursor(p.Cursor)
		if err != nil {
			return nil, err
		}
		cursor = &LedgerEvent{ID: id, Timestamp: ts}
	}

	m.mu.RLock()
	var events []LedgerEvent
	for _, e := range m.events {
		if p.Kind != "" && e.Kind != p.Kind {
			continue
		}
		if p.ClientID != "" && e.ClientID != p.ClientID {
			continue
		}
		if p.Channel != "" && e.Channel != p.Channel {
			continue
		}
		if p.Since != nil && e.Timestamp.Before(*p.Since) {
			continue
		}
		if p.Until != nil && e.Timestamp.After(*p.Until) {
			continue
		}
		if cursor != nil && !after(e, cursor) {
			continue
		}
		events = append(events, *e)
	}
	m.mu.RUnlock()

	sort.Slice(events, func(i, j int) bool {
		return after(&events[j], &events[i])
	})

	if len(events) > p.Limit+1 {
		events = events[:p.Limit+1]
	}
	if events == nil {
		events = []LedgerEvent{}
	}
	return paginate(events, p.Limit), nil
}

// after reports whether a sorts after b in ledger order.
func after(a, b *LedgerEvent) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
