// ABOUTME: Tests for ledger event operations, run against both Store implementations
// ABOUTME: Covers save/get, filtering, ordering and cursor pagination

package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forEachStore runs fn against SQLiteStore and MockStore so the mock stays
// faithful to the real implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, setupTestStore(t)) })
	t.Run("mock", func(t *testing.T) { fn(t, NewMockStore()) })
}

func TestEventStore_SaveAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := t.Context()
		ts := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

		event := &LedgerEvent{
			ID:          "evt-123",
			Kind:        EventKindIntent,
			ClientID:    "client-1",
			AppName:     "Blotter",
			ContextType: "fdc3.instrument",
			Intent:      "ViewChart",
			Target:      "client-2",
			Detail:      strPtr("resolved"),
			Timestamp:   ts,
		}
		require.NoError(t, s.SaveEvent(ctx, event))

		got, err := s.GetEvent(ctx, "evt-123")
		require.NoError(t, err)
		assert.Equal(t, EventKindIntent, got.Kind)
		assert.Equal(t, "Blotter", got.AppName)
		assert.Equal(t, "ViewChart", got.Intent)
		assert.Equal(t, "client-2", got.Target)
		require.NotNil(t, got.Detail)
		assert.Equal(t, "resolved", *got.Detail)
		assert.True(t, ts.Equal(got.Timestamp), "timestamp keeps nanoseconds")
	})
}

func TestEventStore_GetMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.GetEvent(t.Context(), "nope")
		assert.ErrorIs(t, err, ErrEventNotFound)
	})
}

func TestEventStore_RejectsUnknownKindAndDuplicates(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := t.Context()

		err := s.SaveEvent(ctx, &LedgerEvent{ID: "evt-bad", Kind: "teleport", ClientID: "c", Timestamp: time.Now()})
		require.Error(t, err)

		event := &LedgerEvent{ID: "evt-dup", Kind: EventKindOpen, ClientID: "c", Timestamp: time.Now()}
		require.NoError(t, s.SaveEvent(ctx, event))
		require.Error(t, s.SaveEvent(ctx, event))
	})
}

func seedEvents(t *testing.T, s Store, n int, base time.Time) {
	t.Helper()
	kinds := []EventKind{EventKindJoin, EventKindBroadcast}
	for i := range n {
		require.NoError(t, s.SaveEvent(t.Context(), &LedgerEvent{
			ID:        fmt.Sprintf("evt-%03d", i),
			Kind:      kinds[i%2],
			ClientID:  fmt.Sprintf("client-%d", i%3),
			Channel:   "red",
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}
}

func TestEventStore_GetEventsFilters(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	since := base.Add(5 * time.Millisecond)
	until := base.Add(9 * time.Millisecond)

	tests := []struct {
		name    string
		params  GetEventsParams
		wantIDs []string
	}{
		{
			name:    "by kind and client",
			params:  GetEventsParams{Kind: EventKindBroadcast, ClientID: "client-0"},
			wantIDs: []string{"evt-003", "evt-009"},
		},
		{
			name:    "time window",
			params:  GetEventsParams{Since: &since, Until: &until},
			wantIDs: []string{"evt-005", "evt-006", "evt-007", "evt-008", "evt-009"},
		},
		{
			name:    "no match",
			params:  GetEventsParams{Channel: "blue"},
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forEachStore(t, func(t *testing.T, s Store) {
				seedEvents(t, s, 12, base)

				res, err := s.GetEvents(t.Context(), tt.params)
				require.NoError(t, err)

				ids := make([]string, 0, len(res.Events))
				for _, e := range res.Events {
					ids = append(ids, e.ID)
				}
				assert.Equal(t, tt.wantIDs, ids)
				assert.False(t, res.HasMore)
				assert.Empty(t, res.NextCursor)
			})
		})
	}
}

func TestEventStore_GetEventsPagination(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		seedEvents(t, s, 7, base)

		// Two events share a timestamp; event_id breaks the tie.
		require.NoError(t, s.SaveEvent(t.Context(), &LedgerEvent{
			ID:        "evt-003b",
			Kind:      EventKindLeave,
			ClientID:  "client-9",
			Timestamp: base.Add(3 * time.Millisecond),
		}))

		var all []string
		cursor := ""
		pages := 0
		for {
			res, err := s.GetEvents(t.Context(), GetEventsParams{Limit: 3, Cursor: cursor})
			require.NoError(t, err)
			pages++
			for _, e := range res.Events {
				all = append(all, e.ID)
			}
			if !res.HasMore {
				break
			}
			require.NotEmpty(t, res.NextCursor)
			cursor = res.NextCursor
		}

		assert.Equal(t, 3, pages)
		assert.Equal(t, []string{
			"evt-000", "evt-001", "evt-002", "evt-003", "evt-003b", "evt-004", "evt-005", "evt-006",
		}, all)
	})
}

func TestEventStore_InvalidCursor(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.GetEvents(t.Context(), GetEventsParams{Cursor: "%%%not-base64"})
		assert.True(t, errors.Is(err, ErrInvalidCursor))
	})
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultEventLimit, clampLimit(0))
	assert.Equal(t, defaultEventLimit, clampLimit(-4))
	assert.Equal(t, 10, clampLimit(10))
	assert.Equal(t, maxEventLimit, clampLimit(10_000))
}

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 42, time.UTC)
	gotTS, gotID, err := decodeCursor(encodeCursor(ts, "evt|with|pipes"))
	require.NoError(t, err)
	assert.True(t, ts.Equal(gotTS))
	assert.Equal(t, "evt|with|pipes", gotID)
}
