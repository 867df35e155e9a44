// ABOUTME: Ledger event persistence for routed FDC3 operations
// ABOUTME: Provides save, lookup and cursor-paginated listing of ledger_events

package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// timestampLayout is fixed-width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

const eventColumns = `event_id, kind, client_id, app_name, channel, context_type, intent, target, detail, timestamp`

// SaveEvent persists a ledger event to the database
func (s *SQLiteStore) SaveEvent(ctx context.Context, event *LedgerEvent) error {
	if !event.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}

	query := `INSERT INTO ledger_events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Kind),
		event.ClientID,
		event.AppName,
		event.Channel,
		event.ContextType,
		event.Intent,
		event.Target,
		event.Detail,
		formatTimestamp(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	s.logger.Debug("saved ledger event",
		"event_id", event.ID,
		"kind", event.Kind,
		"client_id", event.ClientID,
	)
	return nil
}

// GetEvent retrieves a single event by ID
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*LedgerEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM ledger_events WHERE event_id = ?`

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return event, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*LedgerEvent, error) {
	event := &LedgerEvent{}
	var kind, timestampStr string

	if err := row.Scan(
		&event.ID,
		&kind,
		&event.ClientID,
		&event.AppName,
		&event.Channel,
		&event.ContextType,
		&event.Intent,
		&event.Target,
		&event.Detail,
		&timestampStr,
	); err != nil {
		return nil, err
	}

	event.Kind = EventKind(kind)
	ts, err := time.Parse(timestampLayout, timestampStr)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	event.Timestamp = ts
	return event, nil
}

// encodeCursor creates an opaque cursor string from a timestamp and event ID.
// Format is base64(timestamp|event_id)
func encodeCursor(ts time.Time, id string) string {
	data := fmt.Sprintf("%s|%s", formatTimestamp(ts), id)
	return base64.StdEncoding.EncodeToString([]byte(data))
}

// decodeCursor parses an opaque cursor string into a timestamp and event ID.
func decodeCursor(cursor string) (time.Time, string, error) {
	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: bad encoding: %v", ErrInvalidCursor, err)
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("%w: expected timestamp|event_id", ErrInvalidCursor)
	}

	ts, err := time.Parse(timestampLayout, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: bad timestamp: %v", ErrInvalidCursor, err)
	}

	return ts, parts[1], nil
}

// GetEvents retrieves ledger events with filtering and pagination.
// Events are returned in chronological order (oldest first).
func (s *SQLiteStore) GetEvents(ctx context.Context, p GetEventsParams) (*GetEventsResult, error) {
	p.Limit = clampLimit(p.Limit)

	var cursorTS time.Time
	var cursorID string
	if p.Cursor != "" {
		var err error
		cursorTS, cursorID, err = decodeCursor(p.Cursor)
		if err != nil {
			return nil, err
		}
	}

	// Build the query dynamically based on which parameters are set
	var args []any
	query := `SELECT ` + eventColumns + ` FROM ledger_events WHERE 1 = 1`

	if p.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(p.Kind))
	}
	if p.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, p.ClientID)
	}
	if p.Channel != "" {
		query += ` AND channel = ?`
		args = append(args, p.Channel)
	}
	if p.Since != nil {
		query += ` AND timestamp >= ?`
		args = append(args, formatTimestamp(*p.Since))
	}
	if p.Until != nil {
		query += ` AND timestamp <= ?`
		args = append(args, formatTimestamp(*p.Until))
	}
	if p.Cursor != "" {
		query += ` AND (timestamp > ? OR (timestamp = ? AND event_id > ?))`
		ts := formatTimestamp(cursorTS)
		args = append(args, ts, ts, cursorID)
	}

	// Order by timestamp, then event_id for deterministic pagination.
	// Fetch limit+1 to detect if there are more results.
	query += ` ORDER BY timestamp ASC, event_id ASC LIMIT ?`
	args = append(args, p.Limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []LedgerEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}

	return paginate(events, p.Limit), nil
}

// paginate trims events to limit and sets the continuation cursor.
func paginate(events []LedgerEvent, limit int) *GetEventsResult {
	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}

	result := &GetEventsResult{
		Events:  events,
		HasMore: hasMore,
	}
	if hasMore && len(events) > 0 {
		last := events[len(events)-1]
		result.NextCursor = encodeCursor(last.Timestamp, last.ID)
	}
	return result
}
