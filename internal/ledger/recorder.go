// ABOUTME: Records routed operations to the ledger store and the live feed
// ABOUTME: Fills ids and timestamps; store failures are logged, never returned to routing

package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/fdc3-gateway/internal/store"
)

// Recorder writes ledger events.
type Recorder struct {
	store  store.Store
	feed   *Feed
	now    func() time.Time
	logger *slog.Logger
}

// NewRecorder creates a Recorder over s.
func NewRecorder(s store.Store, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  s,
		feed:   NewFeed(logger),
		now:    time.Now,
		logger: logger.With("component", "ledger"),
	}
}

// Record persists event and publishes it. ID and Timestamp are filled in
// when empty.
func (r *Recorder) Record(ctx context.Context, event *store.LedgerEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now()
	}

	// The request that produced the event may already be finished.
	if err := r.store.SaveEvent(context.WithoutCancel(ctx), event); err != nil {
		r.logger.Warn("failed to record event",
			"kind", event.Kind,
			"client_id", event.ClientID,
			"error", err,
		)
	}
	r.feed.Publish(event)
}

// Events queries recorded events.
func (r *Recorder) Events(ctx context.Context, p store.GetEventsParams) (*store.GetEventsResult, error) {
	return r.store.GetEvents(ctx, p)
}

// Event returns one recorded event.
func (r *Recorder) Event(ctx context.Context, id string) (*store.LedgerEvent, error) {
	return r.store.GetEvent(ctx, id)
}

// Subscribe follows new events on channel, or all events for AllChannels.
func (r *Recorder) Subscribe(ctx context.Context, channel string) <-chan *store.LedgerEvent {
	ch, _ := r.feed.Subscribe(ctx, channel)
	return ch
}

// Close ends every subscription. The store is owned by the caller.
func (r *Recorder) Close() {
	r.feed.Close()
}
