// ABOUTME: In-memory fan-out of recorded ledger events to live subscribers
// ABOUTME: Subscribers follow one channel id or every event; slow subscribers drop events

package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/fdc3-gateway/internal/store"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// AllChannels subscribes to every event.
	AllChannels = ""
)

// Feed provides in-memory pub/sub for recorded events, keyed by channel id.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *store.LedgerEvent // channel -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewFeed creates a feed. Pass nil logger for default.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		subscribers: make(map[string]map[string]chan *store.LedgerEvent),
		logger:      logger.With("component", "feed"),
	}
}

// Subscribe registers a subscriber for events on channel, or every event
// when channel is AllChannels. The subscription ends, and the returned
// channel is closed, when ctx is cancelled or the feed closes.
func (f *Feed) Subscribe(ctx context.Context, channel string) (<-chan *store.LedgerEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *store.LedgerEvent, subscriberBufferSize)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := f.subscribers[channel]; !ok {
		f.subscribers[channel] = make(map[string]chan *store.LedgerEvent)
	}
	f.subscribers[channel][subID] = ch
	f.mu.Unlock()

	f.logger.Debug("subscriber added", "channel", channel, "sub_id", subID)

	go func() {
		<-ctx.Done()
		f.Unsubscribe(channel, subID)
	}()

	return ch, subID
}

// Publish sends event to subscribers of its channel and to those following
// every event. Non-blocking: events are dropped for subscribers whose
// buffers are full.
func (f *Feed) Publish(event *store.LedgerEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := []string{AllChannels}
	if event.Channel != "" {
		keys = append(keys, event.Channel)
	}

	for _, key := range keys {
		for _, ch := range f.subscribers[key] {
			select {
			case ch <- event:
			default:
				f.logger.Debug("dropped event for slow subscriber", "channel", key, "event_id", event.ID)
			}
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (f *Feed) Unsubscribe(channel, subID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.subscribers[channel]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(f.subscribers, channel)
	}

	f.logger.Debug("subscriber removed", "channel", channel, "sub_id", subID)
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, subs := range f.subscribers {
		n += len(subs)
	}
	return n
}

// Close shuts down the feed and closes all subscriber channels.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for key, subs := range f.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(f.subscribers, key)
	}
	f.closed = true
}
