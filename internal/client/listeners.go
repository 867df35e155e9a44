// ABOUTME: Local listener registry and the event loop that fans pushed events out to handlers.
// ABOUTME: Events name their target listeners; unknown listener ids are skipped.

package client

import (
	"encoding/json"
	"sync"

	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/protocol"
)

// ContextHandler receives contexts broadcast on the app's current channel.
type ContextHandler func(ctx fdc3.Context)

// IntentHandler receives raised intents. source is nil when the raiser is
// unknown.
type IntentHandler func(ctx fdc3.Context, source *fdc3.AppMetadata)

// OpenHandler receives open requests forwarded to a running app.
type OpenHandler func(ev protocol.OpenEvent)

type handlerSet struct {
	mu      sync.RWMutex
	context map[string]ContextHandler
	intent  map[string]IntentHandler
	open    []OpenHandler
}

func newHandlerSet() *handlerSet {
	return &handlerSet{
		context: make(map[string]ContextHandler),
		intent:  make(map[string]IntentHandler),
	}
}

func (h *handlerSet) contextHandlers(ids []string) []ContextHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ContextHandler, 0, len(ids))
	for _, id := range ids {
		if fn, ok := h.context[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (h *handlerSet) intentHandlers(ids []string) []IntentHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]IntentHandler, 0, len(ids))
	for _, id := range ids {
		if fn, ok := h.intent[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (h *handlerSet) openHandlers() []OpenHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]OpenHandler(nil), h.open...)
}

// eventLoop runs handlers in delivery order, off the read goroutine.
func (c *Client) eventLoop() {
	defer close(c.eventDone)

	for msg := range c.events {
		switch msg.Topic {
		case protocol.TopicContext:
			var ev protocol.ContextEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				c.logger.Warn("malformed context event", "error", err)
				continue
			}
			for _, fn := range c.handlers.contextHandlers(ev.ListenerIDs) {
				c.safely(msg.Topic, func() { fn(ev.Context) })
			}
		case protocol.TopicIntent:
			var ev protocol.IntentEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				c.logger.Warn("malformed intent event", "error", err)
				continue
			}
			for _, fn := range c.handlers.intentHandlers(ev.ListenerIDs) {
				c.safely(msg.Topic, func() { fn(ev.Context, ev.Source) })
			}
		case protocol.TopicOpen:
			var ev protocol.OpenEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				c.logger.Warn("malformed open event", "error", err)
				continue
			}
			for _, fn := range c.handlers.openHandlers() {
				c.safely(msg.Topic, func() { fn(ev) })
			}
		}
	}
}

// safely runs an app handler, logging a panic instead of killing the loop.
func (c *Client) safely(topic string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener panicked", "topic", topic, "panic", r)
		}
	}()
	fn()
}
