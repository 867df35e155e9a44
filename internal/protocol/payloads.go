// ABOUTME: Typed payloads for each agent method and each agent-to-app topic.
// ABOUTME: Validation tags are checked by the dispatch loop before handlers run.

package protocol

import "github.com/2389/fdc3-gateway/internal/fdc3"

// OpenRequest asks the agent to forward an open to a named app.
type OpenRequest struct {
	Name    string       `json:"name" validate:"required"`
	Context fdc3.Context `json:"context,omitempty"`
}

// BroadcastRequest publishes a context on the sender's current channel.
type BroadcastRequest struct {
	Context fdc3.Context `json:"context" validate:"required"`
}

// RaiseIntentRequest routes an intent to a provider. Target optionally names
// the app that should receive it.
type RaiseIntentRequest struct {
	Intent  string       `json:"intent" validate:"required"`
	Context fdc3.Context `json:"context" validate:"required"`
	Target  string       `json:"target,omitempty"`
}

// FindIntentRequest lists the apps able to handle an intent.
type FindIntentRequest struct {
	Intent  string       `json:"intent" validate:"required"`
	Context fdc3.Context `json:"context,omitempty"`
}

// FindIntentsByContextRequest lists the intents able to handle a context.
type FindIntentsByContextRequest struct {
	Context fdc3.Context `json:"context" validate:"required"`
}

// JoinChannelRequest moves the caller into a channel.
type JoinChannelRequest struct {
	Channel string `json:"channel" validate:"required"`
}

// GetOrCreateChannelRequest returns an app channel, creating it if needed.
type GetOrCreateChannelRequest struct {
	Channel string `json:"channel" validate:"required"`
}

// GetCurrentContextRequest reads the last context broadcast on a channel.
// An empty Channel means the caller's current channel.
type GetCurrentContextRequest struct {
	Channel     string `json:"channel,omitempty"`
	ContextType string `json:"contextType,omitempty"`
}

// AddContextListenerRequest registers a context listener handle.
type AddContextListenerRequest struct {
	ListenerID  string `json:"listenerId" validate:"required"`
	ContextType string `json:"contextType,omitempty"`
}

// AddIntentListenerRequest registers an intent listener handle.
type AddIntentListenerRequest struct {
	ListenerID string `json:"listenerId" validate:"required"`
	Intent     string `json:"intent" validate:"required"`
}

// RemoveListenerRequest releases a listener handle.
type RemoveListenerRequest struct {
	ListenerID string `json:"listenerId" validate:"required"`
}

// EnvironmentData is sent once per connection before any other topic.
type EnvironmentData struct {
	CurrentChannel *fdc3.Channel  `json:"currentChannel"`
	TabID          string         `json:"tabId"`
	Directory      *fdc3.AppEntry `json:"directory"`
}

// ContextEvent delivers a broadcast context to the listeners named.
type ContextEvent struct {
	Channel     string       `json:"channel"`
	Context     fdc3.Context `json:"context"`
	ListenerIDs []string     `json:"listenerIds"`
}

// IntentEvent delivers a raised intent to the listeners named.
type IntentEvent struct {
	Intent      string            `json:"intent"`
	Context     fdc3.Context      `json:"context"`
	ListenerIDs []string          `json:"listenerIds"`
	Source      *fdc3.AppMetadata `json:"source,omitempty"`
}

// OpenEvent is forwarded to a running app that was the target of open.
type OpenEvent struct {
	Context fdc3.Context      `json:"context,omitempty"`
	Source  *fdc3.AppMetadata `json:"source,omitempty"`
}
