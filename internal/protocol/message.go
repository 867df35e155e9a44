// ABOUTME: Wire envelopes for requests, replies, and agent-to-app deliveries.
// ABOUTME: Correlation fields are stamped into request payloads with sjson.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/2389/fdc3-gateway/internal/fdc3"
)

// Methods handled by the agent.
const (
	MethodOpen                  = "open"
	MethodBroadcast             = "broadcast"
	MethodRaiseIntent           = "raiseIntent"
	MethodFindIntent            = "findIntent"
	MethodFindIntentsByContext  = "findIntentsByContext"
	MethodGetSystemChannels     = "getSystemChannels"
	MethodJoinChannel           = "joinChannel"
	MethodLeaveCurrentChannel   = "leaveCurrentChannel"
	MethodGetCurrentChannel     = "getCurrentChannel"
	MethodGetCurrentContext     = "getCurrentContext"
	MethodGetOrCreateChannel    = "getOrCreateChannel"
	MethodAddContextListener    = "addContextListener"
	MethodRemoveContextListener = "removeContextListener"
	MethodAddIntentListener     = "addIntentListener"
	MethodRemoveIntentListener  = "removeIntentListener"
)

// Topics pushed by the agent to apps.
const (
	TopicEnvironment = "environmentData"
	TopicContext     = "context"
	TopicIntent      = "intent"
	TopicOpen        = "open"
)

const replyPrefix = "return_"

// ErrNotObject is returned when a request payload is not a JSON object.
var ErrNotObject = errors.New("payload must be a JSON object")

// Message is the frame carried by every transport.
type Message struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Header holds the correlation fields of a request.
type Header struct {
	Method  string `json:"method"`
	EventID string `json:"eventId,omitempty"`
	TS      int64  `json:"ts"`
}

// ReplyTopic derives the reply topic for a correlation id.
func ReplyTopic(eventID string) string {
	return replyPrefix + eventID
}

// EventIDFromReplyTopic returns the correlation id carried by a reply topic.
func EventIDFromReplyTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, replyPrefix) {
		return "", false
	}
	return strings.TrimPrefix(topic, replyPrefix), true
}

// EventID builds the correlation id for a call issued at ts.
func EventID(method string, ts int64) string {
	return fmt.Sprintf("%s_%d", method, ts)
}

// NewRequest builds a request frame, stamping the header into payload.
// An empty EventID produces a void request.
func NewRequest(h Header, payload any) (*Message, error) {
	data := []byte("{}")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", h.Method, err)
		}
		if string(b) != "null" {
			data = b
		}
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, ErrNotObject
	}

	var err error
	if data, err = sjson.SetBytes(data, "method", h.Method); err != nil {
		return nil, fmt.Errorf("stamping method: %w", err)
	}
	if h.EventID != "" {
		if data, err = sjson.SetBytes(data, "eventId", h.EventID); err != nil {
			return nil, fmt.Errorf("stamping eventId: %w", err)
		}
	}
	if data, err = sjson.SetBytes(data, "ts", h.TS); err != nil {
		return nil, fmt.Errorf("stamping ts: %w", err)
	}

	return &Message{Topic: h.Method, Data: data}, nil
}

// ParseHeader decodes the correlation fields of a request frame.
// When data is not valid JSON the eventId is still recovered if present so
// the caller can be told its request was rejected.
func ParseHeader(data json.RawMessage) (Header, error) {
	var h Header
	if len(data) == 0 {
		return h, nil
	}
	if err := json.Unmarshal(data, &h); err != nil {
		h.EventID = gjson.GetBytes(data, "eventId").String()
		h.Method = gjson.GetBytes(data, "method").String()
		return h, fmt.Errorf("decoding request: %w", err)
	}
	return h, nil
}

// Reply is the payload of a reply frame.
type Reply struct {
	Result bool            `json:"result"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Decode unmarshals the reply data into v.
func (r *Reply) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// NewReply builds a reply frame for eventID.
func NewReply(eventID string, r *Reply) (*Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding reply: %w", err)
	}
	return &Message{Topic: ReplyTopic(eventID), Data: data}, nil
}

// NewEvent builds an agent-to-app frame on topic.
func NewEvent(topic string, v any) (*Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", topic, err)
	}
	return &Message{Topic: topic, Data: data}, nil
}

// Ok wraps a successful result.
func Ok(v any) (*Reply, error) {
	if v == nil {
		return &Reply{Result: true}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return &Reply{Result: true, Data: data}, nil
}

// Fail wraps a failure. FDC3 error kinds are sent by name.
func Fail(err error) *Reply {
	if kind, ok := fdc3.Kind(err); ok {
		return &Reply{Result: false, Error: kind}
	}
	return &Reply{Result: false, Error: err.Error()}
}
