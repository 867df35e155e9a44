// ABOUTME: Tests for request/reply envelope construction and parsing.
// ABOUTME: Covers header stamping, void requests, malformed frames, and error kinds.

package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fdc3-gateway/internal/fdc3"
)

func TestNewRequest(t *testing.T) {
	t.Run("stamps correlation fields next to the payload", func(t *testing.T) {
		msg, err := NewRequest(Header{Method: MethodJoinChannel, EventID: "joinChannel_42", TS: 42}, JoinChannelRequest{Channel: "red"})
		require.NoError(t, err)

		assert.Equal(t, MethodJoinChannel, msg.Topic)
		assert.JSONEq(t, `{"method":"joinChannel","eventId":"joinChannel_42","ts":42,"channel":"red"}`, string(msg.Data))

		h, err := ParseHeader(msg.Data)
		require.NoError(t, err)
		assert.Equal(t, Header{Method: MethodJoinChannel, EventID: "joinChannel_42", TS: 42}, h)
	})

	t.Run("void request carries no eventId", func(t *testing.T) {
		msg, err := NewRequest(Header{Method: MethodBroadcast, TS: 7}, BroadcastRequest{Context: fdc3.Context(`{"type":"instrument"}`)})
		require.NoError(t, err)

		h, err := ParseHeader(msg.Data)
		require.NoError(t, err)
		assert.Empty(t, h.EventID)
		assert.Equal(t, int64(7), h.TS)
	})

	t.Run("nil payload becomes an empty object", func(t *testing.T) {
		msg, err := NewRequest(Header{Method: MethodGetSystemChannels, EventID: "getSystemChannels_1", TS: 1}, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"method":"getSystemChannels","eventId":"getSystemChannels_1","ts":1}`, string(msg.Data))
	})

	t.Run("non-object payload is rejected", func(t *testing.T) {
		_, err := NewRequest(Header{Method: MethodOpen}, []string{"x"})
		assert.ErrorIs(t, err, ErrNotObject)
	})
}

func TestParseHeaderMalformed(t *testing.T) {
	h, err := ParseHeader(json.RawMessage(`{"method":"joinChannel","eventId":"joinChannel_9","ts":"later"}`))
	require.Error(t, err)
	assert.Equal(t, "joinChannel_9", h.EventID)
	assert.Equal(t, "joinChannel", h.Method)
}

func TestReplyTopic(t *testing.T) {
	topic := ReplyTopic(EventID("raiseIntent", 1718000000123))
	assert.Equal(t, "return_raiseIntent_1718000000123", topic)

	id, ok := EventIDFromReplyTopic(topic)
	assert.True(t, ok)
	assert.Equal(t, "raiseIntent_1718000000123", id)

	_, ok = EventIDFromReplyTopic("context")
	assert.False(t, ok)
}

func TestReplies(t *testing.T) {
	t.Run("ok carries data", func(t *testing.T) {
		r, err := Ok(fdc3.Channel{ID: "red", Type: fdc3.ChannelTypeSystem})
		require.NoError(t, err)
		assert.True(t, r.Result)

		var ch fdc3.Channel
		require.NoError(t, r.Decode(&ch))
		assert.Equal(t, "red", ch.ID)
	})

	t.Run("fail uses FDC3 kind names", func(t *testing.T) {
		r := Fail(errors.Join(errors.New("join failed"), fdc3.NoChannelFound))
		assert.False(t, r.Result)
		assert.Equal(t, "NoChannelFound", r.Error)
	})

	t.Run("fail falls back to message", func(t *testing.T) {
		r := Fail(errors.New("boom"))
		assert.Equal(t, "boom", r.Error)
	})

	t.Run("reply frame topic", func(t *testing.T) {
		msg, err := NewReply("open_5", &Reply{Result: true})
		require.NoError(t, err)
		assert.Equal(t, "return_open_5", msg.Topic)
		assert.JSONEq(t, `{"result":true}`, string(msg.Data))
	})
}
