// ABOUTME: Tests for the channel Router: membership, broadcast fan-out and current context.
// ABOUTME: Covers sender exclusion, listener filtering, pending tab assignment and detach cascade.

package channels

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/protocol"
)

// recorder captures delivered frames.
type recorder struct {
	mu   sync.Mutex
	msgs []*protocol.Message
	full bool
}

func (r *recorder) Deliver(msg *protocol.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return false
	}
	r.msgs = append(r.msgs, msg)
	return true
}

func (r *recorder) events(t *testing.T) []protocol.ContextEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.ContextEvent, 0, len(r.msgs))
	for _, m := range r.msgs {
		require.Equal(t, protocol.TopicContext, m.Topic)
		var ev protocol.ContextEvent
		require.NoError(t, json.Unmarshal(m.Data, &ev))
		out = append(out, ev)
	}
	return out
}

func newTestRouter() *Router {
	return NewRouter(fdc3.DefaultSystemChannels(), slog.New(slog.DiscardHandler))
}

func instrument(ticker string) fdc3.Context {
	return fdc3.Context(fmt.Sprintf(`{"type":"fdc3.instrument","id":{"ticker":%q}}`, ticker))
}

func TestSystemChannels(t *testing.T) {
	r := newTestRouter()
	chans := r.SystemChannels()
	require.Len(t, chans, 6)
	assert.Equal(t, "red", chans[0].ID)
	for _, ch := range chans {
		assert.Equal(t, fdc3.ChannelTypeSystem, ch.Type)
	}

	// App channels are not system channels.
	_, err := r.GetOrCreate("deal-room")
	require.NoError(t, err)
	assert.Len(t, r.SystemChannels(), 6)
}

func TestJoinLeave(t *testing.T) {
	r := newTestRouter()
	r.Attach("a", "tab-a", &recorder{})

	ch, err := r.Join("a", "red")
	require.NoError(t, err)
	assert.Equal(t, "red", ch.ID)

	cur, err := r.CurrentChannel("a")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, "red", cur.ID)

	// Joining replaces membership.
	_, err = r.Join("a", "blue")
	require.NoError(t, err)
	infos := r.Channels()
	assert.Empty(t, infos[0].Members)
	assert.Equal(t, []string{"a"}, infos[4].Members)

	require.NoError(t, r.Leave("a"))
	cur, err = r.CurrentChannel("a")
	require.NoError(t, err)
	assert.Nil(t, cur)

	_, err = r.Join("a", "nope")
	assert.ErrorIs(t, err, fdc3.NoChannelFound)

	_, err = r.Join("ghost", "red")
	assert.ErrorIs(t, err, ErrUnknownClient)
}

func TestBroadcastDeliversToListeningMembersOnly(t *testing.T) {
	r := newTestRouter()
	sender, sameAny, sameTyped, sameOtherType, sameNoListener, otherChannel, noChannel :=
		&recorder{}, &recorder{}, &recorder{}, &recorder{}, &recorder{}, &recorder{}, &recorder{}

	r.Attach("sender", "", sender)
	r.Attach("any", "", sameAny)
	r.Attach("typed", "", sameTyped)
	r.Attach("other-type", "", sameOtherType)
	r.Attach("silent", "", sameNoListener)
	r.Attach("blue", "", otherChannel)
	r.Attach("none", "", noChannel)

	for _, id := range []string{"sender", "any", "typed", "other-type", "silent"} {
		_, err := r.Join(id, "red")
		require.NoError(t, err)
	}
	_, err := r.Join("blue", "blue")
	require.NoError(t, err)

	require.NoError(t, r.AddContextListener("sender", "l-sender", ""))
	require.NoError(t, r.AddContextListener("any", "l-any", ""))
	require.NoError(t, r.AddContextListener("typed", "l-typed", "fdc3.instrument"))
	require.NoError(t, r.AddContextListener("typed", "l-typed-2", ""))
	require.NoError(t, r.AddContextListener("other-type", "l-contact", "fdc3.contact"))
	require.NoError(t, r.AddContextListener("blue", "l-blue", ""))
	require.NoError(t, r.AddContextListener("none", "l-none", ""))

	n, err := r.Broadcast("sender", instrument("MSFT"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Empty(t, sender.events(t), "sender is excluded")
	assert.Empty(t, sameOtherType.events(t))
	assert.Empty(t, sameNoListener.events(t))
	assert.Empty(t, otherChannel.events(t))
	assert.Empty(t, noChannel.events(t))

	anyEvents := sameAny.events(t)
	require.Len(t, anyEvents, 1)
	assert.Equal(t, "red", anyEvents[0].Channel)
	assert.Equal(t, []string{"l-any"}, anyEvents[0].ListenerIDs)
	assert.Equal(t, "fdc3.instrument", anyEvents[0].Context.Type())

	typedEvents := sameTyped.events(t)
	require.Len(t, typedEvents, 1)
	assert.Equal(t, []string{"l-typed", "l-typed-2"}, typedEvents[0].ListenerIDs)
}

func TestBroadcastRespectsCurrentMembership(t *testing.T) {
	r := newTestRouter()
	sender, mover := &recorder{}, &recorder{}
	r.Attach("sender", "", sender)
	r.Attach("mover", "", mover)
	require.NoError(t, r.AddContextListener("mover", "l1", ""))

	_, _ = r.Join("sender", "red")
	_, _ = r.Join("mover", "red")
	_, _ = r.Join("mover", "green")

	n, err := r.Broadcast("sender", instrument("AAPL"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, mover.events(t))
}

func TestBroadcastOutsideChannelIsNoop(t *testing.T) {
	r := newTestRouter()
	r.Attach("a", "", &recorder{})

	n, err := r.Broadcast("a", instrument("MSFT"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBroadcastRejectsInvalidContext(t *testing.T) {
	r := newTestRouter()
	r.Attach("a", "", &recorder{})
	_, _ = r.Join("a", "red")

	for _, raw := range []string{``, `[]`, `{"id":1}`, `{"type":""}`, `not json`} {
		_, err := r.Broadcast("a", fdc3.Context(raw))
		assert.ErrorIs(t, err, ErrInvalidContext, raw)
	}
}

func TestCurrentContext(t *testing.T) {
	r := newTestRouter()
	r.Attach("a", "", &recorder{})
	_, _ = r.Join("a", "red")

	got, err := r.CurrentContext("red", "fdc3.instrument")
	require.NoError(t, err)
	assert.Nil(t, got, "nothing broadcast yet")

	_, err = r.Broadcast("a", instrument("MSFT"))
	require.NoError(t, err)
	_, err = r.Broadcast("a", fdc3.Context(`{"type":"fdc3.contact","name":"Jane"}`))
	require.NoError(t, err)

	got, err = r.CurrentContext("red", "fdc3.instrument")
	require.NoError(t, err)
	assert.JSONEq(t, string(instrument("MSFT")), string(got))

	got, err = r.CurrentContext("red", "")
	require.NoError(t, err)
	assert.Equal(t, "fdc3.contact", got.Type())

	got, err = r.CurrentContext("blue", "fdc3.instrument")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = r.CurrentContext("nope", "")
	assert.ErrorIs(t, err, fdc3.NoChannelFound)
}

func TestGetOrCreate(t *testing.T) {
	r := newTestRouter()

	ch, err := r.GetOrCreate("deal-room")
	require.NoError(t, err)
	assert.Equal(t, fdc3.ChannelTypeApp, ch.Type)

	again, err := r.GetOrCreate("deal-room")
	require.NoError(t, err)
	assert.Equal(t, ch, again)
	assert.Len(t, r.Channels(), 7)

	_, err = r.GetOrCreate("red")
	assert.ErrorIs(t, err, fdc3.AccessDenied)

	_, err = r.GetOrCreate("")
	assert.ErrorIs(t, err, fdc3.CreationFailed)

	// App channels can be joined like system channels.
	r.Attach("a", "", &recorder{})
	_, err = r.Join("a", "deal-room")
	assert.NoError(t, err)
}

func TestRemoveContextListener(t *testing.T) {
	r := newTestRouter()
	sender, listener := &recorder{}, &recorder{}
	r.Attach("sender", "", sender)
	r.Attach("listener", "", listener)
	_, _ = r.Join("sender", "red")
	_, _ = r.Join("listener", "red")
	require.NoError(t, r.AddContextListener("listener", "l1", ""))

	assert.True(t, r.RemoveContextListener("listener", "l1"))
	assert.False(t, r.RemoveContextListener("listener", "l1"))
	assert.False(t, r.RemoveContextListener("ghost", "l1"))

	n, err := r.Broadcast("sender", instrument("MSFT"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDetachCascades(t *testing.T) {
	r := newTestRouter()
	sender, gone := &recorder{}, &recorder{}
	r.Attach("sender", "", sender)
	r.Attach("gone", "tab-gone", gone)
	_, _ = r.Join("sender", "red")
	_, _ = r.Join("gone", "red")
	require.NoError(t, r.AddContextListener("gone", "l1", ""))

	r.Detach("gone")
	r.Detach("gone")

	n, err := r.Broadcast("sender", instrument("MSFT"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, gone.events(t))

	assert.ErrorIs(t, r.AddContextListener("gone", "l2", ""), ErrUnknownClient)

	// The tab is free again: a new assignment is queued, not applied.
	applied, err := r.AssignTab("tab-gone", "blue")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestAssignTab(t *testing.T) {
	t.Run("queued before attach", func(t *testing.T) {
		r := newTestRouter()
		applied, err := r.AssignTab("tab-1", "yellow")
		require.NoError(t, err)
		assert.False(t, applied)

		pending, ok := r.PendingChannel("tab-1")
		require.True(t, ok)
		assert.Equal(t, "yellow", pending)

		ch := r.Attach("a", "tab-1", &recorder{})
		require.NotNil(t, ch)
		assert.Equal(t, "yellow", ch.ID)

		cur, err := r.CurrentChannel("a")
		require.NoError(t, err)
		assert.Equal(t, "yellow", cur.ID)

		_, ok = r.PendingChannel("tab-1")
		assert.False(t, ok, "pending assignment is consumed")
	})

	t.Run("applied when attached", func(t *testing.T) {
		r := newTestRouter()
		assert.Nil(t, r.Attach("a", "tab-1", &recorder{}))

		applied, err := r.AssignTab("tab-1", "green")
		require.NoError(t, err)
		assert.True(t, applied)

		cur, err := r.CurrentChannel("a")
		require.NoError(t, err)
		assert.Equal(t, "green", cur.ID)
	})

	t.Run("unknown channel", func(t *testing.T) {
		r := newTestRouter()
		_, err := r.AssignTab("tab-1", "nope")
		assert.ErrorIs(t, err, fdc3.NoChannelFound)
	})

	t.Run("requeued when connect fails", func(t *testing.T) {
		r := newTestRouter()
		_, err := r.AssignTab("tab-1", "yellow")
		require.NoError(t, err)
		require.NotNil(t, r.Attach("a", "tab-1", &recorder{}))

		r.Unbind("a")

		_, err = r.CurrentChannel("a")
		assert.Error(t, err, "unbound app is gone")
		pending, ok := r.PendingChannel("tab-1")
		require.True(t, ok)
		assert.Equal(t, "yellow", pending)

		ch := r.Attach("b", "tab-1", &recorder{})
		require.NotNil(t, ch)
		assert.Equal(t, "yellow", ch.ID)
	})

	t.Run("newer assignment wins over requeue", func(t *testing.T) {
		r := newTestRouter()
		_, err := r.AssignTab("tab-1", "yellow")
		require.NoError(t, err)
		require.NotNil(t, r.Attach("a", "tab-1", &recorder{}))
		r.Attach("b", "tab-1", &recorder{})
		r.Detach("b")
		applied, err := r.AssignTab("tab-1", "green")
		require.NoError(t, err)
		require.False(t, applied)

		r.Unbind("a")

		pending, ok := r.PendingChannel("tab-1")
		require.True(t, ok)
		assert.Equal(t, "green", pending)
	})

	t.Run("detach keeps nothing queued", func(t *testing.T) {
		r := newTestRouter()
		_, err := r.AssignTab("tab-1", "yellow")
		require.NoError(t, err)
		require.NotNil(t, r.Attach("a", "tab-1", &recorder{}))

		r.Detach("a")

		_, ok := r.PendingChannel("tab-1")
		assert.False(t, ok)
	})
}

func TestBroadcastCountsOnlyQueuedDeliveries(t *testing.T) {
	r := newTestRouter()
	full := &recorder{full: true}
	r.Attach("sender", "", &recorder{})
	r.Attach("full", "", full)
	_, _ = r.Join("sender", "red")
	_, _ = r.Join("full", "red")
	require.NoError(t, r.AddContextListener("full", "l1", ""))

	n, err := r.Broadcast("sender", instrument("MSFT"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConcurrentJoinAndBroadcast(t *testing.T) {
	r := newTestRouter()
	channels := []string{"red", "green", "blue"}
	for i := range 10 {
		id := fmt.Sprintf("app-%d", i)
		r.Attach(id, "", &recorder{})
		require.NoError(t, r.AddContextListener(id, "l", ""))
	}

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("app-%d", i)
			for j := range 50 {
				_, _ = r.Join(id, channels[(i+j)%len(channels)])
				_, _ = r.Broadcast(id, instrument("MSFT"))
			}
		}()
	}
	wg.Wait()

	total := 0
	for _, info := range r.Channels() {
		total += len(info.Members)
	}
	assert.Equal(t, 10, total, "every app is in exactly one channel")
}
