// ABOUTME: Tests for the connection Manager: directory resolution, greeting and teardown.
// ABOUTME: Apps are simulated over in-process pipes.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fdc3-gateway/internal/directory"
	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/protocol"
	"github.com/2389/fdc3-gateway/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeDirectory lets tests control lookup results and failures.
type fakeDirectory struct {
	search     []fdc3.AppEntry
	searchErr  error
	actions    []fdc3.Action
	actionsErr error
}

func (f *fakeDirectory) Search(context.Context, string) ([]fdc3.AppEntry, error) {
	return f.search, f.searchErr
}

func (f *fakeDirectory) Actions(context.Context, string) ([]fdc3.Action, error) {
	return f.actions, f.actionsErr
}

func (f *fakeDirectory) Get(context.Context, string) (*fdc3.AppEntry, error) {
	return nil, directory.ErrNotFound
}

func (f *fakeDirectory) FindByIntent(context.Context, string, string) ([]fdc3.AppEntry, error) {
	return nil, nil
}

// connectApp connects a simulated app and returns its side of the pipe and
// the environment descriptor it received.
func connectApp(t *testing.T, m *Manager, hello transport.Hello) (*Connection, transport.Port, protocol.EnvironmentData) {
	t.Helper()
	appSide, agentSide := transport.Pipe(8)

	conn, err := m.Connect(t.Context(), agentSide, hello)
	require.NoError(t, err)
	t.Cleanup(func() { m.Disconnect(conn) })

	msg, err := appSide.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.TopicEnvironment, msg.Topic)

	var env protocol.EnvironmentData
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	return conn, appSide, env
}

func TestConnectDirectoryResolution(t *testing.T) {
	chart := fdc3.AppEntry{Name: "ChartApp", Origin: "https://chart.example.com"}
	withActions := fdc3.AppEntry{Name: "ChartApp", Origin: "https://chart.example.com", HasActions: true}
	actions := []fdc3.Action{{Name: "show", Intent: "ViewChart"}}

	tests := []struct {
		name        string
		dir         *fakeDirectory
		wantApp     string
		wantActions int
	}{
		{"zero matches", &fakeDirectory{}, "", 0},
		{"one match", &fakeDirectory{search: []fdc3.AppEntry{chart}}, "ChartApp", 0},
		{"one match with actions", &fakeDirectory{search: []fdc3.AppEntry{withActions}, actions: actions}, "ChartApp", 1},
		{"action fetch fails", &fakeDirectory{search: []fdc3.AppEntry{withActions}, actionsErr: errors.New("boom")}, "ChartApp", 0},
		{"ambiguous", &fakeDirectory{search: []fdc3.AppEntry{chart, {Name: "Other"}}}, "", 0},
		{"lookup fails", &fakeDirectory{searchErr: directory.ErrUnavailable}, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(Options{Directory: tt.dir}, testLogger())
			conn, _, env := connectApp(t, m, transport.Hello{Origin: "https://chart.example.com", TabID: "tab-1"})

			assert.Equal(t, "tab-1", env.TabID)
			assert.Nil(t, env.CurrentChannel)
			if tt.wantApp == "" {
				assert.Nil(t, env.Directory)
				assert.Nil(t, conn.Directory())
				assert.Equal(t, "https://chart.example.com", conn.AppName())
				return
			}
			require.NotNil(t, env.Directory)
			assert.Equal(t, tt.wantApp, env.Directory.Name)
			assert.Len(t, env.Directory.Actions, tt.wantActions)
			assert.Equal(t, tt.wantApp, conn.AppName())
		})
	}
}

func TestConnectWithoutDirectory(t *testing.T) {
	m := NewManager(Options{}, testLogger())
	conn, _, env := connectApp(t, m, transport.Hello{Origin: "https://app.example.com", TabID: "tab-1"})

	assert.Nil(t, env.Directory)
	_, ok := m.Get(conn.ID)
	assert.True(t, ok)
}

func TestConnectIncludesBoundChannel(t *testing.T) {
	red := fdc3.Channel{ID: "red", Type: fdc3.ChannelTypeSystem}
	var boundTab string
	m := NewManager(Options{
		BindTab: func(tabID string, conn *Connection) *fdc3.Channel {
			boundTab = tabID
			return &red
		},
	}, testLogger())

	_, _, env := connectApp(t, m, transport.Hello{Origin: "https://app.example.com", TabID: "tab-7"})

	assert.Equal(t, "tab-7", boundTab)
	require.NotNil(t, env.CurrentChannel)
	assert.Equal(t, "red", env.CurrentChannel.ID)
}

func TestConnectFailureUnbindsTab(t *testing.T) {
	var unbound, released []string
	m := NewManager(Options{
		BindTab: func(_ string, conn *Connection) *fdc3.Channel {
			// A connection closed before its greeting cannot register.
			_ = conn.Close()
			return nil
		},
		UnbindTab: func(conn *Connection) { unbound = append(unbound, conn.ID) },
	}, testLogger())
	m.OnDisconnect(func(c *Connection) { released = append(released, c.ID) })

	_, agentSide := transport.Pipe(8)
	conn, err := m.Connect(t.Context(), agentSide, transport.Hello{Origin: "https://app.example.com", TabID: "tab-1"})

	require.ErrorIs(t, err, ErrConnectionClosed)
	assert.Nil(t, conn)
	assert.Equal(t, 0, m.Count())
	require.Len(t, unbound, 1)
	assert.Equal(t, unbound, released)
}

func TestEnvironmentIsFirstFrame(t *testing.T) {
	m := NewManager(Options{}, testLogger())
	appSide, agentSide := transport.Pipe(8)

	conn, err := m.Connect(t.Context(), agentSide, transport.Hello{Origin: "https://app.example.com", TabID: "tab-1"})
	require.NoError(t, err)
	defer m.Disconnect(conn)

	ev, err := protocol.NewEvent(protocol.TopicContext, protocol.ContextEvent{Channel: "red"})
	require.NoError(t, err)
	require.True(t, conn.Deliver(ev))

	first, err := appSide.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.TopicEnvironment, first.Topic)

	second, err := appSide.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.TopicContext, second.Topic)
}

func TestDisconnectRunsHooksAndClosesPort(t *testing.T) {
	m := NewManager(Options{}, testLogger())

	var released []string
	m.OnDisconnect(func(c *Connection) { released = append(released, "channels:"+c.ID) })
	m.OnDisconnect(func(c *Connection) { released = append(released, "intents:"+c.ID) })

	appSide, agentSide := transport.Pipe(8)
	conn, err := m.Connect(t.Context(), agentSide, transport.Hello{Origin: "https://app.example.com", TabID: "tab-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())

	m.Disconnect(conn)

	assert.Equal(t, 0, m.Count())
	assert.Equal(t, []string{"channels:" + conn.ID, "intents:" + conn.ID}, released)

	// Drain the greeting, then the port reports closed.
	_, _ = appSide.Recv()
	_, err = appSide.Recv()
	assert.ErrorIs(t, err, transport.ErrClosed)

	// A second disconnect is harmless.
	m.Disconnect(conn)
	assert.Len(t, released, 2)
}

func TestLookups(t *testing.T) {
	dir := directory.NewStatic(fdc3.AppEntry{Name: "ChartApp", Origin: "https://chart.example.com"})
	m := NewManager(Options{Directory: dir}, testLogger())

	first, _, _ := connectApp(t, m, transport.Hello{Origin: "https://chart.example.com", TabID: "tab-1", Transport: "pipe"})
	time.Sleep(time.Millisecond)
	second, _, _ := connectApp(t, m, transport.Hello{Origin: "https://chart.example.com", TabID: "tab-2", Transport: "pipe"})
	time.Sleep(time.Millisecond)
	connectApp(t, m, transport.Hello{Origin: "https://news.example.com", TabID: "tab-3", Transport: "pipe"})

	t.Run("by name", func(t *testing.T) {
		charts := m.ByName("ChartApp")
		require.Len(t, charts, 2)
		assert.Equal(t, first.ID, charts[0].ID)
		assert.Equal(t, second.ID, charts[1].ID)

		assert.Len(t, m.ByName("https://news.example.com"), 1)
		assert.Empty(t, m.ByName("Missing"))
	})

	t.Run("by tab", func(t *testing.T) {
		conn, ok := m.ByTab("tab-2")
		require.True(t, ok)
		assert.Equal(t, second.ID, conn.ID)

		_, ok = m.ByTab("tab-9")
		assert.False(t, ok)
	})

	t.Run("list", func(t *testing.T) {
		infos := m.List()
		require.Len(t, infos, 3)
		assert.Equal(t, first.ID, infos[0].ID)
		assert.True(t, infos[0].Directory)
		assert.False(t, infos[2].Directory)
		assert.Equal(t, "pipe", infos[0].Transport)
	})

	t.Run("metadata", func(t *testing.T) {
		md := first.Metadata()
		assert.Equal(t, "ChartApp", md.Name)
		assert.Equal(t, first.ID, md.InstanceID)
	})
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	m := NewManager(Options{}, testLogger())
	_, agentSide := transport.Pipe(1)
	conn := NewConnection("dup", transport.Hello{}, nil, agentSide, 1, testLogger(), nil)
	defer conn.Close()

	require.NoError(t, m.Register(conn))
	assert.ErrorIs(t, m.Register(conn), ErrAlreadyRegistered)
}

func TestCloseAllEndsReaders(t *testing.T) {
	m := NewManager(Options{}, testLogger())
	conn, _, _ := connectApp(t, m, transport.Hello{Origin: "https://app.example.com", TabID: "tab-1"})

	m.CloseAll()

	_, err := conn.Recv()
	assert.ErrorIs(t, err, transport.ErrClosed)
}
