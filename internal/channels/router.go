// ABOUTME: Channel membership, context listeners and context fan-out.
// ABOUTME: Remembers the last context per type on each channel for late joiners.

package channels

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/protocol"
)

var (
	// ErrUnknownClient indicates the connection was never attached or has left.
	ErrUnknownClient = errors.New("client not attached")

	// ErrInvalidContext is returned by Broadcast for contexts without a type.
	ErrInvalidContext = errors.New("context must be an object with a type")
)

// Deliverer queues frames for an app without blocking.
type Deliverer interface {
	Deliver(msg *protocol.Message) bool
}

type member struct {
	id        string
	tabID     string
	out       Deliverer
	channel   string
	listeners map[string]string // listenerID -> context type, "" for any
	// assigned is the pending tab channel consumed by Attach.
	assigned string
}

type channelState struct {
	info     fdc3.Channel
	members  map[string]*member
	contexts map[string]fdc3.Context
	last     fdc3.Context
}

// Router owns channels and their membership.
type Router struct {
	mu       sync.RWMutex
	order    []string
	channels map[string]*channelState
	members  map[string]*member
	tabs     map[string]string // tabID -> connection id
	pending  map[string]string // tabID -> channel id
	logger   *slog.Logger
}

// NewRouter creates a Router with the given system channels.
func NewRouter(system []fdc3.Channel, logger *slog.Logger) *Router {
	r := &Router{
		channels: make(map[string]*channelState),
		members:  make(map[string]*member),
		tabs:     make(map[string]string),
		pending:  make(map[string]string),
		logger:   logger.With("component", "channels"),
	}
	for _, ch := range system {
		ch.Type = fdc3.ChannelTypeSystem
		r.addChannelLocked(ch)
	}
	return r
}

func (r *Router) addChannelLocked(ch fdc3.Channel) *channelState {
	st := &channelState{
		info:     ch,
		members:  make(map[string]*member),
		contexts: make(map[string]fdc3.Context),
	}
	r.channels[ch.ID] = st
	r.order = append(r.order, ch.ID)
	return st
}

// SystemChannels returns the system channels in creation order.
func (r *Router) SystemChannels() []fdc3.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]fdc3.Channel, 0, len(r.order))
	for _, id := range r.order {
		if st := r.channels[id]; st.info.Type == fdc3.ChannelTypeSystem {
			out = append(out, st.info)
		}
	}
	return out
}

// Attach registers a connected app and binds its tab. A channel queued for
// the tab is joined immediately and returned.
func (r *Router) Attach(clientID, tabID string, out Deliverer) *fdc3.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := &member{id: clientID, tabID: tabID, out: out, listeners: make(map[string]string)}
	r.members[clientID] = m
	if tabID == "" {
		return nil
	}
	r.tabs[tabID] = clientID

	channelID, ok := r.pending[tabID]
	if !ok {
		return nil
	}
	delete(r.pending, tabID)

	st, ok := r.channels[channelID]
	if !ok {
		return nil
	}
	m.assigned = channelID
	r.joinLocked(m, st)
	r.logger.Info("applied pending channel", "tab_id", tabID, "conn_id", clientID, "channel", channelID)
	info := st.info
	return &info
}

// Detach removes an app with its membership and context listeners.
func (r *Router) Detach(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.members[clientID]; ok {
		r.detachLocked(m)
	}
}

// Unbind detaches an app that never finished connecting. A tab channel it
// took at Attach is queued again for the tab's next connection.
func (r *Router) Unbind(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[clientID]
	if !ok {
		return
	}
	r.detachLocked(m)
	if m.assigned == "" {
		return
	}
	if _, queued := r.pending[m.tabID]; !queued {
		r.pending[m.tabID] = m.assigned
		r.logger.Info("requeued pending channel", "tab_id", m.tabID, "channel", m.assigned)
	}
}

func (r *Router) detachLocked(m *member) {
	r.leaveLocked(m)
	delete(r.members, m.id)
	if m.tabID != "" && r.tabs[m.tabID] == m.id {
		delete(r.tabs, m.tabID)
	}
}

// Join moves an app into a channel, replacing any prior membership.
func (r *Router) Join(clientID, channelID string) (fdc3.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[clientID]
	if !ok {
		return fdc3.Channel{}, ErrUnknownClient
	}
	st, ok := r.channels[channelID]
	if !ok {
		return fdc3.Channel{}, fdc3.NoChannelFound
	}
	r.joinLocked(m, st)
	return st.info, nil
}

func (r *Router) joinLocked(m *member, st *channelState) {
	r.leaveLocked(m)
	m.channel = st.info.ID
	st.members[m.id] = m
}

// Leave removes an app from its current channel. Its context listeners are
// kept and apply again after the next join.
func (r *Router) Leave(clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[clientID]
	if !ok {
		return ErrUnknownClient
	}
	r.leaveLocked(m)
	return nil
}

func (r *Router) leaveLocked(m *member) {
	if m.channel == "" {
		return
	}
	if st, ok := r.channels[m.channel]; ok {
		delete(st.members, m.id)
	}
	m.channel = ""
}

// CurrentChannel returns the app's channel, or nil.
func (r *Router) CurrentChannel(clientID string) (*fdc3.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[clientID]
	if !ok {
		return nil, ErrUnknownClient
	}
	if m.channel == "" {
		return nil, nil
	}
	info := r.channels[m.channel].info
	return &info, nil
}

// GetOrCreate returns the app channel with id, creating it if needed.
// System channel ids cannot be claimed as app channels.
func (r *Router) GetOrCreate(channelID string) (fdc3.Channel, error) {
	if channelID == "" {
		return fdc3.Channel{}, fdc3.CreationFailed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.channels[channelID]; ok {
		if st.info.Type == fdc3.ChannelTypeSystem {
			return fdc3.Channel{}, fdc3.AccessDenied
		}
		return st.info, nil
	}

	st := r.addChannelLocked(fdc3.Channel{ID: channelID, Type: fdc3.ChannelTypeApp})
	r.logger.Info("app channel created", "channel", channelID)
	return st.info, nil
}

// Broadcast records ctx as the latest context on the sender's channel and
// delivers it to every other member listening for its type. It returns the
// number of apps the context was queued for. Broadcasting outside any
// channel is a no-op.
func (r *Router) Broadcast(clientID string, ctx fdc3.Context) (int, error) {
	if !ctx.Valid() {
		return 0, ErrInvalidContext
	}
	contextType := ctx.Type()

	r.mu.Lock()
	defer r.mu.Unlock()

	sender, ok := r.members[clientID]
	if !ok {
		return 0, ErrUnknownClient
	}
	if sender.channel == "" {
		r.logger.Debug("broadcast outside a channel ignored", "conn_id", clientID, "context_type", contextType)
		return 0, nil
	}
	st := r.channels[sender.channel]
	st.contexts[contextType] = ctx
	st.last = ctx

	delivered := 0
	for id, m := range st.members {
		if id == clientID {
			continue
		}
		listenerIDs := m.matching(contextType)
		if len(listenerIDs) == 0 {
			continue
		}
		msg, err := protocol.NewEvent(protocol.TopicContext, protocol.ContextEvent{
			Channel:     st.info.ID,
			Context:     ctx,
			ListenerIDs: listenerIDs,
		})
		if err != nil {
			return delivered, err
		}
		if m.out.Deliver(msg) {
			delivered++
		}
	}
	return delivered, nil
}

// matching returns the sorted ids of listeners accepting contextType.
func (m *member) matching(contextType string) []string {
	var ids []string
	for id, t := range m.listeners {
		if t == "" || t == contextType {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// CurrentContext returns the latest context of contextType on a channel, or
// the latest of any type when contextType is empty. It returns nil when
// nothing matching was broadcast.
func (r *Router) CurrentContext(channelID, contextType string) (fdc3.Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.channels[channelID]
	if !ok {
		return nil, fdc3.NoChannelFound
	}
	if contextType == "" {
		return st.last, nil
	}
	return st.contexts[contextType], nil
}

// AddContextListener registers a listener for contextType ("" for any).
func (r *Router) AddContextListener(clientID, listenerID, contextType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[clientID]
	if !ok {
		return ErrUnknownClient
	}
	m.listeners[listenerID] = contextType
	return nil
}

// RemoveContextListener releases a listener. It reports whether the
// listener existed.
func (r *Router) RemoveContextListener(clientID, listenerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[clientID]
	if !ok {
		return false
	}
	if _, ok := m.listeners[listenerID]; !ok {
		return false
	}
	delete(m.listeners, listenerID)
	return true
}

// AssignTab puts the app in tabID on a channel. When no app is attached for
// the tab the assignment is queued and applied by Attach. It reports
// whether the assignment took effect immediately.
func (r *Router) AssignTab(tabID, channelID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.channels[channelID]
	if !ok {
		return false, fdc3.NoChannelFound
	}
	if clientID, ok := r.tabs[tabID]; ok {
		r.joinLocked(r.members[clientID], st)
		return true, nil
	}
	r.pending[tabID] = channelID
	r.logger.Info("queued pending channel", "tab_id", tabID, "channel", channelID)
	return false, nil
}

// PendingChannel returns the channel queued for a tab, if any.
func (r *Router) PendingChannel(tabID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.pending[tabID]
	return id, ok
}

// Info summarizes a channel for introspection.
type Info struct {
	fdc3.Channel
	Members      []string `json:"members"`
	ContextTypes []string `json:"contextTypes"`
}

// Channels describes every channel in creation order.
func (r *Router) Channels() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		st := r.channels[id]
		info := Info{Channel: st.info, Members: []string{}, ContextTypes: []string{}}
		for mid := range st.members {
			info.Members = append(info.Members, mid)
		}
		for t := range st.contexts {
			info.ContextTypes = append(info.ContextTypes, t)
		}
		slices.Sort(info.Members)
		slices.Sort(info.ContextTypes)
		out = append(out, info)
	}
	return out
}
