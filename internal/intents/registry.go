// ABOUTME: Intent listener registry plus find and raise against live apps and the directory.
// ABOUTME: Directory failures during find degrade to live-only results.

package intents

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/2389/fdc3-gateway/internal/directory"
	"github.com/2389/fdc3-gateway/internal/fdc3"
	"github.com/2389/fdc3-gateway/internal/protocol"
)

// Version is reported in every IntentResolution.
const Version = "1.2"

// ErrMissingListenerID indicates a registration without a handle.
var ErrMissingListenerID = errors.New("listener id is required")

// Member is a connected app able to receive intents.
type Member interface {
	Deliver(msg *protocol.Message) bool
	Metadata() fdc3.AppMetadata
	Directory() *fdc3.AppEntry
}

type listener struct {
	clientID   string
	listenerID string
	intent     string
	member     Member
}

// Candidate is a live app listening for an intent.
type Candidate struct {
	ClientID    string
	App         fdc3.AppMetadata
	ListenerIDs []string
	member      Member
}

// accepts reports whether the candidate handles contextType, judged by its
// directory declaration for intent when it has one.
func (c Candidate) accepts(intent, contextType string) bool {
	entry := c.member.Directory()
	if entry == nil || contextType == "" || entry.Intent(intent) == nil {
		return true
	}
	return entry.SupportsIntent(intent, contextType)
}

// Registry owns intent listener registrations.
type Registry struct {
	mu       sync.RWMutex
	byIntent map[string][]*listener
	byClient map[string]map[string]*listener
	dir      directory.Directory
	policy   Policy
	logger   *slog.Logger
}

// NewRegistry creates a Registry. dir may be nil when no directory is
// configured; policy defaults to First.
func NewRegistry(dir directory.Directory, policy Policy, logger *slog.Logger) *Registry {
	if policy == nil {
		policy = First{}
	}
	return &Registry{
		byIntent: make(map[string][]*listener),
		byClient: make(map[string]map[string]*listener),
		dir:      dir,
		policy:   policy,
		logger:   logger.With("component", "intents"),
	}
}

// Add registers listenerID of clientID for intent. Re-adding an existing
// listener id moves it to the new intent.
func (r *Registry) Add(clientID string, m Member, listenerID, intent string) error {
	if listenerID == "" {
		return ErrMissingListenerID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byClient[clientID][listenerID]; ok {
		r.removeLocked(clientID, listenerID)
	}

	l := &listener{clientID: clientID, listenerID: listenerID, intent: intent, member: m}
	r.byIntent[intent] = append(r.byIntent[intent], l)
	if r.byClient[clientID] == nil {
		r.byClient[clientID] = make(map[string]*listener)
	}
	r.byClient[clientID][listenerID] = l

	r.logger.Debug("intent listener added", "conn_id", clientID, "intent", intent, "listener_id", listenerID)
	return nil
}

// Remove releases one listener. It reports whether it existed.
func (r *Registry) Remove(clientID, listenerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(clientID, listenerID)
}

func (r *Registry) removeLocked(clientID, listenerID string) bool {
	l, ok := r.byClient[clientID][listenerID]
	if !ok {
		return false
	}
	delete(r.byClient[clientID], listenerID)
	if len(r.byClient[clientID]) == 0 {
		delete(r.byClient, clientID)
	}

	remaining := slices.DeleteFunc(r.byIntent[l.intent], func(x *listener) bool { return x == l })
	if len(remaining) == 0 {
		delete(r.byIntent, l.intent)
	} else {
		r.byIntent[l.intent] = remaining
	}
	return true
}

// DropClient releases every listener of clientID.
func (r *Registry) DropClient(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for listenerID := range r.byClient[clientID] {
		r.removeLocked(clientID, listenerID)
	}
}

// Listeners returns the live candidates for intent in registration order,
// one per app instance.
func (r *Registry) Listeners(intent string) []Candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.candidatesLocked(intent)
}

func (r *Registry) candidatesLocked(intent string) []Candidate {
	var out []Candidate
	index := make(map[string]int)
	for _, l := range r.byIntent[intent] {
		if i, ok := index[l.clientID]; ok {
			out[i].ListenerIDs = append(out[i].ListenerIDs, l.listenerID)
			continue
		}
		index[l.clientID] = len(out)
		out = append(out, Candidate{
			ClientID:    l.clientID,
			App:         l.member.Metadata(),
			ListenerIDs: []string{l.listenerID},
			member:      l.member,
		})
	}
	return out
}

// Intents returns the names of intents with at least one live listener.
func (r *Registry) Intents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := lo.Keys(r.byIntent)
	sort.Strings(names)
	return names
}

func (r *Registry) liveFor(intent, contextType string) []Candidate {
	return lo.Filter(r.Listeners(intent), func(c Candidate, _ int) bool {
		return c.accepts(intent, contextType)
	})
}

// directoryFor returns directory apps declaring intent for contextType.
// Lookup failures are logged and yield nothing.
func (r *Registry) directoryFor(ctx context.Context, intent, contextType string) ([]fdc3.AppEntry, error) {
	if r.dir == nil {
		return nil, nil
	}
	entries, err := r.dir.FindByIntent(ctx, intent, contextType)
	if err != nil {
		r.logger.Warn("directory intent lookup failed, using live listeners only",
			"intent", intent, "context_type", contextType, "error", err)
		return nil, err
	}
	return entries, nil
}

// Find lists the apps able to handle intent, optionally for a context type:
// live listeners first, then directory apps not already running.
func (r *Registry) Find(ctx context.Context, intent, contextType string) (fdc3.AppIntent, error) {
	live := r.liveFor(intent, contextType)
	entries, _ := r.directoryFor(ctx, intent, contextType)

	result := fdc3.AppIntent{
		Intent: fdc3.IntentMetadata{Name: intent, DisplayName: displayName(intent, entries)},
		Apps:   mergeApps(live, entries),
	}
	if len(result.Apps) == 0 {
		return result, fdc3.NoAppsFound
	}
	return result, nil
}

// FindByContext lists, per intent, the apps able to handle contextType.
func (r *Registry) FindByContext(ctx context.Context, contextType string) ([]fdc3.AppIntent, error) {
	entries, _ := r.directoryFor(ctx, "", contextType)

	byIntent := make(map[string][]fdc3.AppEntry)
	for _, e := range entries {
		for _, decl := range e.Intents {
			if e.SupportsIntent(decl.Name, contextType) {
				byIntent[decl.Name] = append(byIntent[decl.Name], e)
			}
		}
	}

	names := lo.Uniq(append(lo.Keys(byIntent), r.Intents()...))
	sort.Strings(names)

	var out []fdc3.AppIntent
	for _, name := range names {
		apps := mergeApps(r.liveFor(name, contextType), byIntent[name])
		if len(apps) == 0 {
			continue
		}
		out = append(out, fdc3.AppIntent{
			Intent: fdc3.IntentMetadata{Name: name, DisplayName: displayName(name, byIntent[name])},
			Apps:   apps,
		})
	}
	if len(out) == 0 {
		return nil, fdc3.NoAppsFound
	}
	return out, nil
}

// Raise resolves intent to one live provider and delivers it. target, when
// set, restricts candidates to the app with that name or instance id.
func (r *Registry) Raise(ctx context.Context, intent string, c fdc3.Context, target string, source fdc3.AppMetadata) (fdc3.IntentResolution, error) {
	contextType := c.Type()
	live := r.liveFor(intent, contextType)
	if target != "" {
		live = lo.Filter(live, func(cand Candidate, _ int) bool {
			return cand.App.Name == target || cand.ClientID == target
		})
	}

	if len(live) == 0 {
		entries, err := r.directoryFor(ctx, intent, contextType)
		if target != "" {
			entries = lo.Filter(entries, func(e fdc3.AppEntry, _ int) bool { return e.Name == target })
		}
		if len(entries) > 0 || err != nil {
			// Directory apps exist but none is running, or the directory
			// cannot say; the agent does not launch apps.
			return fdc3.IntentResolution{}, fdc3.ResolverUnavailable
		}
		return fdc3.IntentResolution{}, fdc3.NoAppsFound
	}

	chosen := live[0]
	if len(live) > 1 && target == "" {
		var err error
		if chosen, err = r.policy.Select(intent, live); err != nil {
			return fdc3.IntentResolution{}, fdc3.NoAppsFound
		}
	}

	src := source
	msg, err := protocol.NewEvent(protocol.TopicIntent, protocol.IntentEvent{
		Intent:      intent,
		Context:     c,
		ListenerIDs: chosen.ListenerIDs,
		Source:      &src,
	})
	if err != nil {
		return fdc3.IntentResolution{}, err
	}
	if !chosen.member.Deliver(msg) {
		r.logger.Warn("intent target could not accept delivery", "intent", intent, "conn_id", chosen.ClientID)
		return fdc3.IntentResolution{}, fdc3.ResolverUnavailable
	}

	r.logger.Debug("intent delivered", "intent", intent, "conn_id", chosen.ClientID, "candidates", len(live))
	return fdc3.IntentResolution{Source: chosen.App, Intent: intent, Version: Version}, nil
}

// mergeApps lists live apps first, then directory apps whose name is not
// already running.
func mergeApps(live []Candidate, entries []fdc3.AppEntry) []fdc3.AppMetadata {
	apps := lo.Map(live, func(c Candidate, _ int) fdc3.AppMetadata { return c.App })
	running := lo.SliceToMap(apps, func(a fdc3.AppMetadata) (string, struct{}) { return a.Name, struct{}{} })

	dirApps := lo.UniqBy(
		lo.FilterMap(entries, func(e fdc3.AppEntry, _ int) (fdc3.AppMetadata, bool) {
			_, isRunning := running[e.Name]
			return e.Metadata(), !isRunning
		}),
		func(a fdc3.AppMetadata) string { return a.Name },
	)
	return append(apps, dirApps...)
}

// displayName returns the first directory display name for intent, or the
// intent name itself.
func displayName(intent string, entries []fdc3.AppEntry) string {
	for _, e := range entries {
		if decl := e.Intent(intent); decl != nil && decl.DisplayName != "" {
			return decl.DisplayName
		}
	}
	return intent
}
