// ABOUTME: Directory interface, sentinel errors and the in-memory Static directory.
// ABOUTME: Static backs directory-less deployments and tests.

package directory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/2389/fdc3-gateway/internal/fdc3"
)

var (
	// ErrNotFound is returned when a named app is not in the directory.
	ErrNotFound = errors.New("app not found in directory")

	// ErrUnavailable wraps transport and decoding failures.
	ErrUnavailable = errors.New("directory unavailable")
)

// Directory is the App Directory as seen by the agent.
type Directory interface {
	// Search returns every entry registered for origin.
	Search(ctx context.Context, origin string) ([]fdc3.AppEntry, error)
	// Actions returns the action bindings of the named app.
	Actions(ctx context.Context, name string) ([]fdc3.Action, error)
	// Get returns the named app or ErrNotFound.
	Get(ctx context.Context, name string) (*fdc3.AppEntry, error)
	// FindByIntent returns apps declaring intent, optionally for a context
	// type. An empty intent matches every app handling contextType.
	FindByIntent(ctx context.Context, intent, contextType string) ([]fdc3.AppEntry, error)
}

// Static is an in-memory Directory.
type Static struct {
	mu      sync.RWMutex
	entries []fdc3.AppEntry
}

// NewStatic creates a directory holding entries.
func NewStatic(entries ...fdc3.AppEntry) *Static {
	s := &Static{}
	for _, e := range entries {
		s.Add(e)
	}
	return s
}

// Add registers an entry, replacing any entry with the same name.
func (s *Static) Add(e fdc3.AppEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].Name == e.Name {
			s.entries[i] = e
			return
		}
	}
	s.entries = append(s.entries, e)
}

func (s *Static) Search(_ context.Context, origin string) ([]fdc3.AppEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	origin = strings.TrimSuffix(origin, "/")
	var out []fdc3.AppEntry
	for _, e := range s.entries {
		if strings.TrimSuffix(e.Origin, "/") == origin {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

func (s *Static) Actions(_ context.Context, name string) ([]fdc3.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.Name == name {
			return append([]fdc3.Action(nil), e.Actions...), nil
		}
	}
	return nil, ErrNotFound
}

func (s *Static) Get(_ context.Context, name string) (*fdc3.AppEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.Name == name {
			c := cloneEntry(e)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Static) FindByIntent(_ context.Context, intent, contextType string) ([]fdc3.AppEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []fdc3.AppEntry
	for _, e := range s.entries {
		if intent != "" {
			if e.SupportsIntent(intent, contextType) {
				out = append(out, cloneEntry(e))
			}
			continue
		}
		for _, decl := range e.Intents {
			if e.SupportsIntent(decl.Name, contextType) {
				out = append(out, cloneEntry(e))
				break
			}
		}
	}
	return out, nil
}

// cloneEntry copies the slices of e so callers cannot mutate stored entries.
func cloneEntry(e fdc3.AppEntry) fdc3.AppEntry {
	e.Icons = append([]fdc3.Icon(nil), e.Icons...)
	e.Intents = append([]fdc3.IntentDecl(nil), e.Intents...)
	e.Actions = append([]fdc3.Action(nil), e.Actions...)
	return e
}
