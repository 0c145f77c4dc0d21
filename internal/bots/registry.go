package bots

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

// Factory returns a fresh, unbound handler.
type Factory func() Handler

type registration struct {
	settings Settings
	factory  Factory
}

// Registry maps handler keys to their settings and factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register adds a handler under key. Keys are unique.
func (r *Registry) Register(key string, s Settings, f Factory) error {
	if key == "" || f == nil {
		return fmt.Errorf("register bot handler: key and factory are required")
	}
	if s.Triggers != nil && len(s.Triggers) == 0 && !s.Triggerless {
		return fmt.Errorf("register bot handler %s: fixed triggers must not be empty", key)
	}
	s.Alias = key
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return fmt.Errorf("register bot handler %s: already registered", key)
	}
	r.entries[key] = registration{settings: s, factory: f}
	return nil
}

// MustRegister is Register that panics on error. For init-time wiring.
func (r *Registry) MustRegister(key string, s Settings, f Factory) {
	if err := r.Register(key, s, f); err != nil {
		panic(err)
	}
}

// Settings returns the settings registered under key.
func (r *Registry) Settings(key string) (Settings, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	return e.settings, ok
}

// New creates an unbound handler for key.
func (r *Registry) New(key string) (Handler, Settings, error) {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, Settings{}, fmt.Errorf("%w: %s", ErrUnknownHandler, key)
	}
	return e.factory(), e.settings, nil
}

// All returns every registration sorted by name.
func (r *Registry) All() []Settings {
	r.mu.RLock()
	out := make([]Settings, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.settings)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Alias < out[j].Alias
	})
	return out
}

// Catalog returns the handlers actor may install. Handlers that require
// authorization are checked once per listing.
func (r *Registry) Catalog(ctx context.Context, actor store.Provider) []Settings {
	all := r.All()
	out := make([]Settings, 0, len(all))
	for _, s := range all {
		if s.Authorize && !r.authorize(ctx, s.Alias, actor) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Authorized reports whether actor may install the handler under key.
func (r *Registry) Authorized(ctx context.Context, key string, actor store.Provider) (bool, error) {
	s, ok := r.Settings(key)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownHandler, key)
	}
	if !s.Authorize {
		return true, nil
	}
	return r.authorize(ctx, key, actor), nil
}

func (r *Registry) authorize(ctx context.Context, key string, actor store.Provider) bool {
	h, _, err := r.New(key)
	if err != nil {
		return false
	}
	a, ok := h.(Authorizer)
	if !ok {
		return true
	}
	return a.Authorize(ctx, actor)
}
