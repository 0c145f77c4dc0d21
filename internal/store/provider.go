package store

import (
	"context"
	"fmt"
	"strings"
)

// Provider aliases known to the core. Additional messaging-capable aliases
// (for example "company") come from config.
const (
	ProviderUser = "user"
	ProviderBot  = "bot"
)

// Ghost names used when a message owner no longer resolves.
const (
	GhostProviderName = "Ghost Profile"
	GhostBotName      = "Ghost Bot"
)

// Provider is a polymorphic owner reference: anything that can own a
// participant, message, reaction or bot.
type Provider struct {
	Alias string `json:"provider_alias"`
	ID    string `json:"provider_id"`
	Name  string `json:"name,omitempty"`
}

// IsZero reports whether no identity is set.
func (p Provider) IsZero() bool {
	return p.Alias == "" && p.ID == ""
}

// IsBot reports whether the provider is a bot.
func (p Provider) IsBot() bool {
	return p.Alias == ProviderBot
}

// Is reports whether both references point at the same identity.
func (p Provider) Is(other Provider) bool {
	return p.Alias == other.Alias && p.ID == other.ID
}

// Key returns the canonical "alias:id" form.
func (p Provider) Key() string {
	return p.Alias + ":" + p.ID
}

func (p Provider) String() string {
	return p.Key()
}

// ParseProvider parses an "alias:id" key.
func ParseProvider(s string) (Provider, error) {
	alias, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || alias == "" || id == "" {
		return Provider{}, fmt.Errorf("invalid provider %q: expected alias:id", s)
	}
	return Provider{Alias: alias, ID: id}, nil
}

// PrivateKey returns the order-independent key identifying the private
// thread between two providers.
func PrivateKey(a, b Provider) string {
	ka, kb := a.Key(), b.Key()
	if kb < ka {
		ka, kb = kb, ka
	}
	return ka + "|" + kb
}

// ProviderResolver looks up display data for providers owned by other
// systems (users, companies). Returning ok=false marks the owner as a ghost.
type ProviderResolver interface {
	Resolve(ctx context.Context, p Provider) (Provider, bool)
}

// StaticResolver resolves every provider to itself.
type StaticResolver struct{}

func (StaticResolver) Resolve(_ context.Context, p Provider) (Provider, bool) {
	if p.IsZero() {
		return p, false
	}
	return p, true
}

type ctxKey string

const ctxProvider ctxKey = "messenger_provider"

// WithProvider returns a context carrying the authenticated provider.
func WithProvider(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, ctxProvider, p)
}

// ProviderFromCtx returns the authenticated provider, if any.
func ProviderFromCtx(ctx context.Context) (Provider, bool) {
	p, ok := ctx.Value(ctxProvider).(Provider)
	return p, ok && !p.IsZero()
}
