// Package messenger implements the compose pathway: resolving the target
// thread for an acting provider and running the transactional message,
// reaction, knock and read actions with their realtime broadcasts and
// domain events.
package messenger

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/messenger/internal/broadcast"
	"github.com/nextlevelbuilder/messenger/internal/bus"
	"github.com/nextlevelbuilder/messenger/internal/config"
	"github.com/nextlevelbuilder/messenger/internal/cooldown"
	"github.com/nextlevelbuilder/messenger/internal/storage"
	"github.com/nextlevelbuilder/messenger/internal/store"
)

// Options wires a Messenger.
type Options struct {
	Config      *config.Config
	Stores      *store.Stores
	Broadcaster *broadcast.Broadcaster
	Bus         bus.EventPublisher
	Uploader    storage.Uploader
	Resolver    store.ProviderResolver
	// Lockouts holds knock timeouts. A fresh store is created when nil.
	Lockouts *cooldown.Store
	Now      func() time.Time
}

// Messenger is the shared service behind every Composer.
type Messenger struct {
	cfg         *config.Config
	stores      *store.Stores
	broadcaster *broadcast.Broadcaster
	bus         bus.EventPublisher
	uploader    storage.Uploader
	resolver    store.ProviderResolver
	lockouts    *cooldown.Store
	now         func() time.Time
}

// New creates a Messenger.
func New(opts Options) *Messenger {
	m := &Messenger{
		cfg:         opts.Config,
		stores:      opts.Stores,
		broadcaster: opts.Broadcaster,
		bus:         opts.Bus,
		uploader:    opts.Uploader,
		resolver:    opts.Resolver,
		lockouts:    opts.Lockouts,
		now:         opts.Now,
	}
	if m.cfg == nil {
		m.cfg = config.Default()
	}
	if m.bus == nil {
		m.bus = bus.Nop{}
	}
	if m.resolver == nil {
		m.resolver = store.StaticResolver{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.lockouts == nil {
		m.lockouts = cooldown.NewWithClock(m.now)
	}
	return m
}

// Compose starts a new compose intent.
func (m *Messenger) Compose() *Composer {
	return &Composer{m: m}
}

// Stores exposes the backing stores.
func (m *Messenger) Stores() *store.Stores { return m.stores }

// IsMessagingProvider reports whether p may be used as a compose target.
func (m *Messenger) IsMessagingProvider(p store.Provider) bool {
	return p.ID != "" && m.cfg.IsMessagingProvider(p.Alias)
}

func (m *Messenger) features() config.FeaturesConfig {
	return m.cfg.CurrentFeatures()
}

// send broadcasts unless broadcasting is unavailable. Delivery failures are
// logged: the change is already committed.
func (m *Messenger) send(ctx context.Context, bc func(*broadcast.Broadcaster) *broadcast.Broadcast, event string) {
	if m.broadcaster == nil {
		return
	}
	if err := bc(m.broadcaster).Send(ctx, event); err != nil {
		slog.Warn("messenger.broadcast.failed", "event", event, "error", err)
	}
}

func (m *Messenger) publish(name string, payload any) {
	m.bus.Broadcast(bus.Event{Name: name, Payload: payload})
}
