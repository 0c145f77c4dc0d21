package bots

import (
	"time"

	"github.com/nextlevelbuilder/messenger/internal/cooldown"
	"github.com/nextlevelbuilder/messenger/internal/store"
)

// CooldownKey returns the cooldown key and duration for action. An action
// cooldown overrides the bot-wide one. A zero duration is never gated.
func CooldownKey(bot *store.BotData, action *store.BotActionData) (string, time.Duration) {
	if action.Cooldown > 0 {
		return "action:" + action.ID.String(), time.Duration(action.Cooldown) * time.Second
	}
	return "bot:" + bot.ID.String(), time.Duration(bot.Cooldown) * time.Second
}

// Gate applies bot and action cooldowns on top of a cooldown.Store.
type Gate struct {
	store *cooldown.Store
}

// NewGate creates a gate over s.
func NewGate(s *cooldown.Store) *Gate {
	return &Gate{store: s}
}

// Acquire reserves the cooldown for action. It returns false when the
// bot or action is still cooling down.
func (g *Gate) Acquire(bot *store.BotData, action *store.BotActionData) (Lease, bool) {
	key, d := CooldownKey(bot, action)
	if d <= 0 {
		return Lease{}, true
	}
	if !g.store.TryAcquire(key, d) {
		return Lease{}, false
	}
	return Lease{Key: key, Duration: d}, true
}

// Active reports whether action is currently cooling down.
func (g *Gate) Active(bot *store.BotData, action *store.BotActionData) bool {
	key, d := CooldownKey(bot, action)
	return d > 0 && g.store.Active(key)
}

// Finish settles a lease after the handler ran: the cooldown restarts from
// now on success, and is released when the handler failed or asked for it.
func (g *Gate) Finish(l Lease, release bool) {
	if l.Key == "" {
		return
	}
	if release {
		g.store.Release(l.Key)
		return
	}
	g.store.Start(l.Key, l.Duration)
}

// Lease is a reserved cooldown. The zero Lease holds nothing.
type Lease struct {
	Key      string        `json:"key,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}
