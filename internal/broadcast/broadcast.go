// Package broadcast fans realtime events out to subscriber channels.
//
// Every participant owns a private channel "private-messenger.{alias}.{id}";
// every thread has a presence channel "presence-messenger.thread.{id}".
package broadcast

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/metrics"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

// Driver delivers one event to a set of channels.
type Driver interface {
	Send(ctx context.Context, channels []string, event string, payload any) error
}

// PrivateChannel returns the private channel for p.
func PrivateChannel(p store.Provider) string {
	return protocol.PrivateChannelPrefix + p.Alias + "." + p.ID
}

// PresenceChannel returns the presence channel for a thread.
func PresenceChannel(threadID uuid.UUID) string {
	return protocol.PresenceChannelPrefix + threadID.String()
}

// Broadcaster builds broadcasts against a driver.
type Broadcaster struct {
	driver       Driver
	participants store.ParticipantStore
}

// New creates a broadcaster. participants resolves thread recipients.
func New(driver Driver, participants store.ParticipantStore) *Broadcaster {
	return &Broadcaster{driver: driver, participants: participants}
}

// Broadcast is one pending fan-out. Values are immutable; With returns a copy.
type Broadcast struct {
	b        *Broadcaster
	resolve  func(ctx context.Context) ([]string, error)
	payload  any
	describe string
}

// ToPresence targets the thread presence channel.
func (b *Broadcaster) ToPresence(thread *store.ThreadData) *Broadcast {
	return &Broadcast{b: b, describe: "presence", resolve: func(context.Context) ([]string, error) {
		return []string{PresenceChannel(thread.ID)}, nil
	}}
}

// ToAll targets the private channel of every participant in thread.
func (b *Broadcaster) ToAll(thread *store.ThreadData) *Broadcast {
	return b.participantsExcept(thread, store.Provider{}, "all")
}

// ToOthers targets every participant in thread except actor.
func (b *Broadcaster) ToOthers(thread *store.ThreadData, actor store.Provider) *Broadcast {
	return b.participantsExcept(thread, actor, "others")
}

// ToProviders targets the private channels of the given providers.
func (b *Broadcaster) ToProviders(providers ...store.Provider) *Broadcast {
	return &Broadcast{b: b, describe: "providers", resolve: func(context.Context) ([]string, error) {
		channels := make([]string, 0, len(providers))
		for _, p := range providers {
			channels = append(channels, PrivateChannel(p))
		}
		return channels, nil
	}}
}

func (b *Broadcaster) participantsExcept(thread *store.ThreadData, skip store.Provider, describe string) *Broadcast {
	return &Broadcast{b: b, describe: describe, resolve: func(ctx context.Context) ([]string, error) {
		list, err := b.participants.List(ctx, thread.ID)
		if err != nil {
			return nil, fmt.Errorf("list participants: %w", err)
		}
		channels := make([]string, 0, len(list))
		for _, p := range list {
			if p.Pending || (!skip.IsZero() && p.Owner.Is(skip)) {
				continue
			}
			channels = append(channels, PrivateChannel(p.Owner))
		}
		return channels, nil
	}}
}

// With attaches the payload.
func (bc *Broadcast) With(payload any) *Broadcast {
	cp := *bc
	cp.payload = payload
	return &cp
}

// Send resolves recipients and hands the event to the driver.
func (bc *Broadcast) Send(ctx context.Context, event string) error {
	channels, err := bc.resolve(ctx)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		return nil
	}
	if err := bc.b.driver.Send(ctx, channels, event, bc.payload); err != nil {
		return fmt.Errorf("broadcast %s to %s: %w", event, bc.describe, err)
	}
	metrics.Broadcasts.WithLabelValues(event).Inc()
	slog.Debug("broadcast.sent", "event", event, "target", bc.describe, "channels", len(channels))
	return nil
}
