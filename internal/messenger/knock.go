package messenger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/messenger/internal/broadcast"
	"github.com/nextlevelbuilder/messenger/internal/bus"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

// KnockInput describes a knock.
type KnockInput struct {
	Actor  store.Provider
	Thread *store.ThreadData
}

// KnockLockoutKey is the lockout key for actor knocking on thread.
func KnockLockoutKey(thread *store.ThreadData, actor store.Provider) string {
	return "knock:" + thread.ID.String() + ":" + actor.Key()
}

func (m *Messenger) checkKnocksEnabled() error {
	if !m.features().Knocks {
		return &FeatureDisabledError{Feature: "knocks", Msg: "Knocking is currently disabled."}
	}
	return nil
}

// SendKnock notifies the other participants of the thread. A provider may
// knock on the same thread once per knock timeout.
func (m *Messenger) SendKnock(ctx context.Context, in KnockInput) (*Result[*store.ThreadData], error) {
	if err := m.checkKnocksEnabled(); err != nil {
		return nil, err
	}
	if in.Thread.IsGroup() && !in.Thread.Knocks {
		return nil, &KnockError{Msg: "Knocking is disabled for this group."}
	}

	// Bots are attached to the thread rather than participating in it.
	if !in.Actor.IsBot() {
		participant, err := m.stores.Participants.Get(ctx, in.Thread.ID, in.Actor)
		if errors.Is(err, store.ErrNotFound) {
			return nil, &KnockError{Msg: "You are not a participant in this thread."}
		}
		if err != nil {
			return nil, fmt.Errorf("load participant: %w", err)
		}
		if in.Thread.IsGroup() && !participant.SendKnocks && !participant.Admin {
			return nil, &KnockError{Msg: "You do not have permission to knock in this group."}
		}
	}

	f := m.features()
	key := KnockLockoutKey(in.Thread, in.Actor)
	timeout := time.Duration(f.KnockTimeoutMinutes) * time.Minute
	if timeout > 0 && !m.lockouts.TryAcquire(key, timeout) {
		return nil, &KnockError{Msg: "You may only knock once every " + humanizeMinutes(f.KnockTimeoutMinutes) + "."}
	}

	resource := KnockResource{
		Thread: threadResource(in.Thread),
		Sender: m.ownerResource(ctx, in.Actor),
	}
	m.send(ctx, func(b *broadcast.Broadcaster) *broadcast.Broadcast {
		return b.ToOthers(in.Thread, in.Actor).With(resource)
	}, protocol.EventKnockKnock)
	m.publish(protocol.BusKnockSent, bus.KnockPayload{Thread: in.Thread, Sender: in.Actor})

	return &Result[*store.ThreadData]{Entity: in.Thread, resource: resource, response: Success("knocked")}, nil
}

func humanizeMinutes(n int) string {
	if n == 1 {
		return "minute"
	}
	return fmt.Sprintf("%d minutes", n)
}
