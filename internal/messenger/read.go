package messenger

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/messenger/internal/broadcast"
	"github.com/nextlevelbuilder/messenger/internal/bus"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

// ReadInput describes a mark-read.
type ReadInput struct {
	Thread      *store.ThreadData
	Participant *store.ParticipantData
	Silent      bool
}

// MarkParticipantRead advances the participant's last read marker when the
// thread changed since it was last read. Up-to-date participants are
// returned unchanged with nothing broadcast.
func (m *Messenger) MarkParticipantRead(ctx context.Context, in ReadInput) (*Result[*store.ParticipantData], error) {
	p := in.Participant
	if p.ThreadID != in.Thread.ID {
		return nil, fmt.Errorf("participant %s is not in thread %s", p.ID, in.Thread.ID)
	}
	resource := func() ParticipantReadResource {
		return ParticipantReadResource{ThreadID: in.Thread.ID, ParticipantID: p.ID, LastRead: p.LastRead}
	}
	if p.LastRead != nil && !in.Thread.UpdatedAt.After(*p.LastRead) {
		return &Result[*store.ParticipantData]{Entity: p, resource: resource()}, nil
	}

	now := m.now()
	if err := m.stores.Participants.MarkRead(ctx, p.ID, now); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	p.LastRead = &now
	p.UpdatedAt = now

	res := resource()
	if !in.Silent {
		m.send(ctx, func(b *broadcast.Broadcaster) *broadcast.Broadcast {
			return b.ToProviders(p.Owner).With(res)
		}, protocol.EventParticipantRead)
	}
	m.publish(protocol.BusParticipantRead, bus.ParticipantReadPayload{Thread: in.Thread, Participant: p})

	return &Result[*store.ParticipantData]{Entity: p, resource: res}, nil
}
