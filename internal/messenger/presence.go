package messenger

import (
	"context"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/broadcast"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

type presenceKind int

const (
	presenceTyping presenceKind = iota
	presenceStopTyping
	presenceRead
)

func (k presenceKind) event() string {
	switch k {
	case presenceTyping:
		return protocol.EventClientTyping
	case presenceStopTyping:
		return protocol.EventClientStopTyping
	}
	return protocol.EventClientRead
}

// PresencePayload is sent on the thread presence channel.
type PresencePayload struct {
	ProviderAlias string     `json:"provider_alias"`
	ProviderID    string     `json:"provider_id"`
	Name          string     `json:"name"`
	Typing        *bool      `json:"typing,omitempty"`
	MessageID     *uuid.UUID `json:"message_id,omitempty"`
}

// emitPresence broadcasts a client presence event for actor on thread.
// Nothing is persisted.
func (m *Messenger) emitPresence(ctx context.Context, kind presenceKind, thread *store.ThreadData, actor store.Provider, message *store.MessageData) {
	owner := m.ownerResource(ctx, actor)
	payload := PresencePayload{ProviderAlias: owner.ProviderAlias, ProviderID: owner.ProviderID, Name: owner.Name}
	switch kind {
	case presenceTyping, presenceStopTyping:
		typing := kind == presenceTyping
		payload.Typing = &typing
	case presenceRead:
		if message != nil {
			payload.MessageID = &message.ID
		}
	}
	m.send(ctx, func(b *broadcast.Broadcaster) *broadcast.Broadcast {
		return b.ToPresence(thread).With(payload)
	}, kind.event())
}
