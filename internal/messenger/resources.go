package messenger

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

// Response is an HTTP-style descriptor returned by destructive or
// contentless operations.
type Response struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
}

// Success is the default response descriptor.
func Success(msg string) *Response {
	return &Response{Status: http.StatusOK, Message: msg}
}

// Result is what every terminal action returns: the persisted entity, its
// JSON resource and, where meaningful, a response descriptor.
type Result[T any] struct {
	Entity   T
	resource any
	response *Response
}

// JSONResource returns the serializable representation.
func (r *Result[T]) JSONResource() any { return r.resource }

// Response returns the response descriptor, if the action produced one.
func (r *Result[T]) Response() (*Response, bool) {
	return r.response, r.response != nil
}

// OwnerResource is the public view of a provider.
type OwnerResource struct {
	ProviderAlias string `json:"provider_alias"`
	ProviderID    string `json:"provider_id"`
	Name          string `json:"name"`
	Ghost         bool   `json:"ghost,omitempty"`
}

// MessageResource is the public view of a message.
type MessageResource struct {
	ID            uuid.UUID       `json:"id"`
	ThreadID      uuid.UUID       `json:"thread_id"`
	Type          int             `json:"type"`
	TypeVerbose   string          `json:"type_verbose"`
	SystemMessage bool            `json:"system_message"`
	FromBot       bool            `json:"from_bot"`
	Body          string          `json:"body"`
	Edited        bool            `json:"edited"`
	Reacted       bool            `json:"reacted"`
	Embeds        bool            `json:"embeds"`
	Extra         json.RawMessage `json:"extra,omitempty"`
	ReplyToID     *uuid.UUID      `json:"reply_to_id,omitempty"`
	TemporaryID   string          `json:"temporary_id,omitempty"`
	Owner         OwnerResource   `json:"owner"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ThreadResource is the public view of a thread.
type ThreadResource struct {
	ID          uuid.UUID `json:"id"`
	Type        int       `json:"type"`
	TypeVerbose string    `json:"type_verbose"`
	Subject     string    `json:"subject,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReactionResource is the public view of a reaction.
type ReactionResource struct {
	ID        uuid.UUID     `json:"id"`
	MessageID uuid.UUID     `json:"message_id"`
	ThreadID  uuid.UUID     `json:"thread_id"`
	Reaction  string        `json:"reaction"`
	Owner     OwnerResource `json:"owner"`
	CreatedAt time.Time     `json:"created_at"`
}

// ParticipantReadResource is broadcast when a participant reads a thread.
type ParticipantReadResource struct {
	ThreadID      uuid.UUID  `json:"thread_id"`
	ParticipantID uuid.UUID  `json:"participant_id"`
	LastRead      *time.Time `json:"last_read"`
}

// KnockResource is broadcast to the knocked participants.
type KnockResource struct {
	Thread ThreadResource `json:"thread"`
	Sender OwnerResource  `json:"sender"`
}

func threadResource(t *store.ThreadData) ThreadResource {
	return ThreadResource{
		ID:          t.ID,
		Type:        t.Type,
		TypeVerbose: t.TypeVerbose(),
		Subject:     t.Subject,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// ownerResource resolves display data for p, falling back to a ghost when
// the owner no longer exists.
func (m *Messenger) ownerResource(ctx context.Context, p store.Provider) OwnerResource {
	out := OwnerResource{ProviderAlias: p.Alias, ProviderID: p.ID, Name: p.Name}
	if p.IsBot() {
		id, err := uuid.Parse(p.ID)
		if err == nil {
			if bot, err := m.stores.Bots.GetBot(ctx, id); err == nil {
				out.Name = bot.Name
				return out
			}
		}
		out.Name = store.GhostBotName
		out.Ghost = true
		return out
	}
	resolved, ok := m.resolver.Resolve(ctx, p)
	if !ok {
		out.Name = store.GhostProviderName
		out.Ghost = true
		return out
	}
	if resolved.Name != "" {
		out.Name = resolved.Name
	}
	return out
}

// MessageResource builds the public view of msg.
func (m *Messenger) MessageResource(ctx context.Context, msg *store.MessageData) MessageResource {
	return MessageResource{
		ID:            msg.ID,
		ThreadID:      msg.ThreadID,
		Type:          msg.Type,
		TypeVerbose:   msg.TypeVerbose(),
		SystemMessage: msg.IsSystem(),
		FromBot:       msg.IsFromBot(),
		Body:          msg.Body,
		Edited:        msg.Edited,
		Reacted:       msg.Reacted,
		Embeds:        msg.Embeds,
		Extra:         msg.Extra,
		ReplyToID:     msg.ReplyToID,
		TemporaryID:   msg.TemporaryID,
		Owner:         m.ownerResource(ctx, msg.Owner),
		CreatedAt:     msg.CreatedAt,
		UpdatedAt:     msg.UpdatedAt,
	}
}
