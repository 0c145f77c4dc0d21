package bus

import (
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

// Event is a domain event published in-process after a change commits.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// MessageStoredPayload accompanies protocol.BusMessageStored.
type MessageStoredPayload struct {
	Thread   *store.ThreadData  `json:"thread"`
	Message  *store.MessageData `json:"message"`
	SenderIP string             `json:"sender_ip,omitempty"`
}

// ReactionAddedPayload accompanies protocol.BusReactionAdded.
type ReactionAddedPayload struct {
	Thread   *store.ThreadData   `json:"thread"`
	Message  *store.MessageData  `json:"message"`
	Reaction *store.ReactionData `json:"reaction"`
}

// KnockPayload accompanies protocol.BusKnockSent.
type KnockPayload struct {
	Thread *store.ThreadData `json:"thread"`
	Sender store.Provider    `json:"sender"`
}

// ParticipantReadPayload accompanies protocol.BusParticipantRead.
type ParticipantReadPayload struct {
	Thread      *store.ThreadData      `json:"thread"`
	Participant *store.ParticipantData `json:"participant"`
}

// PrivateThreadPayload accompanies protocol.BusPrivateThreadCreated.
type PrivateThreadPayload struct {
	Thread  *store.ThreadData `json:"thread"`
	Creator store.Provider    `json:"creator"`
	Target  store.Provider    `json:"target"`
}

// BotActionPayload accompanies the bot.action.* events.
type BotActionPayload struct {
	ThreadID  uuid.UUID `json:"thread_id"`
	BotID     uuid.UUID `json:"bot_id"`
	ActionID  uuid.UUID `json:"action_id"`
	MessageID uuid.UUID `json:"message_id,omitempty"`
	Handler   string    `json:"handler"`
	Trigger   string    `json:"trigger,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
// Used by the composer and dispatcher to decouple from concrete MessageBus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}
