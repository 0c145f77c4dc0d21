package store

import (
	"time"

	"github.com/google/uuid"
)

// Thread types.
const (
	ThreadPrivate = 1
	ThreadGroup   = 2
)

// ThreadData is a conversation container.
type ThreadData struct {
	ID         uuid.UUID  `json:"id"`
	Type       int        `json:"type"`
	Subject    string     `json:"subject,omitempty"`
	Image      string     `json:"image,omitempty"`
	ChatBots   bool       `json:"chat_bots"`
	Knocks     bool       `json:"knocks"`
	Messaging  bool       `json:"messaging"`
	PrivateKey string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// IsPrivate reports whether the thread is a two-party thread.
func (t *ThreadData) IsPrivate() bool { return t.Type == ThreadPrivate }

// IsGroup reports whether the thread is a group thread.
func (t *ThreadData) IsGroup() bool { return t.Type == ThreadGroup }

// TypeVerbose returns the readable thread type.
func (t *ThreadData) TypeVerbose() string {
	if t.IsGroup() {
		return "GROUP"
	}
	return "PRIVATE"
}

// NewPrivateThread returns an unsaved private thread between a and b with
// default settings.
func NewPrivateThread(a, b Provider, now time.Time) *ThreadData {
	return &ThreadData{
		ID:         GenNewID(),
		Type:       ThreadPrivate,
		ChatBots:   false,
		Knocks:     true,
		Messaging:  true,
		PrivateKey: PrivateKey(a, b),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ParticipantData links a provider to a thread with its permissions.
type ParticipantData struct {
	ID              uuid.UUID  `json:"id"`
	ThreadID        uuid.UUID  `json:"thread_id"`
	Owner           Provider   `json:"owner"`
	Admin           bool       `json:"admin"`
	ManageBots      bool       `json:"manage_bots"`
	ManageInvites   bool       `json:"manage_invites"`
	AddParticipants bool       `json:"add_participants"`
	StartCalls      bool       `json:"start_calls"`
	SendKnocks      bool       `json:"send_knocks"`
	SendMessages    bool       `json:"send_messages"`
	Pending         bool       `json:"pending"`
	Muted           bool       `json:"muted"`
	LastRead        *time.Time `json:"last_read,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

// NewParticipant returns an unsaved participant with default permissions.
func NewParticipant(threadID uuid.UUID, owner Provider, now time.Time) *ParticipantData {
	return &ParticipantData{
		ID:           GenNewID(),
		ThreadID:     threadID,
		Owner:        owner,
		SendKnocks:   true,
		SendMessages: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
