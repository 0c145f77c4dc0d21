package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// GenNewID returns a time-ordered UUID v7.
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// ThreadStore persists threads.
type ThreadStore interface {
	Create(ctx context.Context, t *ThreadData) error
	Get(ctx context.Context, id uuid.UUID) (*ThreadData, error)
	// FindPrivate returns the private thread between a and b, or ErrNotFound.
	FindPrivate(ctx context.Context, a, b Provider) (*ThreadData, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ParticipantStore persists thread participants.
type ParticipantStore interface {
	Create(ctx context.Context, p *ParticipantData) error
	Get(ctx context.Context, threadID uuid.UUID, owner Provider) (*ParticipantData, error)
	List(ctx context.Context, threadID uuid.UUID) ([]*ParticipantData, error)
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error
}

// MessageStore persists messages.
type MessageStore interface {
	Create(ctx context.Context, m *MessageData) error
	Get(ctx context.Context, id uuid.UUID) (*MessageData, error)
	// GetInThread returns the message only if it belongs to threadID.
	GetInThread(ctx context.Context, threadID, id uuid.UUID) (*MessageData, error)
	SetReacted(ctx context.Context, id uuid.UUID, reacted bool) error
	ListRecent(ctx context.Context, threadID uuid.UUID, limit int) ([]*MessageData, error)
}

// ReactionStore persists reactions.
type ReactionStore interface {
	Create(ctx context.Context, r *ReactionData) error
	List(ctx context.Context, messageID uuid.UUID) ([]*ReactionData, error)
}

// BotStore persists bots and their actions.
type BotStore interface {
	CreateBot(ctx context.Context, b *BotData) error
	GetBot(ctx context.Context, id uuid.UUID) (*BotData, error)
	ListBots(ctx context.Context, threadID uuid.UUID) ([]*BotData, error)
	// ListEnabledWithActions returns enabled bots of the thread with their
	// enabled actions, both ordered by creation.
	ListEnabledWithActions(ctx context.Context, threadID uuid.UUID) ([]BotWithActions, error)

	CreateAction(ctx context.Context, a *BotActionData) error
	GetAction(ctx context.Context, id uuid.UUID) (*BotActionData, error)
	ListActions(ctx context.Context, botID uuid.UUID) ([]*BotActionData, error)
	UpdateAction(ctx context.Context, a *BotActionData) error
	DeleteAction(ctx context.Context, id uuid.UUID) error
}

// TxRunner runs fn with stores bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx *Stores) error) error
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Threads      ThreadStore
	Participants ParticipantStore
	Messages     MessageStore
	Reactions    ReactionStore
	Bots         BotStore
	Tx           TxRunner
}

// StoreConfig selects and configures a backend.
type StoreConfig struct {
	Mode        string // "memory", "sqlite" or "postgres"
	PostgresDSN string
	SQLitePath  string
}
