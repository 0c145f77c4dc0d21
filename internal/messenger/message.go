package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/broadcast"
	"github.com/nextlevelbuilder/messenger/internal/bus"
	"github.com/nextlevelbuilder/messenger/internal/metrics"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/internal/tracing"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

// MessageInput describes a text message to store.
type MessageInput struct {
	Actor       store.Provider
	Thread      *store.ThreadData
	Body        string
	ReplyToID   *uuid.UUID
	Extra       map[string]any
	TemporaryID string
	SenderIP    string
	Silent      bool
}

// StoreMessage validates and persists a text message, then broadcasts it
// to the thread and publishes message.new.
func (m *Messenger) StoreMessage(ctx context.Context, in MessageInput) (*Result[*store.MessageData], error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, NewValidationError("message", "The message field is required.")
	}
	if max := m.cfg.Limits.MessageSize; max > 0 && utf8.RuneCountInString(body) > max {
		return nil, NewValidationError("message", fmt.Sprintf("The message must not be greater than %d characters.", max))
	}

	msg, err := m.newMessage(ctx, in.Actor, in.Thread, store.MessageText, body, in.ReplyToID, in.Extra)
	if err != nil {
		return nil, err
	}
	msg.Embeds = true
	msg.TemporaryID = in.TemporaryID

	return m.persist(ctx, in.Thread, msg, in.SenderIP, in.Silent)
}

func (m *Messenger) newMessage(ctx context.Context, actor store.Provider, thread *store.ThreadData, typ int, body string, replyTo *uuid.UUID, extra map[string]any) (*store.MessageData, error) {
	now := m.now()
	msg := &store.MessageData{
		ID:        store.GenNewID(),
		ThreadID:  thread.ID,
		Owner:     actor,
		Type:      typ,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if replyTo != nil {
		id, err := m.replyTarget(ctx, thread.ID, *replyTo)
		if err != nil {
			return nil, err
		}
		msg.ReplyToID = id
	}
	if len(extra) > 0 {
		raw, err := json.Marshal(extra)
		if err != nil {
			return nil, NewValidationError("extra", "The extra field must be a valid JSON object.")
		}
		msg.Extra = raw
	}
	return msg, nil
}

// replyTarget keeps a reply reference only when it points at a non-system
// message in the same thread.
func (m *Messenger) replyTarget(ctx context.Context, threadID, id uuid.UUID) (*uuid.UUID, error) {
	target, err := m.stores.Messages.GetInThread(ctx, threadID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load reply target: %w", err)
	}
	if target.IsSystem() {
		return nil, nil
	}
	return &target.ID, nil
}

// persist stores msg, touches the thread and marks the sender as having
// read it, all in one transaction.
func (m *Messenger) persist(ctx context.Context, thread *store.ThreadData, msg *store.MessageData, senderIP string, silent bool) (*Result[*store.MessageData], error) {
	ctx, span := tracing.Tracer().Start(ctx, "messenger.message.store")
	defer span.End()

	err := m.stores.Tx.InTx(ctx, func(tx *store.Stores) error {
		if err := tx.Messages.Create(ctx, msg); err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		if err := tx.Threads.Touch(ctx, thread.ID, msg.CreatedAt); err != nil {
			return fmt.Errorf("touch thread: %w", err)
		}
		p, err := tx.Participants.Get(ctx, thread.ID, msg.Owner)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load sender participant: %w", err)
		}
		if err := tx.Participants.MarkRead(ctx, p.ID, msg.CreatedAt); err != nil {
			return fmt.Errorf("mark sender read: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	thread.UpdatedAt = msg.CreatedAt

	metrics.MessagesStored.WithLabelValues(msg.TypeVerbose()).Inc()
	resource := m.MessageResource(ctx, msg)
	if !silent {
		m.send(ctx, func(b *broadcast.Broadcaster) *broadcast.Broadcast {
			return b.ToAll(thread).With(resource)
		}, protocol.EventNewMessage)
	}
	m.publish(protocol.BusMessageStored, bus.MessageStoredPayload{Thread: thread, Message: msg, SenderIP: senderIP})

	return &Result[*store.MessageData]{Entity: msg, resource: resource}, nil
}
