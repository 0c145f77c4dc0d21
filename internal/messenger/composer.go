package messenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/bus"
	"github.com/nextlevelbuilder/messenger/internal/metrics"
	"github.com/nextlevelbuilder/messenger/internal/storage"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/internal/tracing"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

// Composer builds one compose intent: a target (thread or provider), an
// acting provider and an optional silent flag, then a single terminal
// operation. State is flushed after every terminal operation, so a
// Composer can be reused but never carries a target or actor over.
// A Composer is not safe for concurrent use.
type Composer struct {
	m      *Messenger
	to     any // *store.ThreadData or store.Provider
	from   store.Provider
	silent bool
	err    error
}

// To sets the destination: a *store.ThreadData or a messaging-capable
// store.Provider. Anything else is reported by the next terminal call.
func (c *Composer) To(entity any) *Composer {
	switch v := entity.(type) {
	case *store.ThreadData:
		if v == nil {
			c.err = &ComposerError{Msg: msgInvalidTo}
			return c
		}
		c.to = v
	case store.Provider:
		if !c.m.IsMessagingProvider(v) {
			c.err = &ComposerError{Msg: msgInvalidTo}
			return c
		}
		c.to = v
	case *store.Provider:
		if v == nil {
			c.err = &ComposerError{Msg: msgInvalidTo}
			return c
		}
		return c.To(*v)
	default:
		c.err = &ComposerError{Msg: msgInvalidTo}
	}
	return c
}

// From sets the acting provider.
func (c *Composer) From(p store.Provider) *Composer {
	c.from = p
	return c
}

// FromBot acts as bot.
func (c *Composer) FromBot(bot *store.BotData) *Composer {
	return c.From(bot.AsProvider())
}

// Silent suppresses realtime broadcasts for the next persisted operation.
func (c *Composer) Silent() *Composer {
	c.silent = true
	return c
}

func (c *Composer) flush() {
	c.to = nil
	c.from = store.Provider{}
	c.silent = false
	c.err = nil
}

// flushTarget clears target and actor but keeps the silent flag.
func (c *Composer) flushTarget() {
	c.to = nil
	c.from = store.Provider{}
	c.err = nil
}

// resolveThread returns the target thread, creating the private thread
// between the actor and a provider target when none exists yet. The result
// replaces the target for the rest of the current call.
func (c *Composer) resolveThread(ctx context.Context) (*store.ThreadData, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.to == nil {
		return nil, &ComposerError{Msg: msgNoTo}
	}
	if c.from.IsZero() {
		return nil, &ComposerError{Msg: msgNoFrom}
	}

	switch to := c.to.(type) {
	case *store.ThreadData:
		return to, nil
	case store.Provider:
		thread, err := c.m.privateThread(ctx, c.from, to)
		if err != nil {
			return nil, err
		}
		c.to = thread
		return thread, nil
	}
	return nil, &ComposerError{Msg: msgInvalidTo}
}

// privateThread finds or creates the private thread between actor and target.
func (m *Messenger) privateThread(ctx context.Context, actor, target store.Provider) (*store.ThreadData, error) {
	thread, err := m.stores.Threads.FindPrivate(ctx, actor, target)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find private thread: %w", err)
	}
	if actor.Is(target) {
		return nil, &ComposerError{Msg: msgPrivateFailed, Err: errors.New("cannot start a private thread with yourself")}
	}

	ctx, span := tracing.Tracer().Start(ctx, "messenger.private_thread.create")
	defer span.End()

	now := m.now()
	thread = store.NewPrivateThread(actor, target, now)
	err = m.stores.Tx.InTx(ctx, func(tx *store.Stores) error {
		if err := tx.Threads.Create(ctx, thread); err != nil {
			return fmt.Errorf("create thread: %w", err)
		}
		if err := tx.Participants.Create(ctx, store.NewParticipant(thread.ID, actor, now)); err != nil {
			return fmt.Errorf("add participant %s: %w", actor, err)
		}
		if err := tx.Participants.Create(ctx, store.NewParticipant(thread.ID, target, now)); err != nil {
			return fmt.Errorf("add participant %s: %w", target, err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, &ComposerError{Msg: msgPrivateFailed, Err: err}
	}

	metrics.PrivateThreadsCreated.Inc()
	slog.Info("messenger.private_thread.created", "thread", thread.ID, "creator", actor.Key(), "target", target.Key())
	m.publish(protocol.BusPrivateThreadCreated, bus.PrivateThreadPayload{Thread: thread, Creator: actor, Target: target})
	return thread, nil
}

// MessageOption customizes a message-creating terminal call.
type MessageOption func(*messageOptions)

type messageOptions struct {
	replyTo     *uuid.UUID
	extra       map[string]any
	temporaryID string
	senderIP    string
}

// ReplyTo references another message in the same thread.
func ReplyTo(id uuid.UUID) MessageOption {
	return func(o *messageOptions) { o.replyTo = &id }
}

// WithExtra attaches arbitrary JSON metadata.
func WithExtra(extra map[string]any) MessageOption {
	return func(o *messageOptions) { o.extra = extra }
}

// WithTemporaryID echoes a client-side id back in the resource.
func WithTemporaryID(id string) MessageOption {
	return func(o *messageOptions) { o.temporaryID = id }
}

// WithSenderIP records the client IP for bot handlers.
func WithSenderIP(ip string) MessageOption {
	return func(o *messageOptions) { o.senderIP = ip }
}

func buildOptions(opts []MessageOption) messageOptions {
	var o messageOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Message stores a text message.
func (c *Composer) Message(ctx context.Context, body string, opts ...MessageOption) (*Result[*store.MessageData], error) {
	defer c.flush()
	thread, err := c.resolveThread(ctx)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return c.m.StoreMessage(ctx, MessageInput{
		Actor:       c.from,
		Thread:      thread,
		Body:        body,
		ReplyToID:   o.replyTo,
		Extra:       o.extra,
		TemporaryID: o.temporaryID,
		SenderIP:    o.senderIP,
		Silent:      c.silent,
	})
}

// Image stores an image message.
func (c *Composer) Image(ctx context.Context, f storage.File, opts ...MessageOption) (*Result[*store.MessageData], error) {
	return c.attachment(ctx, store.MessageImage, f, opts)
}

// Document stores a document message.
func (c *Composer) Document(ctx context.Context, f storage.File, opts ...MessageOption) (*Result[*store.MessageData], error) {
	return c.attachment(ctx, store.MessageDocument, f, opts)
}

// Audio stores an audio message.
func (c *Composer) Audio(ctx context.Context, f storage.File, opts ...MessageOption) (*Result[*store.MessageData], error) {
	return c.attachment(ctx, store.MessageAudio, f, opts)
}

func (c *Composer) attachment(ctx context.Context, typ int, f storage.File, opts []MessageOption) (*Result[*store.MessageData], error) {
	defer c.flush()
	if _, err := c.m.checkAttachmentEnabled(typ); err != nil {
		return nil, err
	}
	thread, err := c.resolveThread(ctx)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return c.m.StoreAttachment(ctx, AttachmentInput{
		Type:        typ,
		Actor:       c.from,
		Thread:      thread,
		File:        f,
		ReplyToID:   o.replyTo,
		Extra:       o.extra,
		TemporaryID: o.temporaryID,
		SenderIP:    o.senderIP,
		Silent:      c.silent,
	})
}

// Reaction adds a reaction to message.
func (c *Composer) Reaction(ctx context.Context, message *store.MessageData, reaction string) (*Result[*store.ReactionData], error) {
	defer c.flush()
	if err := c.m.checkReactionsEnabled(); err != nil {
		return nil, err
	}
	thread, err := c.resolveThread(ctx)
	if err != nil {
		return nil, err
	}
	return c.m.AddReaction(ctx, ReactionInput{
		Actor:    c.from,
		Thread:   thread,
		Message:  message,
		Reaction: reaction,
		Silent:   c.silent,
	})
}

// Knock knocks on the thread.
func (c *Composer) Knock(ctx context.Context) (*Result[*store.ThreadData], error) {
	defer c.flush()
	if err := c.m.checkKnocksEnabled(); err != nil {
		return nil, err
	}
	thread, err := c.resolveThread(ctx)
	if err != nil {
		return nil, err
	}
	return c.m.SendKnock(ctx, KnockInput{Actor: c.from, Thread: thread})
}

// Read marks participant as having read the thread. A nil participant
// means the acting provider's own participant.
func (c *Composer) Read(ctx context.Context, participant *store.ParticipantData) (*Result[*store.ParticipantData], error) {
	defer c.flush()
	thread, err := c.resolveThread(ctx)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		participant, err = c.m.stores.Participants.Get(ctx, thread.ID, c.from)
		if err != nil {
			return nil, fmt.Errorf("load participant: %w", err)
		}
	}
	return c.m.MarkParticipantRead(ctx, ReadInput{Thread: thread, Participant: participant, Silent: c.silent})
}

// EmitTyping emits a typing presence event.
func (c *Composer) EmitTyping(ctx context.Context) error {
	return c.presence(ctx, presenceTyping, nil)
}

// EmitStopTyping emits a stopped-typing presence event.
func (c *Composer) EmitStopTyping(ctx context.Context) error {
	return c.presence(ctx, presenceStopTyping, nil)
}

// EmitRead emits a read presence event, optionally naming the last message seen.
func (c *Composer) EmitRead(ctx context.Context, message *store.MessageData) error {
	return c.presence(ctx, presenceRead, message)
}

func (c *Composer) presence(ctx context.Context, kind presenceKind, message *store.MessageData) error {
	defer c.flushTarget()
	thread, err := c.resolveThread(ctx)
	if err != nil {
		return err
	}
	c.m.emitPresence(ctx, kind, thread, c.from, message)
	return nil
}
