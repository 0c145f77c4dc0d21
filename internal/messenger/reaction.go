package messenger

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nextlevelbuilder/messenger/internal/broadcast"
	"github.com/nextlevelbuilder/messenger/internal/bus"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

const maxReactionLength = 64

// ReactionInput describes a reaction to add.
type ReactionInput struct {
	Actor    store.Provider
	Thread   *store.ThreadData
	Message  *store.MessageData
	Reaction string
	Silent   bool
}

func (m *Messenger) checkReactionsEnabled() error {
	if !m.features().MessageReactions {
		return &FeatureDisabledError{Feature: "reactions", Msg: "Message reactions are currently disabled."}
	}
	return nil
}

// AddReaction stores a reaction on a message in the thread and flags the
// message as reacted.
func (m *Messenger) AddReaction(ctx context.Context, in ReactionInput) (*Result[*store.ReactionData], error) {
	if err := m.checkReactionsEnabled(); err != nil {
		return nil, err
	}
	if in.Message == nil || in.Message.ThreadID != in.Thread.ID {
		return nil, &ReactionError{Msg: "Message does not belong to this thread."}
	}
	if in.Message.IsSystem() {
		return nil, &ReactionError{Msg: "Cannot react to system messages."}
	}

	reaction := strings.TrimSpace(in.Reaction)
	if reaction == "" {
		return nil, NewValidationError("reaction", "The reaction field is required.")
	}
	if utf8.RuneCountInString(reaction) > maxReactionLength || strings.IndexFunc(reaction, unicode.IsSpace) >= 0 {
		return nil, NewValidationError("reaction", "The reaction must be a single emoji or shortcode.")
	}

	existing, err := m.stores.Reactions.List(ctx, in.Message.ID)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	distinct := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		if r.Reaction == reaction && r.Owner.Is(in.Actor) {
			return nil, &ReactionError{Msg: "You have already used that reaction."}
		}
		distinct[r.Reaction] = struct{}{}
	}
	if _, ok := distinct[reaction]; !ok {
		if max := m.cfg.Limits.MaxReactionsPerMessage; max > 0 && len(distinct) >= max {
			return nil, &ReactionError{Msg: fmt.Sprintf("We appreciate the enthusiasm, but there are already %d reactions on this message.", max)}
		}
	}

	r := &store.ReactionData{
		ID:        store.GenNewID(),
		MessageID: in.Message.ID,
		Owner:     in.Actor,
		Reaction:  reaction,
		CreatedAt: m.now(),
	}
	err = m.stores.Tx.InTx(ctx, func(tx *store.Stores) error {
		if err := tx.Reactions.Create(ctx, r); err != nil {
			return fmt.Errorf("create reaction: %w", err)
		}
		if !in.Message.Reacted {
			if err := tx.Messages.SetReacted(ctx, in.Message.ID, true); err != nil {
				return fmt.Errorf("flag message reacted: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	in.Message.Reacted = true

	resource := ReactionResource{
		ID:        r.ID,
		MessageID: r.MessageID,
		ThreadID:  in.Thread.ID,
		Reaction:  r.Reaction,
		Owner:     m.ownerResource(ctx, r.Owner),
		CreatedAt: r.CreatedAt,
	}
	if !in.Silent {
		m.send(ctx, func(b *broadcast.Broadcaster) *broadcast.Broadcast {
			return b.ToPresence(in.Thread).With(resource)
		}, protocol.EventReactionAdded)
		if !in.Message.Owner.Is(in.Actor) && !in.Message.Owner.IsBot() {
			m.send(ctx, func(b *broadcast.Broadcaster) *broadcast.Broadcast {
				return b.ToProviders(in.Message.Owner).With(resource)
			}, protocol.EventReactionAdded)
		}
	}
	m.publish(protocol.BusReactionAdded, bus.ReactionAddedPayload{Thread: in.Thread, Message: in.Message, Reaction: r})

	return &Result[*store.ReactionData]{Entity: r, resource: resource}, nil
}
