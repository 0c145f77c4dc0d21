package handlers

import (
	"context"

	"github.com/nextlevelbuilder/messenger/internal/bots"
	"github.com/nextlevelbuilder/messenger/internal/messenger"
)

// Knock knocks at the thread on behalf of the bot.
type Knock struct {
	bots.BaseHandler
	m *messenger.Messenger
}

func (h *Knock) Handle(ctx context.Context) error {
	_, err := h.m.Compose().To(h.Thread()).FromBot(h.Bot()).Knock(ctx)
	return err
}
