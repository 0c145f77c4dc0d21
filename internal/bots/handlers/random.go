package handlers

import (
	"context"

	"github.com/nextlevelbuilder/messenger/internal/bots"
	"github.com/nextlevelbuilder/messenger/internal/messenger"
)

// Random flips a coin. It runs on the bot queue.
type Random struct {
	bots.BaseHandler
	m *messenger.Messenger
}

func (h *Random) Handle(ctx context.Context) error {
	side := "Heads"
	if intN(2) == 1 {
		side = "Tails"
	}
	return say(ctx, h.m, &h.BaseHandler, "The coin landed on "+side+".")
}
