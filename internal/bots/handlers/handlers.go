// Package handlers holds the built-in bot action handlers.
package handlers

import (
	"context"
	"math/rand/v2"

	"github.com/nextlevelbuilder/messenger/internal/bots"
	"github.com/nextlevelbuilder/messenger/internal/messenger"
	"github.com/nextlevelbuilder/messenger/internal/store"
)

// Handler keys.
const (
	ReplyKey  = "reply"
	ReactKey  = "react"
	KnockKey  = "knock"
	RollKey   = "roll"
	RandomKey = "random"
)

var intN = rand.IntN

// Register adds every built-in handler to reg.
func Register(reg *bots.Registry, m *messenger.Messenger) error {
	entries := []struct {
		key      string
		settings bots.Settings
		factory  bots.Factory
	}{
		{ReplyKey, bots.Settings{
			Name:        "Reply",
			Description: "Reply with the given response(s).",
		}, func() bots.Handler { return &Reply{m: m} }},
		{ReactKey, bots.Settings{
			Name:        "React",
			Description: "Adds the specified reaction to the message.",
		}, func() bots.Handler { return &React{m: m} }},
		{KnockKey, bots.Settings{
			Name:        "Knock",
			Description: "Knocks at the whole thread.",
			Triggers:    []string{"!knock"},
			Match:       store.MatchExact,
			Unique:      true,
		}, func() bots.Handler { return &Knock{m: m} }},
		{RollKey, bots.Settings{
			Name:        "Dice Roller",
			Description: "Rolls dice, e.g. !roll 2d6.",
			Match:       store.MatchStartsWith,
		}, func() bots.Handler { return &Roll{m: m} }},
		{RandomKey, bots.Settings{
			Name:        "Coin Toss",
			Description: "Flips a coin.",
			Queued:      true,
		}, func() bots.Handler { return &Random{m: m} }},
	}
	for _, e := range entries {
		if err := reg.Register(e.key, e.settings, e.factory); err != nil {
			return err
		}
	}
	return nil
}

// say posts body to the handler's thread as its bot.
func say(ctx context.Context, m *messenger.Messenger, h *bots.BaseHandler, body string, opts ...messenger.MessageOption) error {
	_, err := m.Compose().To(h.Thread()).FromBot(h.Bot()).Message(ctx, body, opts...)
	return err
}
