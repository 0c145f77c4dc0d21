package handlers

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/messenger/internal/bots"
	"github.com/nextlevelbuilder/messenger/internal/messenger"
)

// Reply posts one or more configured replies, optionally quoting the
// triggering message with the first one.
type Reply struct {
	bots.BaseHandler
	m *messenger.Messenger
}

type replyPayload struct {
	Replies       []string `json:"replies"`
	QuoteOriginal bool     `json:"quote_original"`
}

func (h *Reply) Rules() bots.Rules {
	return bots.Rules{
		"replies":        "required|array|min:1|max:5",
		"replies.*":      "required|string|max:255",
		"quote_original": "nullable|boolean",
	}
}

func (h *Reply) ErrorMessages() map[string]string {
	return map[string]string{
		"replies.*.required": "Reply is required.",
		"replies.*.string":   "A reply must be a string.",
		"replies.*.max":      "The reply may not be greater than 255 characters.",
	}
}

func (h *Reply) Handle(ctx context.Context) error {
	var p replyPayload
	if err := h.DecodePayload(&p); err != nil {
		return err
	}
	for i, body := range p.Replies {
		var opts []messenger.MessageOption
		if i == 0 && p.QuoteOriginal {
			opts = append(opts, messenger.ReplyTo(h.Message().ID))
		}
		if err := say(ctx, h.m, &h.BaseHandler, body, opts...); err != nil {
			return fmt.Errorf("reply %d: %w", i, err)
		}
	}
	return nil
}
