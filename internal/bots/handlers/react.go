package handlers

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/messenger/internal/bots"
	"github.com/nextlevelbuilder/messenger/internal/messenger"
)

// React adds the configured reaction to the triggering message.
type React struct {
	bots.BaseHandler
	m *messenger.Messenger
}

func (h *React) Rules() bots.Rules {
	return bots.Rules{"reaction": "required|string|max:64"}
}

func (h *React) ErrorMessages() map[string]string {
	return map[string]string{"reaction.required": "A reaction is required."}
}

func (h *React) Handle(ctx context.Context) error {
	reaction, _ := h.Payload("reaction").(string)
	if reaction == "" {
		return fmt.Errorf("react: payload has no reaction")
	}
	_, err := h.m.Compose().To(h.Thread()).FromBot(h.Bot()).Reaction(ctx, h.Message(), reaction)
	return err
}
