package bots

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nextlevelbuilder/messenger/internal/store"
)

// Invocation is everything a handler is bound to before Handle runs.
type Invocation struct {
	Action   *store.BotActionData
	Bot      *store.BotData
	Thread   *store.ThreadData
	Message  *store.MessageData
	Trigger  string
	SenderIP string
}

func (inv Invocation) validate() error {
	switch {
	case inv.Action == nil:
		return fmt.Errorf("%w: missing action", ErrNotBound)
	case inv.Bot == nil:
		return fmt.Errorf("%w: missing bot", ErrNotBound)
	case inv.Thread == nil:
		return fmt.Errorf("%w: missing thread", ErrNotBound)
	case inv.Message == nil:
		return fmt.Errorf("%w: missing message", ErrNotBound)
	}
	return nil
}

// Handler is a bot action implementation. One instance serves exactly one
// invocation.
type Handler interface {
	Bind(inv Invocation)
	Handle(ctx context.Context) error
	ShouldReleaseCooldown() bool
}

// Authorizer is implemented by handlers that restrict who may install them.
// It is only consulted when managing actions, never at trigger time.
type Authorizer interface {
	Authorize(ctx context.Context, actor store.Provider) bool
}

// PayloadValidator is implemented by handlers that accept a payload.
type PayloadValidator interface {
	Rules() Rules
	ErrorMessages() map[string]string
}

// PayloadSerializer overrides the default JSON payload encoding.
type PayloadSerializer interface {
	SerializePayload(payload map[string]any) (*string, error)
}

// Settings describe a registered handler.
type Settings struct {
	Alias       string   `json:"alias"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Triggers    []string `json:"triggers,omitempty"` // fixed triggers; nil lets admins choose
	Match       string   `json:"match,omitempty"`    // fixed match mode; "" lets admins choose
	Triggerless bool     `json:"triggerless"`
	Unique      bool     `json:"unique"`
	Authorize   bool     `json:"authorize"`
	Queued      bool     `json:"queued"`
}

// BaseHandler carries the binding and cooldown flag. Embed it in handlers.
type BaseHandler struct {
	inv     Invocation
	release bool
	payload map[string]any
	decoded bool
}

func (h *BaseHandler) Bind(inv Invocation) {
	h.inv = inv
	h.release = false
	h.payload = nil
	h.decoded = false
}

func (h *BaseHandler) Action() *store.BotActionData { return h.inv.Action }
func (h *BaseHandler) Bot() *store.BotData          { return h.inv.Bot }
func (h *BaseHandler) Thread() *store.ThreadData    { return h.inv.Thread }
func (h *BaseHandler) Message() *store.MessageData  { return h.inv.Message }
func (h *BaseHandler) MatchingTrigger() string      { return h.inv.Trigger }
func (h *BaseHandler) SenderIP() string             { return h.inv.SenderIP }

// Actor is the bot the handler acts as.
func (h *BaseHandler) Actor() store.Provider { return h.inv.Bot.AsProvider() }

// Payload returns the decoded payload value for key, or the whole payload
// when key is empty. Undecodable payloads read as nil.
func (h *BaseHandler) Payload(key string) any {
	if !h.decoded {
		h.decoded = true
		if h.inv.Action != nil {
			h.payload, _ = h.inv.Action.DecodedPayload()
		}
	}
	if key == "" {
		if h.payload == nil {
			return nil
		}
		return h.payload
	}
	return h.payload[key]
}

// DecodePayload unmarshals the raw payload into v. A missing payload
// leaves v untouched.
func (h *BaseHandler) DecodePayload(v any) error {
	if h.inv.Action == nil || h.inv.Action.Payload == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(*h.inv.Action.Payload), v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// ReleaseCooldown makes the action eligible again as soon as Handle returns.
func (h *BaseHandler) ReleaseCooldown() { h.release = true }

func (h *BaseHandler) ShouldReleaseCooldown() bool { return h.release }
