package bots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/bus"
	"github.com/nextlevelbuilder/messenger/internal/config"
	"github.com/nextlevelbuilder/messenger/internal/messenger"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

// Action limits.
const (
	MaxCooldown      = 900
	MaxTriggerLength = 255
	MaxTriggers      = 25
)

// ActionInput is the admin-supplied part of a bot action.
type ActionInput struct {
	Handler       string         `json:"handler"`
	Triggers      []string       `json:"triggers,omitempty"`
	Match         string         `json:"match,omitempty"`
	CaseSensitive bool           `json:"case_sensitive"`
	Cooldown      int            `json:"cooldown"`
	Enabled       bool           `json:"enabled"`
	AdminOnly     bool           `json:"admin_only"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Admin manages the bot actions attached to a bot.
type Admin struct {
	cfg      *config.Config
	stores   *store.Stores
	registry *Registry
	gate     *Gate
	bus      bus.EventPublisher
	now      func() time.Time
}

// NewAdmin creates an Admin. gate may be nil; it is only used to report
// cooldown state in listings.
func NewAdmin(cfg *config.Config, stores *store.Stores, registry *Registry, gate *Gate, eb bus.EventPublisher) *Admin {
	if eb == nil {
		eb = bus.Nop{}
	}
	return &Admin{cfg: cfg, stores: stores, registry: registry, gate: gate, bus: eb, now: time.Now}
}

func (a *Admin) checkEnabled() error {
	if !a.cfg.CurrentFeatures().Bots {
		return &messenger.FeatureDisabledError{Feature: "bots", Msg: "Bots are currently disabled."}
	}
	return nil
}

// Catalog lists the handlers actor may attach.
func (a *Admin) Catalog(ctx context.Context, actor store.Provider) ([]Settings, error) {
	if err := a.checkEnabled(); err != nil {
		return nil, err
	}
	return a.registry.Catalog(ctx, actor), nil
}

// ActionView is a bot action with its handler settings and cooldown state.
type ActionView struct {
	*store.BotActionData
	HandlerSettings Settings `json:"handler_settings"`
	OnCooldown      bool     `json:"on_cooldown"`
}

// ListActions returns the bot's actions.
func (a *Admin) ListActions(ctx context.Context, bot *store.BotData) ([]ActionView, error) {
	actions, err := a.stores.Bots.ListActions(ctx, bot.ID)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	out := make([]ActionView, 0, len(actions))
	for _, act := range actions {
		out = append(out, a.view(bot, act))
	}
	return out, nil
}

// ShowAction returns a single action of bot.
func (a *Admin) ShowAction(ctx context.Context, bot *store.BotData, id uuid.UUID) (ActionView, error) {
	act, err := a.action(ctx, bot, id)
	if err != nil {
		return ActionView{}, err
	}
	return a.view(bot, act), nil
}

func (a *Admin) view(bot *store.BotData, act *store.BotActionData) ActionView {
	s, _ := a.registry.Settings(act.Handler)
	v := ActionView{BotActionData: act, HandlerSettings: s}
	if a.gate != nil {
		v.OnCooldown = a.gate.Active(bot, act)
	}
	return v
}

func (a *Admin) action(ctx context.Context, bot *store.BotData, id uuid.UUID) (*store.BotActionData, error) {
	act, err := a.stores.Bots.GetAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if act.BotID != bot.ID {
		return nil, store.ErrNotFound
	}
	return act, nil
}

// StoreAction validates in and attaches a new action to bot on behalf of actor.
func (a *Admin) StoreAction(ctx context.Context, actor store.Provider, bot *store.BotData, in ActionInput) (*store.BotActionData, error) {
	if err := a.checkEnabled(); err != nil {
		return nil, err
	}
	act, err := a.ResolveHandlerData(ctx, actor, bot, in)
	if err != nil {
		return nil, err
	}
	now := a.now()
	act.CreatedAt, act.UpdatedAt = now, now
	if err := a.stores.Bots.CreateAction(ctx, act); err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}

	slog.Info("bots.action.stored", "bot", bot.ID, "action", act.ID, "handler", act.Handler)
	a.bus.Broadcast(bus.Event{Name: protocol.BusBotActionStored, Payload: a.eventPayload(bot, act)})
	return act, nil
}

// ResolveHandlerData validates in for bot and returns the unsaved action
// it describes.
func (a *Admin) ResolveHandlerData(ctx context.Context, actor store.Provider, bot *store.BotData, in ActionInput) (*store.BotActionData, error) {
	act := &store.BotActionData{
		ID:    store.GenNewID(),
		BotID: bot.ID,
		Owner: actor,
	}
	if err := a.apply(ctx, actor, bot, act, in); err != nil {
		return nil, err
	}
	return act, nil
}

// UpdateAction replaces the editable fields of an existing action. The
// handler itself cannot change.
func (a *Admin) UpdateAction(ctx context.Context, actor store.Provider, bot *store.BotData, id uuid.UUID, in ActionInput) (*store.BotActionData, error) {
	if err := a.checkEnabled(); err != nil {
		return nil, err
	}
	act, err := a.action(ctx, bot, id)
	if err != nil {
		return nil, err
	}
	in.Handler = act.Handler
	updated := *act
	if err := a.apply(ctx, actor, bot, &updated, in); err != nil {
		return nil, err
	}
	updated.UpdatedAt = a.now()
	if err := a.stores.Bots.UpdateAction(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update action: %w", err)
	}

	slog.Info("bots.action.updated", "bot", bot.ID, "action", updated.ID)
	a.bus.Broadcast(bus.Event{Name: protocol.BusBotActionUpdated, Payload: a.eventPayload(bot, &updated)})
	return &updated, nil
}

// RemoveAction deletes an action from bot.
func (a *Admin) RemoveAction(ctx context.Context, bot *store.BotData, id uuid.UUID) (*messenger.Response, error) {
	if err := a.checkEnabled(); err != nil {
		return nil, err
	}
	act, err := a.action(ctx, bot, id)
	if err != nil {
		return nil, err
	}
	if err := a.stores.Bots.DeleteAction(ctx, act.ID); err != nil {
		return nil, fmt.Errorf("delete action: %w", err)
	}

	slog.Info("bots.action.removed", "bot", bot.ID, "action", act.ID)
	a.bus.Broadcast(bus.Event{Name: protocol.BusBotActionRemoved, Payload: a.eventPayload(bot, act)})
	return messenger.Success("removed"), nil
}

// apply validates in against the handler settings and copies it into act.
func (a *Admin) apply(ctx context.Context, actor store.Provider, bot *store.BotData, act *store.BotActionData, in ActionInput) error {
	h, s, err := a.registry.New(in.Handler)
	if errors.Is(err, ErrUnknownHandler) {
		return messenger.NewValidationError("handler", "The selected handler is invalid.")
	}
	if err != nil {
		return err
	}
	if s.Authorize {
		if az, ok := h.(Authorizer); ok && !az.Authorize(ctx, actor) {
			return ErrNotAuthorized
		}
	}
	if s.Unique {
		if err := a.checkUnique(ctx, bot, act, s); err != nil {
			return err
		}
	}

	verr := &messenger.ValidationError{}

	triggers := s.Triggers
	if triggers == nil && !s.Triggerless {
		triggers = NormalizeTriggers(in.Triggers)
		switch {
		case len(triggers) == 0:
			verr.Add("triggers", "The triggers field is required.")
		case len(triggers) > MaxTriggers:
			verr.Add("triggers", fmt.Sprintf("The triggers must not have more than %d items.", MaxTriggers))
		}
		for _, t := range triggers {
			if len([]rune(t)) > MaxTriggerLength {
				verr.Add("triggers", fmt.Sprintf("Each trigger must not be greater than %d characters.", MaxTriggerLength))
				break
			}
		}
	}

	match := s.Match
	if match == "" {
		match = in.Match
		if match == "" {
			match = store.MatchExact
		}
		if !store.ValidMatchMode(match) {
			verr.Add("match", "The selected match is invalid.")
		}
	}

	if in.Cooldown < 0 || in.Cooldown > MaxCooldown {
		verr.Add("cooldown", fmt.Sprintf("The cooldown must be between 0 and %d.", MaxCooldown))
	}

	var payload *string
	if pv, ok := h.(PayloadValidator); ok {
		if perr := pv.Rules().Validate(in.Payload, pv.ErrorMessages()); perr != nil {
			for f, msgs := range perr.Fields {
				for _, m := range msgs {
					verr.Add(f, m)
				}
			}
		}
		if verr.Empty() {
			payload, err = SerializePayload(h, in.Payload)
			if err != nil {
				return err
			}
			if max := a.cfg.Limits.BotPayloadSize; payload != nil && max > 0 && len(*payload) > max {
				verr.Add("payload", fmt.Sprintf("The payload must not be greater than %d bytes.", max))
			}
		}
	}

	if !verr.Empty() {
		return verr
	}

	act.Handler = in.Handler
	act.Triggers = triggers
	act.MatchMode = match
	act.CaseSensitive = in.CaseSensitive
	act.Cooldown = in.Cooldown
	act.Enabled = in.Enabled
	act.AdminOnly = in.AdminOnly
	act.Payload = payload
	return nil
}

func (a *Admin) checkUnique(ctx context.Context, bot *store.BotData, act *store.BotActionData, s Settings) error {
	existing, err := a.stores.Bots.ListActions(ctx, bot.ID)
	if err != nil {
		return fmt.Errorf("list actions: %w", err)
	}
	for _, e := range existing {
		if e.Handler == s.Alias && e.ID != act.ID {
			return &BotError{Msg: fmt.Sprintf("You may only have one (%s) attached to %s at a time.", s.Name, bot.Name)}
		}
	}
	return nil
}

func (a *Admin) eventPayload(bot *store.BotData, act *store.BotActionData) bus.BotActionPayload {
	return bus.BotActionPayload{ThreadID: bot.ThreadID, BotID: bot.ID, ActionID: act.ID, Handler: act.Handler}
}

// NormalizeTriggers trims triggers, splits "|" separated entries, and drops
// empty and duplicate entries while preserving order.
func NormalizeTriggers(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, raw := range in {
		for _, t := range strings.Split(raw, "|") {
			t = strings.TrimSpace(t)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
