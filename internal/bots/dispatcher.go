package bots

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/messenger/internal/bus"
	"github.com/nextlevelbuilder/messenger/internal/config"
	"github.com/nextlevelbuilder/messenger/internal/metrics"
	"github.com/nextlevelbuilder/messenger/internal/store"
	"github.com/nextlevelbuilder/messenger/internal/tracing"
	"github.com/nextlevelbuilder/messenger/pkg/protocol"
)

// Queue accepts jobs for handlers that run off the request path.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// Outcome reports what happened to one bot for one message.
type Outcome struct {
	BotID    string
	ActionID string
	Handler  string
	Trigger  string
	Status   string // one of the metrics.Outcome* values
	Err      error
}

// DispatcherOptions wires a Dispatcher.
type DispatcherOptions struct {
	Config   *config.Config
	Stores   *store.Stores
	Registry *Registry
	Gate     *Gate
	Bus      bus.EventPublisher
	Queue    Queue
}

// Dispatcher runs the matching bot action, if any, of every enabled bot in
// a thread for a freshly stored message. Bots are independent: a
// suppressed or failing bot never affects the others, and nothing here
// rolls back the message.
type Dispatcher struct {
	cfg      *config.Config
	stores   *store.Stores
	registry *Registry
	gate     *Gate
	bus      bus.EventPublisher

	mu    sync.RWMutex
	queue Queue
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		cfg:      opts.Config,
		stores:   opts.Stores,
		registry: opts.Registry,
		gate:     opts.Gate,
		bus:      opts.Bus,
		queue:    opts.Queue,
	}
	if d.cfg == nil {
		d.cfg = config.Default()
	}
	if d.bus == nil {
		d.bus = bus.Nop{}
	}
	return d
}

// SetQueue swaps the queue used for queued handlers. Nil runs them inline.
func (d *Dispatcher) SetQueue(q Queue) {
	d.mu.Lock()
	d.queue = q
	d.mu.Unlock()
}

func (d *Dispatcher) currentQueue() Queue {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.queue
}

// Subscribe dispatches every message.new event published on b.
func (d *Dispatcher) Subscribe(b bus.EventPublisher) {
	b.Subscribe("bots.dispatcher", func(e bus.Event) {
		if e.Name != protocol.BusMessageStored {
			return
		}
		p, ok := e.Payload.(bus.MessageStoredPayload)
		if !ok || p.Thread == nil || p.Message == nil {
			return
		}
		d.Dispatch(context.Background(), p.Thread, p.Message, p.SenderIP)
	})
}

// Dispatch runs bot actions for msg. It returns one Outcome per bot with a
// matching action.
func (d *Dispatcher) Dispatch(ctx context.Context, thread *store.ThreadData, msg *store.MessageData, senderIP string) []Outcome {
	if !d.shouldDispatch(thread, msg) {
		return nil
	}

	bots, err := d.stores.Bots.ListEnabledWithActions(ctx, thread.ID)
	if err != nil {
		slog.Error("bots.dispatch.list_failed", "thread", thread.ID, "message", msg.ID, "error", err)
		return nil
	}

	var outcomes []Outcome
	for _, bw := range bots {
		out, ok := d.dispatchBot(ctx, thread, msg, senderIP, bw)
		if ok {
			outcomes = append(outcomes, out)
		}
	}
	return outcomes
}

func (d *Dispatcher) shouldDispatch(thread *store.ThreadData, msg *store.MessageData) bool {
	switch {
	case !d.cfg.CurrentFeatures().Bots:
		return false
	case msg.IsSystem():
		return false
	case !thread.ChatBots:
		return false
	case msg.IsFromBot():
		return false
	}
	return true
}

func (d *Dispatcher) dispatchBot(ctx context.Context, thread *store.ThreadData, msg *store.MessageData, senderIP string, bw store.BotWithActions) (Outcome, bool) {
	actions := make([]*store.BotActionData, 0, len(bw.Actions))
	cands := make([]Candidate, 0, len(bw.Actions))
	for _, a := range bw.Actions {
		if !a.Enabled {
			continue
		}
		s, ok := d.registry.Settings(a.Handler)
		if !ok {
			slog.Warn("bots.dispatch.unknown_handler", "bot", bw.Bot.ID, "action", a.ID, "handler", a.Handler)
			continue
		}
		actions = append(actions, a)
		cands = append(cands, Candidate{
			Key:           a.Handler,
			Triggers:      a.Triggers,
			Mode:          a.MatchMode,
			CaseSensitive: a.CaseSensitive,
			Triggerless:   s.Triggerless,
		})
	}

	m, ok := Match(cands, msg.Body)
	if !ok {
		return Outcome{}, false
	}
	action := actions[m.Index]
	out := Outcome{BotID: bw.Bot.ID.String(), ActionID: action.ID.String(), Handler: action.Handler, Trigger: m.Trigger}

	lease, ok := d.gate.Acquire(bw.Bot, action)
	if !ok {
		out.Status = metrics.OutcomeSuppressed
		metrics.BotDispatch.WithLabelValues(action.Handler, out.Status).Inc()
		slog.Debug("bots.dispatch.cooldown", "bot", bw.Bot.ID, "action", action.ID, "message", msg.ID)
		return out, true
	}

	inv := Invocation{Action: action, Bot: bw.Bot, Thread: thread, Message: msg, Trigger: m.Trigger, SenderIP: senderIP}
	settings, _ := d.registry.Settings(action.Handler)
	if q := d.currentQueue(); settings.Queued && q != nil {
		job := NewJob(inv, lease)
		if err := q.Enqueue(ctx, job); err != nil {
			d.gate.Finish(lease, true)
			out.Status, out.Err = metrics.OutcomeFailed, err
			d.fail(inv, fmt.Errorf("enqueue: %w", err))
			return out, true
		}
		out.Status = metrics.OutcomeQueued
		metrics.BotDispatch.WithLabelValues(action.Handler, out.Status).Inc()
		slog.Debug("bots.dispatch.queued", "job", job.ID, "bot", bw.Bot.ID, "action", action.ID)
		return out, true
	}

	out.Status, out.Err = d.invoke(ctx, inv, lease)
	return out, true
}

// invoke runs the handler inline and settles its cooldown lease.
func (d *Dispatcher) invoke(ctx context.Context, inv Invocation, lease Lease) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "bots.dispatch", trace.WithAttributes(
		attribute.String("bot.id", inv.Bot.ID.String()),
		attribute.String("bot.action.id", inv.Action.ID.String()),
		attribute.String("bot.handler", inv.Action.Handler),
		attribute.String("message.id", inv.Message.ID.String()),
	))
	defer span.End()

	start := time.Now()
	h, _, err := d.registry.New(inv.Action.Handler)
	if err == nil {
		err = Run(ctx, h, inv)
	}
	metrics.BotHandlerDuration.WithLabelValues(inv.Action.Handler).Observe(time.Since(start).Seconds())

	release := err != nil || h.ShouldReleaseCooldown()
	d.gate.Finish(lease, release)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.fail(inv, err)
		return metrics.OutcomeFailed, err
	}

	status := metrics.OutcomeFired
	if release {
		status = metrics.OutcomeReleased
	}
	metrics.BotDispatch.WithLabelValues(inv.Action.Handler, status).Inc()
	slog.Info("bots.dispatch.handled",
		"bot", inv.Bot.ID,
		"action", inv.Action.ID,
		"handler", inv.Action.Handler,
		"message", inv.Message.ID,
		"released", release,
	)
	d.bus.Broadcast(bus.Event{Name: protocol.BusBotActionHandled, Payload: actionPayload(inv, nil)})
	return status, nil
}

func (d *Dispatcher) fail(inv Invocation, err error) {
	metrics.BotDispatch.WithLabelValues(inv.Action.Handler, metrics.OutcomeFailed).Inc()
	slog.Error("bots.dispatch.failed",
		"bot", inv.Bot.ID,
		"action", inv.Action.ID,
		"handler", inv.Action.Handler,
		"message", inv.Message.ID,
		"error", err,
	)
	d.bus.Broadcast(bus.Event{Name: protocol.BusBotActionFailed, Payload: actionPayload(inv, err)})
}

func actionPayload(inv Invocation, err error) bus.BotActionPayload {
	p := bus.BotActionPayload{
		ThreadID:  inv.Thread.ID,
		BotID:     inv.Bot.ID,
		ActionID:  inv.Action.ID,
		MessageID: inv.Message.ID,
		Handler:   inv.Action.Handler,
		Trigger:   inv.Trigger,
	}
	if err != nil {
		p.Error = err.Error()
	}
	return p
}
