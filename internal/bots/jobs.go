package bots

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/messenger/internal/metrics"
	"github.com/nextlevelbuilder/messenger/internal/store"
)

// Job is a queued handler invocation. Entities are referenced by id and
// reloaded by RunJob so the job can cross process boundaries.
type Job struct {
	ID        uuid.UUID `json:"id"`
	ActionID  uuid.UUID `json:"action_id"`
	BotID     uuid.UUID `json:"bot_id"`
	ThreadID  uuid.UUID `json:"thread_id"`
	MessageID uuid.UUID `json:"message_id"`
	Handler   string    `json:"handler"`
	Trigger   string    `json:"trigger,omitempty"`
	SenderIP  string    `json:"sender_ip,omitempty"`
	Lease     Lease     `json:"lease"`
}

// NewJob captures inv and its cooldown lease.
func NewJob(inv Invocation, lease Lease) Job {
	return Job{
		ID:        store.GenNewID(),
		ActionID:  inv.Action.ID,
		BotID:     inv.Bot.ID,
		ThreadID:  inv.Thread.ID,
		MessageID: inv.Message.ID,
		Handler:   inv.Action.Handler,
		Trigger:   inv.Trigger,
		SenderIP:  inv.SenderIP,
		Lease:     lease,
	}
}

// RunJob reloads the job's entities and runs the handler the same way a
// synchronous dispatch would. If any entity is gone the lease is released.
func (d *Dispatcher) RunJob(ctx context.Context, job Job) error {
	inv, err := d.load(ctx, job)
	if err != nil {
		d.gate.Finish(job.Lease, true)
		metrics.BotDispatch.WithLabelValues(job.Handler, metrics.OutcomeFailed).Inc()
		return fmt.Errorf("load job %s: %w", job.ID, err)
	}
	_, err = d.invoke(ctx, inv, job.Lease)
	return err
}

func (d *Dispatcher) load(ctx context.Context, job Job) (Invocation, error) {
	action, err := d.stores.Bots.GetAction(ctx, job.ActionID)
	if err != nil {
		return Invocation{}, fmt.Errorf("action: %w", err)
	}
	bot, err := d.stores.Bots.GetBot(ctx, job.BotID)
	if err != nil {
		return Invocation{}, fmt.Errorf("bot: %w", err)
	}
	thread, err := d.stores.Threads.Get(ctx, job.ThreadID)
	if err != nil {
		return Invocation{}, fmt.Errorf("thread: %w", err)
	}
	msg, err := d.stores.Messages.Get(ctx, job.MessageID)
	if err != nil {
		return Invocation{}, fmt.Errorf("message: %w", err)
	}
	return Invocation{Action: action, Bot: bot, Thread: thread, Message: msg, Trigger: job.Trigger, SenderIP: job.SenderIP}, nil
}
