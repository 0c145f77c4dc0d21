// Package queue runs queued bot handler jobs off the request path, either
// on an in-process worker pool or through an AMQP broker.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/messenger/internal/bots"
	"github.com/nextlevelbuilder/messenger/internal/config"
)

// Queue drivers.
const (
	DriverMemory = "memory"
	DriverAMQP   = "amqp"
	DriverSync   = "sync"
)

var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)

// RunFunc executes one job.
type RunFunc func(ctx context.Context, job bots.Job) error

// Queue is a bots.Queue with a consumer lifecycle.
type Queue interface {
	bots.Queue
	// Run consumes jobs until ctx is done or the queue is closed.
	Run(ctx context.Context) error
	Close() error
}

// New builds the queue selected by cfg. The sync driver returns a nil
// Queue: queued handlers then run inline.
func New(ctx context.Context, cfg config.QueueConfig, run RunFunc) (Queue, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(cfg.Workers, cfg.Buffer, run), nil
	case DriverAMQP:
		return DialAMQP(ctx, AMQPConfig{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.Exchange,
			Queue:      cfg.QueueName,
			RoutingKey: cfg.RoutingKey,
			Prefetch:   cfg.Workers,
		}, run)
	case DriverSync:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
}
