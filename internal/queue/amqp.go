package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nextlevelbuilder/messenger/internal/bots"
)

const jobType = "bots.job"

// AMQPConfig configures the broker-backed queue.
type AMQPConfig struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
	Prefetch   int
	// DialAttempts bounds connection retries. 0 means 5.
	DialAttempts int
}

func (c *AMQPConfig) defaults() {
	if c.Exchange == "" {
		c.Exchange = "messenger.bots"
	}
	if c.Queue == "" {
		c.Queue = "messenger.bots.jobs"
	}
	if c.RoutingKey == "" {
		c.RoutingKey = "bots.job"
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 4
	}
	if c.DialAttempts <= 0 {
		c.DialAttempts = 5
	}
}

// AMQP publishes jobs to a durable topic exchange and consumes them from a
// bound durable queue. Publishes wait for broker confirmation.
type AMQP struct {
	cfg  AMQPConfig
	run  RunFunc
	conn *amqp.Connection

	pubMu    sync.Mutex
	pub      *amqp.Channel
	confirms <-chan amqp.Confirmation
}

// DialAMQP connects, declares the topology and opens a confirming
// publisher channel.
func DialAMQP(ctx context.Context, cfg AMQPConfig, run RunFunc) (*AMQP, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	cfg.defaults()

	conn, err := dialWithRetry(ctx, cfg.URL, cfg.DialAttempts)
	if err != nil {
		return nil, err
	}
	q := &AMQP{cfg: cfg, run: run, conn: conn}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := q.declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	q.pub = ch
	q.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return q, nil
}

func dialWithRetry(ctx context.Context, rawURL string, attempts int) (*amqp.Connection, error) {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	backoff := time.Second
	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp.Dial(rawURL)
		if err == nil {
			slog.Info("queue.amqp.connected", "host", host)
			return conn, nil
		}
		lastErr = err
		slog.Warn("queue.amqp.dial_failed", "host", host, "attempt", i, "error", err)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("connect to amqp: %w", lastErr)
}

func (q *AMQP) declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(q.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(q.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.cfg.Queue, q.cfg.RoutingKey, q.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Enqueue publishes job and waits for the broker to confirm it.
func (q *AMQP) Enqueue(ctx context.Context, job bots.Job) error {
	body, err := encodeJob(job)
	if err != nil {
		return err
	}

	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	err = q.pub.PublishWithContext(ctx, q.cfg.Exchange, q.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Type:         jobType,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	select {
	case c, ok := <-q.confirms:
		if !ok {
			return ErrClosed
		}
		if !c.Ack {
			return fmt.Errorf("job %s not confirmed by broker", job.ID)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes jobs until ctx is done or the connection closes.
func (q *AMQP) Run(ctx context.Context) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()
	if err := ch.Qos(q.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(q.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	slog.Info("queue.amqp.consuming", "queue", q.cfg.Queue, "prefetch", q.cfg.Prefetch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("amqp deliveries closed")
			}
			q.handle(ctx, d)
		}
	}
}

func (q *AMQP) handle(ctx context.Context, d amqp.Delivery) {
	job, err := decodeJob(d.Body)
	if err != nil {
		slog.Error("queue.amqp.poison", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}
	// Handler failures are final: the cooldown lease is already settled.
	if err := q.run(ctx, job); err != nil {
		slog.Warn("queue.job.failed", "job", job.ID, "handler", job.Handler, "error", err)
	}
	if err := d.Ack(false); err != nil {
		slog.Warn("queue.amqp.ack_failed", "job", job.ID, "error", err)
	}
}

// Close closes the publisher channel and the connection.
func (q *AMQP) Close() error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	if q.pub != nil {
		_ = q.pub.Close()
	}
	return q.conn.Close()
}

func encodeJob(job bots.Job) ([]byte, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	return body, nil
}

func decodeJob(body []byte) (bots.Job, error) {
	var job bots.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return bots.Job{}, fmt.Errorf("decode job: %w", err)
	}
	if job.ActionID == uuid.Nil || job.MessageID == uuid.Nil {
		return bots.Job{}, errors.New("decode job: missing action or message id")
	}
	return job, nil
}
