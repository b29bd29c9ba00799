// Package jobs schedules and consumes the waitlist's background work on
// RabbitMQ. Delays use holding queues whose messages carry a per-message
// TTL and are dead-lettered into the jobs queue when it lapses. Retries get
// their own holding queue so they never wait behind long offer expiries.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Domenick1991/terminbooking/config"
	"github.com/Domenick1991/terminbooking/internal/clock"
	"github.com/Domenick1991/terminbooking/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type Type string

const (
	TypeMatchSlot   Type = "waitlist.match-slot"
	TypeExpireOffer Type = "waitlist.expire-offer"
)

type Job struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	EntryID   string            `json:"entry_id,omitempty"`
	Slot      *domain.FreedSlot `json:"slot,omitempty"`
	ExecuteAt time.Time         `json:"execute_at"`
	// Attempt is the number of failed runs so far.
	Attempt int `json:"attempt,omitempty"`
}

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	return conn, nil
}

func declareTopology(ch *amqp.Channel, cfg config.RabbitMQConfig) error {
	if _, err := ch.QueueDeclare(cfg.JobsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare %s: %w", cfg.JobsQueue, err)
	}
	delayArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.JobsQueue,
	}
	for _, q := range []string{cfg.DelayQueue, cfg.RetryQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, delayArgs); err != nil {
			return fmt.Errorf("rabbitmq: declare %s: %w", q, err)
		}
	}
	return nil
}

type RabbitScheduler struct {
	mu    sync.Mutex
	ch    *amqp.Channel
	cfg   config.RabbitMQConfig
	clock clock.Clock
}

func NewRabbitScheduler(conn *amqp.Connection, cfg config.RabbitMQConfig, clk clock.Clock) (*RabbitScheduler, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if err := declareTopology(ch, cfg); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &RabbitScheduler{ch: ch, cfg: cfg, clock: clk}, nil
}

// Schedule delivers the job to the jobs queue at job.ExecuteAt, or right
// away when that instant has passed. Delivery is at-least-once.
func (s *RabbitScheduler) Schedule(ctx context.Context, job Job) error {
	queue, pub, err := publishingFor(job, s.clock.Now(), s.cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", job.Type, err)
	}
	return nil
}

func (s *RabbitScheduler) Close() error {
	return s.ch.Close()
}

func publishingFor(job Job, now time.Time, cfg config.RabbitMQConfig) (string, amqp.Publishing, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return "", amqp.Publishing{}, fmt.Errorf("marshal job: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Type:         string(job.Type),
		Timestamp:    now.UTC(),
		Body:         body,
	}

	delay := job.ExecuteAt.Sub(now)
	if delay <= 0 {
		return cfg.JobsQueue, pub, nil
	}
	ms := delay.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	pub.Expiration = strconv.FormatInt(ms, 10)
	if job.Attempt > 0 {
		return cfg.RetryQueue, pub, nil
	}
	return cfg.DelayQueue, pub, nil
}

// Retrier puts a failed job back on the schedule.
type Retrier interface {
	Schedule(ctx context.Context, job Job) error
}

type Consumer struct {
	ch    *amqp.Channel
	cfg   config.RabbitMQConfig
	retry Retrier
	clock clock.Clock
	log   *zap.Logger
}

func NewConsumer(conn *amqp.Connection, cfg config.RabbitMQConfig, retry Retrier, clk clock.Clock, log *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if err := declareTopology(ch, cfg); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq: set qos: %w", err)
	}
	return &Consumer{ch: ch, cfg: cfg, retry: retry, clock: clk, log: log}, nil
}

// Consume runs handler for every job until ctx is done or the channel closes.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, Job) error) error {
	deliveries, err := c.ch.Consume(c.cfg.JobsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq: deliveries channel closed")
			}
			c.handle(ctx, d, handler)
		}
	}
}

// handle acks on success. A failed job is rescheduled with backoff until it
// runs out of attempts and is dropped. Undecodable jobs are dropped at once.
// If the retry cannot be published the delivery is requeued instead.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handler func(context.Context, Job) error) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		c.log.Error("drop undecodable job", zap.String("message_id", d.MessageId), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	err := handler(ctx, job)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	next, ok := nextAttempt(job, c.clock.Now(), c.cfg)
	if !ok {
		c.log.Error("job dropped after final attempt",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
			zap.Int("attempts", job.Attempt+1),
			zap.Error(err),
		)
		_ = d.Nack(false, false)
		return
	}
	c.log.Warn("job failed, retrying",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Int("attempt", next.Attempt),
		zap.Time("retry_at", next.ExecuteAt),
		zap.Error(err),
	)
	if err := c.retry.Schedule(ctx, next); err != nil {
		c.log.Warn("reschedule failed, requeueing", zap.String("job_id", job.ID), zap.Error(err))
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// nextAttempt returns the retry of a failed job, due after a backoff that
// doubles with every failure. ok is false once MaxAttempts runs are used up.
func nextAttempt(job Job, now time.Time, cfg config.RabbitMQConfig) (Job, bool) {
	if job.Attempt+1 >= max(cfg.MaxAttempts, 1) {
		return Job{}, false
	}
	backoff := time.Duration(cfg.RetryBackoffSeconds) * time.Second << job.Attempt
	job.Attempt++
	job.ExecuteAt = now.Add(backoff)
	return job, true
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}
