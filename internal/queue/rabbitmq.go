package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"content_refresher/internal/domain"
)

// RabbitMQ publishes jobs to a durable work queue. Delayed jobs wait in a
// side queue with a per-message TTL and are dead-lettered back to the work
// exchange when it expires.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	queue      string
	delayQueue string
	prefetch   int
	logger     *slog.Logger

	mu        sync.Mutex
	consumers []*amqp.Channel
}

type Config struct {
	URL            string
	Exchange       string
	RoutingKey     string
	QueueName      string
	DelayQueueName string
	Prefetch       int
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"delay_queue", cfg.DelayQueueName,
		"routing_key", cfg.RoutingKey,
	)

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		queue:      cfg.QueueName,
		delayQueue: cfg.DelayQueueName,
		prefetch:   prefetch,
		logger:     logger,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	err := ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	_, err = ch.QueueDeclare(
		cfg.DelayQueueName,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    cfg.Exchange,
			"x-dead-letter-routing-key": cfg.RoutingKey,
		},
	)
	if err != nil {
		return fmt.Errorf("declare delay queue: %w", err)
	}

	return nil
}

// Enqueue publishes job. With a positive delay the message is parked in the
// delay queue until its expiration. The broker only expires messages at the
// head of that queue, so a job may wait behind one with a longer delay.
func (r *RabbitMQ) Enqueue(ctx context.Context, job domain.RefreshJob, delay time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    job.ID,
		Body:         body,
		Timestamp:    time.Now(),
	}

	exchange, key := r.exchange, r.routingKey
	if delay > 0 {
		exchange, key = "", r.delayQueue
		msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	if err := r.channel.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish job: %w", err)
	}

	r.logger.Debug("enqueued refresh job",
		"job_id", job.ID,
		"document_id", job.DocumentID,
		"delay", delay,
	)

	return nil
}

// Consume streams jobs from the work queue until ctx is cancelled or the
// broker closes the channel. Messages that do not decode are rejected.
func (r *RabbitMQ) Consume(ctx context.Context) (<-chan Delivery, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consume channel: %w", err)
	}

	if err := ch.Qos(r.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(ctx, r.queue, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume queue: %w", err)
	}

	// The channel outlives ctx so deliveries already handed out can still be
	// acked; Close tears it down.
	r.mu.Lock()
	r.consumers = append(r.consumers, ch)
	r.mu.Unlock()

	out := make(chan Delivery)
	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var job domain.RefreshJob
				if err := json.Unmarshal(msg.Body, &job); err != nil {
					r.logger.Error("rejecting malformed refresh job",
						"message_id", msg.MessageId,
						"error", err,
					)
					_ = msg.Reject(false)
					continue
				}

				d := Delivery{
					Job:  job,
					Ack:  func() error { return msg.Ack(false) },
					Nack: func(requeue bool) error { return msg.Nack(false, requeue) },
				}

				select {
				case out <- d:
				case <-ctx.Done():
					_ = msg.Nack(false, true)
					return
				}
			}
		}
	}()

	return out, nil
}

// Close shuts down consume channels, then the publish channel and the
// connection. Call it after consumers have acked their last delivery.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	for _, ch := range r.consumers {
		ch.Close()
	}
	r.consumers = nil
	r.mu.Unlock()

	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
