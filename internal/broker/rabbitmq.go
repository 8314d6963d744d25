package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"courier/internal/config"
	"courier/internal/logger"
	"courier/pkg/errors"
	"courier/pkg/logging"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/retry"
	"courier/pkg/tracing"
)

// dlxExchange is where rejected deliveries are dead-lettered.
const dlxExchange = "dlx"

// queueDeclarer is the slice of *amqp.Channel both ends use to declare
// their queue.
type queueDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// declareDurableQueue declares the event queue with the one argument table
// used everywhere. Producer and consumer must declare with identical
// arguments: a redeclaration with a different table is a channel-level
// precondition failure on the broker.
func declareDurableQueue(ch queueDeclarer, queue string) error {
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange": dlxExchange,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return nil
}

type RabbitMQProducer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    logger.Logger
	mu        sync.Mutex
	declared  map[string]bool
	closeOnce sync.Once
	closeErr  error
}

// NewRabbitMQProducer dials the broker immediately; an unreachable broker
// is fatal to startup rather than retried.
func NewRabbitMQProducer(cfg config.RabbitMQConfig, log logger.Logger) (*RabbitMQProducer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &RabbitMQProducer{
		conn:     conn,
		channel:  channel,
		logger:   log,
		declared: make(map[string]bool),
	}, nil
}

func (p *RabbitMQProducer) Publish(ctx context.Context, queue string, event *models.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureQueue(queue); err != nil {
		return err
	}

	headers := amqp.Table{
		"correlation_id": event.CorrelationID,
		"idempotency_id": event.IdempotencyID,
		"event_type":     event.EventType,
	}
	headers = tracing.InjectTraceContextAMQP(ctx, headers)

	err = p.channel.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			Body:          body,
			DeliveryMode:  amqp.Persistent,
			Headers:       headers,
			MessageId:     event.EventID,
			CorrelationId: event.CorrelationID,
			Timestamp:     time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", queue, err)
	}

	p.logger.InfowCtx(ctx, "Published event",
		"transport", "rabbitmq",
		"queue", queue,
		"event_id", event.EventID,
		"correlation_id", event.CorrelationID,
		"idempotency_id", event.IdempotencyID,
	)

	return nil
}

// ensureQueue declares the target queue durable before the first send so a
// broker restart does not drop in-flight events. Declaration is idempotent
// on the broker side; the map just avoids the round trip per publish.
func (p *RabbitMQProducer) ensureQueue(queue string) error {
	if p.declared[queue] {
		return nil
	}

	if err := declareDurableQueue(p.channel, queue); err != nil {
		return err
	}

	p.declared[queue] = true
	return nil
}

func (p *RabbitMQProducer) Close() error {
	p.closeOnce.Do(func() {
		// Release in reverse order of acquisition.
		if err := p.channel.Close(); err != nil {
			p.closeErr = err
		}
		if err := p.conn.Close(); err != nil && p.closeErr == nil {
			p.closeErr = err
		}
	})
	return p.closeErr
}

type RabbitMQConsumer struct {
	cfg         config.RabbitMQConfig
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      logger.Logger
	wg          sync.WaitGroup
	serviceName string
	retryCfg    config.RetryConfig
	closeOnce   sync.Once
	closeErr    error
}

func NewRabbitMQConsumer(cfg config.RabbitMQConfig, log logger.Logger) (*RabbitMQConsumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &RabbitMQConsumer{
		cfg:         cfg,
		conn:        conn,
		channel:     channel,
		logger:      log,
		serviceName: "unknown",
		retryCfg:    cfg.Retry,
	}, nil
}

func (c *RabbitMQConsumer) SetServiceName(name string) {
	c.serviceName = name
}

func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler HandlerFunc) error {
	if err := c.declareTopology(queue); err != nil {
		return err
	}

	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := c.channel.Consume(
		queue,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		consumeCtx := logging.WithServiceName(ctx, c.serviceName)
		c.logger.InfowCtx(consumeCtx, "Started consuming",
			"queue", queue,
		)

		for {
			select {
			case msg, ok := <-deliveries:
				if !ok {
					c.logger.InfowCtx(consumeCtx, "RabbitMQ channel closed",
						"queue", queue,
					)
					return
				}

				var event models.Event
				if err := json.Unmarshal(msg.Body, &event); err != nil {
					c.logger.ErrorwCtx(consumeCtx, "Failed to unmarshal event",
						"error", err,
						"queue", queue,
					)
					_ = msg.Nack(false, false)
					continue
				}

				msgCtx := logging.WithCorrelationID(consumeCtx, event.CorrelationID)
				msgCtx = logging.WithIdempotencyID(msgCtx, event.IdempotencyID)
				msgCtx, span := tracing.StartSpanFromAMQPDelivery(msgCtx, "rabbitmq.consume", msg.Headers)

				if err := c.processWithRetry(msgCtx, &event, handler, queue); err != nil {
					c.logger.ErrorwCtx(msgCtx, "Failed to process event after retries",
						"error", err,
						"queue", queue,
					)
					// Rejected without requeue: the dead-letter
					// exchange routes it to the DLQ.
					metrics.DLQEventsTotal.WithLabelValues(c.serviceName, event.EventType).Inc()
					_ = msg.Nack(false, false)
				} else {
					_ = msg.Ack(false)
				}
				span.End()

			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	return ctx.Err()
}

func (c *RabbitMQConsumer) declareTopology(queue string) error {
	if err := declareDurableQueue(c.channel, queue); err != nil {
		return err
	}

	if err := c.channel.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLX: %w", err)
	}

	dlqName := queue + ".dlq"
	if _, err := c.channel.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	if err := c.channel.QueueBind(dlqName, queue, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	return nil
}

func (c *RabbitMQConsumer) processWithRetry(ctx context.Context, event *models.Event, handler HandlerFunc, queue string) error {
	policy := consumerRetryPolicy(c.retryCfg)

	return retry.RetryWithCallback(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
				c.logger.ErrorwCtx(ctx, "Panic recovered during event processing",
					"error", err,
					"queue", queue,
				)
			}
		}()
		return handler(ctx, event)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, queue).Inc()
		c.logger.WarnwCtx(ctx, "Retrying event processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"queue", queue,
		)
	})
}

func (c *RabbitMQConsumer) Close() error {
	c.closeOnce.Do(func() {
		if err := c.channel.Close(); err != nil {
			c.closeErr = err
		}
		if err := c.conn.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
		c.wg.Wait()
	})
	return c.closeErr
}
