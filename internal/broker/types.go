package broker

import (
	"context"

	"courier/pkg/models"
)

// Producer delivers one event to one named channel (a topic for the Kafka
// transport, a queue for the RabbitMQ transport) with at-least-once
// semantics. Implementations own their connections for the process lifetime
// and must be safe for concurrent Publish calls. Publish fails loudly when
// the transport is down; nothing is buffered.
type Producer interface {
	Publish(ctx context.Context, channel string, event *models.Event) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, channel string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, event *models.Event) error
