package broker

import (
	"fmt"

	"courier/internal/config"
	"courier/internal/logger"
)

// NewProducer selects the transport once from configuration. An unknown
// type is an error, not a fallback: a gateway that cannot publish must not
// start.
func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaProducer(cfg.Kafka, log), nil
	case "rabbitmq":
		return NewRabbitMQProducer(cfg.RabbitMQ, log)
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaConsumer(cfg.Kafka, cfg.DLQChannel, log), nil
	case "rabbitmq":
		return NewRabbitMQConsumer(cfg.RabbitMQ, log)
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
