package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkaclient "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"

	"courier/internal/broker"
	"courier/internal/config"
	"courier/pkg/models"
)

func setupKafka(t *testing.T, ctx context.Context) []string {
	t.Helper()

	container, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkamodule.WithClusterID("test-cluster"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	brokers, err := container.Brokers(ctx)
	if err != nil {
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	return brokers
}

func TestKafkaProducer_Publish(t *testing.T) {
	ctx := context.Background()
	brokers := setupKafka(t, ctx)
	topic := "message.created"

	producer := broker.NewKafkaProducer(config.KafkaConfig{Brokers: brokers}, createTestLogger())
	t.Cleanup(func() {
		producer.Close()
	})

	event := createTestCreatedEvent(uuid.New().String(), "kafka round trip")
	err := producer.Publish(ctx, topic, event)
	require.NoError(t, err)

	reader := kafkaclient.NewReader(kafkaclient.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		StartOffset: kafkaclient.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
	})
	t.Cleanup(func() {
		reader.Close()
	})

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err)

	assert.Equal(t, event.IdempotencyID, string(msg.Key),
		"partition key must be the idempotency id")

	var stored models.Event
	err = json.Unmarshal(msg.Value, &stored)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, stored.EventID)
	assert.Equal(t, event.CorrelationID, stored.CorrelationID)
	assert.Equal(t, models.EventTypeMessageCreated, stored.EventType)
	assert.Equal(t, "kafka round trip", stored.Payload["content"])

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, event.CorrelationID, headers["correlation_id"])
	assert.Equal(t, event.IdempotencyID, headers["idempotency_id"])
	assert.Equal(t, event.EventType, headers["event_type"])
}

func TestKafkaProducer_RejectsInvalidEvent(t *testing.T) {
	ctx := context.Background()
	brokers := setupKafka(t, ctx)

	producer := broker.NewKafkaProducer(config.KafkaConfig{Brokers: brokers}, createTestLogger())
	t.Cleanup(func() {
		producer.Close()
	})

	event := createTestCreatedEvent(uuid.New().String(), "missing fields")
	event.CorrelationID = ""

	err := producer.Publish(ctx, "message.created", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid event")
}
