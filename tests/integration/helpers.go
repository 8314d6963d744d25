package integration

import (
	"time"

	"github.com/google/uuid"

	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/internal/messages"
	"courier/pkg/models"
)

const (
	containerStartupTimeout = 60
	timestampDelay          = 10 * time.Millisecond
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestSeenCacheConfig() config.SeenCacheConfig {
	return config.SeenCacheConfig{
		TTLSeconds:   300,
		OnRedisError: constants.FallbackAllow,
	}
}

func createTestMessage(idempotencyID, correlationID, content string) *messages.Message {
	return &messages.Message{
		IdempotencyID: idempotencyID,
		CorrelationID: correlationID,
		Payload: messages.Payload{
			Content:  content,
			Metadata: map[string]interface{}{},
		},
	}
}

func createTestCreatedEvent(idempotencyID, content string) *models.Event {
	return models.NewEvent(
		models.EventTypeMessageCreated,
		uuid.New().String(),
		idempotencyID,
		constants.ServiceNameGateway,
		map[string]interface{}{
			"content":  content,
			"metadata": map[string]interface{}{},
		},
	)
}
