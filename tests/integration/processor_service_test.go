package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/messages"
	"courier/internal/processor"
	"courier/pkg/models"
)

type capturingProducer struct {
	mu     sync.Mutex
	events []*models.Event
}

func (p *capturingProducer) Publish(ctx context.Context, channel string, event *models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingProducer) Close() error { return nil }

func (p *capturingProducer) published() []*models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.Event(nil), p.events...)
}

func TestProcessorService_HandleMessageCreated(t *testing.T) {
	infra := SetupTestInfra(t)

	repo := messages.NewRepository(infra.PostgresDB)
	producer := &capturingProducer{}
	seen := processor.NewSeenCache(infra.RedisClient)
	svc := processor.NewService(repo, producer, seen, createTestSeenCacheConfig(), "", createTestLogger())
	ctx := context.Background()

	msg := createTestMessage(uuid.New().String(), uuid.New().String(), "hello")
	err := repo.UpsertPending(ctx, msg)
	require.NoError(t, err)

	event := createTestCreatedEvent(msg.IdempotencyID, "hello")
	err = svc.HandleMessageCreated(ctx, event)
	require.NoError(t, err)

	stored, err := repo.Get(ctx, msg.IdempotencyID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, messages.StatusCompleted, stored.Status)

	history, err := repo.ListHistory(ctx, msg.IdempotencyID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, messages.StatusProcessing, history[0].Status)
	assert.Equal(t, messages.StatusCompleted, history[1].Status)

	published := producer.published()
	require.Len(t, published, 1)
	assert.Equal(t, models.EventTypeMessageStatusUpdated, published[0].EventType)
	assert.Equal(t, msg.IdempotencyID, published[0].IdempotencyID)
	assert.Equal(t, "completed", published[0].Payload["status"])
}

func TestProcessorService_DuplicateDelivery(t *testing.T) {
	infra := SetupTestInfra(t)

	repo := messages.NewRepository(infra.PostgresDB)
	producer := &capturingProducer{}
	seen := processor.NewSeenCache(infra.RedisClient)
	svc := processor.NewService(repo, producer, seen, createTestSeenCacheConfig(), "", createTestLogger())
	ctx := context.Background()

	msg := createTestMessage(uuid.New().String(), uuid.New().String(), "hello")
	err := repo.UpsertPending(ctx, msg)
	require.NoError(t, err)

	event := createTestCreatedEvent(msg.IdempotencyID, "hello")
	err = svc.HandleMessageCreated(ctx, event)
	require.NoError(t, err)

	err = svc.HandleMessageCreated(ctx, event)
	require.NoError(t, err)

	history, err := repo.ListHistory(ctx, msg.IdempotencyID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "duplicate delivery should neither transition nor publish")
	assert.Len(t, producer.published(), 1)
}

func TestProcessorService_AlreadyProcessedWithoutSeenCache(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := messages.NewRepository(infra.PostgresDB)
	producer := &capturingProducer{}
	svc := processor.NewService(repo, producer, nil, createTestSeenCacheConfig(), "", createTestLogger())
	ctx := context.Background()

	msg := createTestMessage(uuid.New().String(), uuid.New().String(), "hello")
	err := repo.UpsertPending(ctx, msg)
	require.NoError(t, err)

	event := createTestCreatedEvent(msg.IdempotencyID, "hello")
	err = svc.HandleMessageCreated(ctx, event)
	require.NoError(t, err)

	// Without the cache the redelivery reaches the store, finds the
	// terminal record and only re-emits its status event.
	err = svc.HandleMessageCreated(ctx, event)
	require.NoError(t, err)

	history, err := repo.ListHistory(ctx, msg.IdempotencyID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	published := producer.published()
	require.Len(t, published, 2)
	assert.Equal(t, "completed", published[1].Payload["status"])
}

func TestProcessorService_RecreatesMissingRecord(t *testing.T) {
	infra := SetupTestInfra(t)

	repo := messages.NewRepository(infra.PostgresDB)
	producer := &capturingProducer{}
	seen := processor.NewSeenCache(infra.RedisClient)
	svc := processor.NewService(repo, producer, seen, createTestSeenCacheConfig(), "", createTestLogger())
	ctx := context.Background()

	event := createTestCreatedEvent(uuid.New().String(), "from the broker only")
	err := svc.HandleMessageCreated(ctx, event)
	require.NoError(t, err)

	stored, err := repo.Get(ctx, event.IdempotencyID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, messages.StatusCompleted, stored.Status)
	assert.Equal(t, "from the broker only", stored.Payload.Content)
}

func TestProcessorService_EmptyContentFails(t *testing.T) {
	infra := SetupTestInfra(t)

	repo := messages.NewRepository(infra.PostgresDB)
	producer := &capturingProducer{}
	seen := processor.NewSeenCache(infra.RedisClient)
	svc := processor.NewService(repo, producer, seen, createTestSeenCacheConfig(), "", createTestLogger())
	ctx := context.Background()

	event := createTestCreatedEvent(uuid.New().String(), "")
	err := svc.HandleMessageCreated(ctx, event)
	require.NoError(t, err)

	stored, err := repo.Get(ctx, event.IdempotencyID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, messages.StatusFailed, stored.Status)

	history, err := repo.ListHistory(ctx, event.IdempotencyID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, messages.StatusFailed, history[1].Status)
	assert.NotEmpty(t, history[1].ErrorMessage)

	published := producer.published()
	require.Len(t, published, 1)
	assert.Equal(t, "failed", published[0].Payload["status"])
	assert.NotEmpty(t, published[0].Payload["error"])
}
