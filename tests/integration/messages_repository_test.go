package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/constants"
	"courier/internal/messages"
)

func TestMessagesRepository_UpsertPending(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := messages.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	msg := createTestMessage(uuid.New().String(), uuid.New().String(), "hello")
	err := repo.UpsertPending(ctx, msg)
	require.NoError(t, err)

	stored, err := repo.Get(ctx, msg.IdempotencyID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, msg.IdempotencyID, stored.IdempotencyID)
	assert.Equal(t, msg.CorrelationID, stored.CorrelationID)
	assert.Equal(t, messages.StatusPending, stored.Status)
	assert.Equal(t, "hello", stored.Payload.Content)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.False(t, stored.UpdatedAt.IsZero())
}

func TestMessagesRepository_UpsertPending_Duplicate(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := messages.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	first := createTestMessage(uuid.New().String(), uuid.New().String(), "original")
	err := repo.UpsertPending(ctx, first)
	require.NoError(t, err)

	err = repo.UpdateStatus(ctx, first.IdempotencyID, messages.StatusCompleted, nil)
	require.NoError(t, err)

	afterUpdate, err := repo.Get(ctx, first.IdempotencyID)
	require.NoError(t, err)

	time.Sleep(timestampDelay)

	// Same key again with a different body. The original status and
	// payload must survive; only updated_at moves.
	second := createTestMessage(first.IdempotencyID, uuid.New().String(), "replayed")
	err = repo.UpsertPending(ctx, second)
	require.NoError(t, err)

	stored, err := repo.Get(ctx, first.IdempotencyID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, messages.StatusCompleted, stored.Status)
	assert.Equal(t, "original", stored.Payload.Content)
	assert.Equal(t, first.CorrelationID, stored.CorrelationID)
	assert.Equal(t, afterUpdate.CreatedAt, stored.CreatedAt)
	assert.True(t, stored.UpdatedAt.After(afterUpdate.UpdatedAt))

	var count int
	err = infra.PostgresDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE idempotency_id = $1", first.IdempotencyID,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMessagesRepository_Get_NotFound(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := messages.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	stored, err := repo.Get(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestMessagesRepository_History(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := messages.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	msg := createTestMessage(uuid.New().String(), uuid.New().String(), "hello")
	err := repo.UpsertPending(ctx, msg)
	require.NoError(t, err)

	statuses := []messages.Status{
		messages.StatusPending,
		messages.StatusProcessing,
		messages.StatusCompleted,
	}
	for _, status := range statuses {
		entry := &messages.HistoryEntry{
			IdempotencyID: msg.IdempotencyID,
			CorrelationID: msg.CorrelationID,
			Status:        status,
			ServiceName:   constants.ServiceNameProcessor,
			EventID:       uuid.New().String(),
		}
		err := repo.AppendHistory(ctx, entry)
		require.NoError(t, err)
		assert.NotZero(t, entry.ID)
		assert.False(t, entry.CreatedAt.IsZero())
		time.Sleep(timestampDelay)
	}

	history, err := repo.ListHistory(ctx, msg.IdempotencyID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	for i, status := range statuses {
		assert.Equal(t, status, history[i].Status)
	}
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].CreatedAt.Before(history[i-1].CreatedAt))
	}
}

func TestMessagesRepository_History_Empty(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := messages.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	history, err := repo.ListHistory(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMessagesRepository_AppendHistory_NoMessage(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := messages.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	entry := &messages.HistoryEntry{
		IdempotencyID: uuid.New().String(),
		CorrelationID: uuid.New().String(),
		Status:        messages.StatusProcessing,
		ServiceName:   constants.ServiceNameProcessor,
		EventID:       uuid.New().String(),
	}
	err := repo.AppendHistory(ctx, entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no message for history entry")
}

func TestMessagesRepository_UpdateStatus(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := messages.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	msg := createTestMessage(uuid.New().String(), uuid.New().String(), "hello")
	err := repo.UpsertPending(ctx, msg)
	require.NoError(t, err)

	entry := &messages.HistoryEntry{
		IdempotencyID: msg.IdempotencyID,
		CorrelationID: msg.CorrelationID,
		Status:        messages.StatusProcessing,
		ServiceName:   constants.ServiceNameProcessor,
		EventID:       uuid.New().String(),
	}
	err = repo.UpdateStatus(ctx, msg.IdempotencyID, messages.StatusProcessing, entry)
	require.NoError(t, err)

	stored, err := repo.Get(ctx, msg.IdempotencyID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, messages.StatusProcessing, stored.Status)

	history, err := repo.ListHistory(ctx, msg.IdempotencyID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, messages.StatusProcessing, history[0].Status)
	assert.Equal(t, constants.ServiceNameProcessor, history[0].ServiceName)
}

func TestMessagesRepository_UpdateStatus_NotFound(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := messages.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	err := repo.UpdateStatus(ctx, uuid.New().String(), messages.StatusCompleted, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMessagesRepository_UpdateStatus_FailedWithError(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)

	repo := messages.NewRepository(infra.PostgresDB)
	ctx := context.Background()

	msg := createTestMessage(uuid.New().String(), uuid.New().String(), "hello")
	err := repo.UpsertPending(ctx, msg)
	require.NoError(t, err)

	entry := &messages.HistoryEntry{
		IdempotencyID: msg.IdempotencyID,
		CorrelationID: msg.CorrelationID,
		Status:        messages.StatusFailed,
		ServiceName:   constants.ServiceNameProcessor,
		EventID:       uuid.New().String(),
		ErrorMessage:  "message content is empty",
	}
	err = repo.UpdateStatus(ctx, msg.IdempotencyID, messages.StatusFailed, entry)
	require.NoError(t, err)

	history, err := repo.ListHistory(ctx, msg.IdempotencyID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, messages.StatusFailed, history[0].Status)
	assert.Equal(t, "message content is empty", history[0].ErrorMessage)
}
