package messages

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/logger"
	pkgerrors "courier/pkg/errors"
	"courier/pkg/models"
)

type fakeRepository struct {
	records map[string]*Message
	history map[string][]HistoryEntry

	upsertErr error
	getErr    error
	listErr   error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		records: make(map[string]*Message),
		history: make(map[string][]HistoryEntry),
	}
}

func (r *fakeRepository) UpsertPending(ctx context.Context, msg *Message) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	if existing, ok := r.records[msg.IdempotencyID]; ok {
		existing.UpdatedAt = time.Now()
		return nil
	}
	stored := *msg
	stored.Status = StatusPending
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.records[msg.IdempotencyID] = &stored
	return nil
}

func (r *fakeRepository) Get(ctx context.Context, idempotencyID string) (*Message, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	msg, ok := r.records[idempotencyID]
	if !ok {
		return nil, nil
	}
	return msg, nil
}

func (r *fakeRepository) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	entry.CreatedAt = time.Now()
	r.history[entry.IdempotencyID] = append(r.history[entry.IdempotencyID], *entry)
	return nil
}

func (r *fakeRepository) ListHistory(ctx context.Context, idempotencyID string) ([]HistoryEntry, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.history[idempotencyID], nil
}

func (r *fakeRepository) UpdateStatus(ctx context.Context, idempotencyID string, status Status, entry *HistoryEntry) error {
	msg, ok := r.records[idempotencyID]
	if !ok {
		return fmt.Errorf("message not found: %s", idempotencyID)
	}
	msg.Status = status
	msg.UpdatedAt = time.Now()
	if entry != nil {
		return r.AppendHistory(ctx, entry)
	}
	return nil
}

type fakeProducer struct {
	published []publishedEvent
	err       error
}

type publishedEvent struct {
	channel string
	event   *models.Event
}

func (p *fakeProducer) Publish(ctx context.Context, channel string, event *models.Event) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedEvent{channel: channel, event: event})
	return nil
}

func (p *fakeProducer) Close() error {
	return nil
}

func TestCreateMessage(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	svc := NewService(repo, producer, "message.created", logger.NopLogger())

	resp, err := svc.CreateMessage(context.Background(), CreateMessageRequest{
		Content:  "hello",
		Metadata: map[string]interface{}{"x": 1},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, resp.Status)
	assert.NotEmpty(t, resp.IdempotencyID)
	assert.NotEmpty(t, resp.CorrelationID)
	assert.Equal(t, resp.IdempotencyID, resp.ID)
	assert.NotEqual(t, resp.CorrelationID, resp.IdempotencyID)

	stored, ok := repo.records[resp.IdempotencyID]
	require.True(t, ok)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, "hello", stored.Payload.Content)

	require.Len(t, producer.published, 1)
	published := producer.published[0]
	assert.Equal(t, "message.created", published.channel)
	assert.Equal(t, models.EventTypeMessageCreated, published.event.EventType)
	assert.Equal(t, resp.IdempotencyID, published.event.IdempotencyID)
	assert.Equal(t, resp.CorrelationID, published.event.CorrelationID)
	assert.Equal(t, "hello", published.event.Payload["content"])
}

func TestCreateMessageDefaultsMetadata(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	svc := NewService(repo, producer, "message.created", logger.NopLogger())

	resp, err := svc.CreateMessage(context.Background(), CreateMessageRequest{Content: "no metadata"})
	require.NoError(t, err)

	stored := repo.records[resp.IdempotencyID]
	require.NotNil(t, stored.Payload.Metadata)
	assert.Empty(t, stored.Payload.Metadata)

	metadata, ok := producer.published[0].event.Payload["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Empty(t, metadata)
}

func TestCreateMessageUniqueIdentifiers(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	svc := NewService(repo, producer, "message.created", logger.NopLogger())

	first, err := svc.CreateMessage(context.Background(), CreateMessageRequest{Content: "one"})
	require.NoError(t, err)
	second, err := svc.CreateMessage(context.Background(), CreateMessageRequest{Content: "two"})
	require.NoError(t, err)

	assert.NotEqual(t, first.IdempotencyID, second.IdempotencyID)
	assert.NotEqual(t, first.CorrelationID, second.CorrelationID)
}

func TestCreateMessageStorageError(t *testing.T) {
	repo := newFakeRepository()
	repo.upsertErr = fmt.Errorf("connection refused")
	producer := &fakeProducer{}
	svc := NewService(repo, producer, "message.created", logger.NopLogger())

	resp, err := svc.CreateMessage(context.Background(), CreateMessageRequest{Content: "hello"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, pkgerrors.IsStorage(err))

	// Nothing may reach the broker when the store write failed.
	assert.Empty(t, producer.published)
}

func TestCreateMessagePublishError(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{err: fmt.Errorf("broker unreachable")}
	svc := NewService(repo, producer, "message.created", logger.NopLogger())

	resp, err := svc.CreateMessage(context.Background(), CreateMessageRequest{Content: "hello"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, pkgerrors.IsPublish(err))

	// The pending record survives the failed publish.
	assert.Len(t, repo.records, 1)
}

func TestGetMessageStatusNotFound(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, &fakeProducer{}, "message.created", logger.NopLogger())

	view, err := svc.GetMessageStatus(context.Background(), "nope")
	require.NoError(t, err)

	assert.Equal(t, "nope", view.ID)
	assert.Equal(t, StatusNotFound, view.Status)
	assert.Empty(t, view.History)
	assert.Nil(t, view.CreatedAt)
}

func TestGetMessageStatusWithHistory(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	svc := NewService(repo, producer, "message.created", logger.NopLogger())

	resp, err := svc.CreateMessage(context.Background(), CreateMessageRequest{Content: "hello"})
	require.NoError(t, err)

	entries := []HistoryEntry{
		{IdempotencyID: resp.IdempotencyID, CorrelationID: resp.CorrelationID, Status: StatusProcessing, ServiceName: "message-processor", EventID: "evt-1"},
		{IdempotencyID: resp.IdempotencyID, CorrelationID: resp.CorrelationID, Status: StatusCompleted, ServiceName: "message-processor", EventID: "evt-2"},
	}
	for i := range entries {
		require.NoError(t, repo.AppendHistory(context.Background(), &entries[i]))
	}
	require.NoError(t, repo.UpdateStatus(context.Background(), resp.IdempotencyID, StatusCompleted, nil))

	view, err := svc.GetMessageStatus(context.Background(), resp.IdempotencyID)
	require.NoError(t, err)

	assert.Equal(t, resp.IdempotencyID, view.ID)
	assert.Equal(t, resp.CorrelationID, view.CorrelationID)
	assert.Equal(t, StatusCompleted, view.Status)
	require.Len(t, view.History, 2)
	assert.Equal(t, StatusProcessing, view.History[0].Status)
	assert.Equal(t, StatusCompleted, view.History[1].Status)
	assert.Equal(t, "message-processor", view.History[0].Service)
	assert.Equal(t, "evt-1", view.History[0].EventID)
}

func TestGetMessageStatusStorageError(t *testing.T) {
	repo := newFakeRepository()
	repo.getErr = fmt.Errorf("connection refused")
	svc := NewService(repo, &fakeProducer{}, "message.created", logger.NopLogger())

	view, err := svc.GetMessageStatus(context.Background(), "any")
	require.Error(t, err)
	assert.Nil(t, view)
	assert.True(t, pkgerrors.IsStorage(err))
}
