package processor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/config"
	"courier/internal/logger"
	"courier/internal/messages"
	"courier/pkg/models"
)

type fakeRepository struct {
	records map[string]*messages.Message
	history map[string][]messages.HistoryEntry

	getErr    error
	updateErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		records: make(map[string]*messages.Message),
		history: make(map[string][]messages.HistoryEntry),
	}
}

func (r *fakeRepository) UpsertPending(ctx context.Context, msg *messages.Message) error {
	if existing, ok := r.records[msg.IdempotencyID]; ok {
		existing.UpdatedAt = time.Now()
		return nil
	}
	stored := *msg
	stored.Status = messages.StatusPending
	r.records[msg.IdempotencyID] = &stored
	return nil
}

func (r *fakeRepository) Get(ctx context.Context, idempotencyID string) (*messages.Message, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	msg, ok := r.records[idempotencyID]
	if !ok {
		return nil, nil
	}
	return msg, nil
}

func (r *fakeRepository) AppendHistory(ctx context.Context, entry *messages.HistoryEntry) error {
	entry.CreatedAt = time.Now()
	r.history[entry.IdempotencyID] = append(r.history[entry.IdempotencyID], *entry)
	return nil
}

func (r *fakeRepository) ListHistory(ctx context.Context, idempotencyID string) ([]messages.HistoryEntry, error) {
	return r.history[idempotencyID], nil
}

func (r *fakeRepository) UpdateStatus(ctx context.Context, idempotencyID string, status messages.Status, entry *messages.HistoryEntry) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	msg, ok := r.records[idempotencyID]
	if !ok {
		return fmt.Errorf("message not found: %s", idempotencyID)
	}
	msg.Status = status
	if entry != nil {
		return r.AppendHistory(ctx, entry)
	}
	return nil
}

type fakeProducer struct {
	published []*models.Event
	channels  []string
	err       error
}

func (p *fakeProducer) Publish(ctx context.Context, channel string, event *models.Event) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	p.channels = append(p.channels, channel)
	return nil
}

func (p *fakeProducer) Close() error {
	return nil
}

type fakeSeenCache struct {
	seen    map[string]bool
	markErr error
}

func newFakeSeenCache() *fakeSeenCache {
	return &fakeSeenCache{seen: make(map[string]bool)}
}

func (c *fakeSeenCache) MarkSeen(ctx context.Context, idempotencyID string, ttl time.Duration) (bool, error) {
	if c.markErr != nil {
		return false, c.markErr
	}
	if c.seen[idempotencyID] {
		return false, nil
	}
	c.seen[idempotencyID] = true
	return true, nil
}

func (c *fakeSeenCache) Forget(ctx context.Context, idempotencyID string) error {
	delete(c.seen, idempotencyID)
	return nil
}

func createdEvent(idempotencyID, content string) *models.Event {
	return models.NewEvent(
		models.EventTypeMessageCreated,
		"corr-"+idempotencyID,
		idempotencyID,
		"api-gateway",
		map[string]interface{}{
			"content":  content,
			"metadata": map[string]interface{}{},
		},
	)
}

func newTestService(repo messages.Repository, producer *fakeProducer, seen SeenCache) *Service {
	cfg := config.SeenCacheConfig{TTLSeconds: 60, OnRedisError: "allow"}
	return NewService(repo, producer, seen, cfg, "message.status.updated", logger.NopLogger())
}

func TestHandleMessageCreated(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	seen := newFakeSeenCache()
	svc := newTestService(repo, producer, seen)

	require.NoError(t, repo.UpsertPending(context.Background(), &messages.Message{
		IdempotencyID: "idem-1",
		CorrelationID: "corr-idem-1",
		Payload:       messages.Payload{Content: "hello", Metadata: map[string]interface{}{}},
	}))

	event := createdEvent("idem-1", "hello")
	require.NoError(t, svc.HandleMessageCreated(context.Background(), event))

	assert.Equal(t, messages.StatusCompleted, repo.records["idem-1"].Status)

	history := repo.history["idem-1"]
	require.Len(t, history, 2)
	assert.Equal(t, messages.StatusProcessing, history[0].Status)
	assert.Equal(t, messages.StatusCompleted, history[1].Status)
	assert.Equal(t, "message-processor", history[0].ServiceName)
	assert.Equal(t, event.EventID, history[0].EventID)

	require.Len(t, producer.published, 1)
	statusEvent := producer.published[0]
	assert.Equal(t, models.EventTypeMessageStatusUpdated, statusEvent.EventType)
	assert.Equal(t, "idem-1", statusEvent.IdempotencyID)
	assert.Equal(t, event.CorrelationID, statusEvent.CorrelationID)
	assert.Equal(t, "completed", statusEvent.Payload["status"])
	assert.Equal(t, "message.status.updated", producer.channels[0])
}

func TestHandleMessageCreatedRecreatesMissingRecord(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	svc := newTestService(repo, producer, newFakeSeenCache())

	event := createdEvent("idem-2", "from the broker")
	require.NoError(t, svc.HandleMessageCreated(context.Background(), event))

	stored := repo.records["idem-2"]
	require.NotNil(t, stored)
	assert.Equal(t, messages.StatusCompleted, stored.Status)
	assert.Equal(t, "from the broker", stored.Payload.Content)
}

func TestHandleMessageCreatedTerminalRepublishesStatus(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	svc := newTestService(repo, producer, newFakeSeenCache())

	require.NoError(t, repo.UpsertPending(context.Background(), &messages.Message{
		IdempotencyID: "idem-3",
		CorrelationID: "corr-idem-3",
		Payload:       messages.Payload{Content: "done already"},
	}))
	repo.records["idem-3"].Status = messages.StatusCompleted

	require.NoError(t, svc.HandleMessageCreated(context.Background(), createdEvent("idem-3", "done already")))

	// No new transitions, but the status event goes out again.
	assert.Equal(t, messages.StatusCompleted, repo.records["idem-3"].Status)
	assert.Empty(t, repo.history["idem-3"])
	require.Len(t, producer.published, 1)
	assert.Equal(t, "completed", producer.published[0].Payload["status"])
}

func TestHandleMessageCreatedSkipsInFlight(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	svc := newTestService(repo, producer, newFakeSeenCache())

	require.NoError(t, repo.UpsertPending(context.Background(), &messages.Message{
		IdempotencyID: "idem-3b",
		CorrelationID: "corr-idem-3b",
		Payload:       messages.Payload{Content: "in flight"},
	}))
	repo.records["idem-3b"].Status = messages.StatusProcessing

	require.NoError(t, svc.HandleMessageCreated(context.Background(), createdEvent("idem-3b", "in flight")))

	assert.Equal(t, messages.StatusProcessing, repo.records["idem-3b"].Status)
	assert.Empty(t, producer.published)
	assert.Empty(t, repo.history["idem-3b"])
}

func TestHandleMessageCreatedPublishFailureIsRetried(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	producer.err = fmt.Errorf("broker unavailable")
	seen := newFakeSeenCache()
	svc := newTestService(repo, producer, seen)

	event := createdEvent("idem-9", "hello")
	err := svc.HandleMessageCreated(context.Background(), event)
	require.Error(t, err)

	// The record went terminal but the status event never left. The seen
	// mark must be released so the redelivery is not dropped as a
	// duplicate.
	assert.Equal(t, messages.StatusCompleted, repo.records["idem-9"].Status)
	assert.False(t, seen.seen["idem-9"])

	producer.err = nil
	require.NoError(t, svc.HandleMessageCreated(context.Background(), event))

	require.Len(t, producer.published, 1)
	assert.Equal(t, "completed", producer.published[0].Payload["status"])
	assert.Equal(t, "idem-9", producer.published[0].IdempotencyID)
	// The replay must not add transitions on top of the terminal record.
	assert.Len(t, repo.history["idem-9"], 2)
}

func TestHandleMessageCreatedFailedReplayKeepsError(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	producer.err = fmt.Errorf("broker unavailable")
	seen := newFakeSeenCache()
	svc := newTestService(repo, producer, seen)

	event := models.NewEvent(
		models.EventTypeMessageCreated,
		"corr-10", "idem-10", "api-gateway",
		map[string]interface{}{"metadata": map[string]interface{}{}},
	)
	require.Error(t, svc.HandleMessageCreated(context.Background(), event))
	assert.Equal(t, messages.StatusFailed, repo.records["idem-10"].Status)
	assert.False(t, seen.seen["idem-10"])

	producer.err = nil
	require.NoError(t, svc.HandleMessageCreated(context.Background(), event))

	require.Len(t, producer.published, 1)
	assert.Equal(t, "failed", producer.published[0].Payload["status"])
	assert.Equal(t, "message content is empty", producer.published[0].Payload["error"])
}

func TestHandleMessageCreatedDuplicateDelivery(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	seen := newFakeSeenCache()
	svc := newTestService(repo, producer, seen)

	event := createdEvent("idem-4", "hello")
	require.NoError(t, svc.HandleMessageCreated(context.Background(), event))
	require.NoError(t, svc.HandleMessageCreated(context.Background(), event))

	// Second delivery was dropped by the seen-cache.
	assert.Len(t, producer.published, 1)
	assert.Len(t, repo.history["idem-4"], 2)
}

func TestHandleMessageCreatedEmptyContentFails(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	svc := newTestService(repo, producer, newFakeSeenCache())

	event := models.NewEvent(
		models.EventTypeMessageCreated,
		"corr-5", "idem-5", "api-gateway",
		map[string]interface{}{"metadata": map[string]interface{}{}},
	)
	require.NoError(t, svc.HandleMessageCreated(context.Background(), event))

	assert.Equal(t, messages.StatusFailed, repo.records["idem-5"].Status)

	history := repo.history["idem-5"]
	require.Len(t, history, 2)
	assert.Equal(t, messages.StatusFailed, history[1].Status)
	assert.NotEmpty(t, history[1].ErrorMessage)

	require.Len(t, producer.published, 1)
	assert.Equal(t, "failed", producer.published[0].Payload["status"])
	assert.NotEmpty(t, producer.published[0].Payload["error"])
}

func TestHandleMessageCreatedSeenCacheDownAllow(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	seen := newFakeSeenCache()
	seen.markErr = fmt.Errorf("redis down")
	svc := newTestService(repo, producer, seen)

	require.NoError(t, svc.HandleMessageCreated(context.Background(), createdEvent("idem-6", "hello")))

	assert.Equal(t, messages.StatusCompleted, repo.records["idem-6"].Status)
	assert.Len(t, producer.published, 1)
}

func TestHandleMessageCreatedSeenCacheDownFail(t *testing.T) {
	repo := newFakeRepository()
	producer := &fakeProducer{}
	seen := newFakeSeenCache()
	seen.markErr = fmt.Errorf("redis down")

	cfg := config.SeenCacheConfig{TTLSeconds: 60, OnRedisError: "fail"}
	svc := NewService(repo, producer, seen, cfg, "message.status.updated", logger.NopLogger())

	err := svc.HandleMessageCreated(context.Background(), createdEvent("idem-7", "hello"))
	require.Error(t, err)
	assert.Empty(t, repo.records)
	assert.Empty(t, producer.published)
}

func TestHandleMessageCreatedStoreErrorReleasesSeenMark(t *testing.T) {
	repo := newFakeRepository()
	repo.getErr = fmt.Errorf("connection refused")
	producer := &fakeProducer{}
	seen := newFakeSeenCache()
	svc := newTestService(repo, producer, seen)

	err := svc.HandleMessageCreated(context.Background(), createdEvent("idem-8", "hello"))
	require.Error(t, err)

	// The retry must not be dropped as a duplicate.
	assert.False(t, seen.seen["idem-8"])

	repo.getErr = nil
	require.NoError(t, svc.HandleMessageCreated(context.Background(), createdEvent("idem-8", "hello")))
	assert.Equal(t, messages.StatusCompleted, repo.records["idem-8"].Status)
}
