package messages

import (
	"context"
	"time"

	"github.com/google/uuid"

	"courier/internal/broker"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/pkg/errors"
	"courier/pkg/logging"
	"courier/pkg/metrics"
	"courier/pkg/models"
)

type Service interface {
	CreateMessage(ctx context.Context, req CreateMessageRequest) (*CreateMessageResponse, error)
	GetMessageStatus(ctx context.Context, idempotencyID string) (*StatusView, error)
}

type service struct {
	repo           Repository
	producer       broker.Producer
	createdChannel string
	logger         logger.Logger
}

func NewService(repo Repository, producer broker.Producer, createdChannel string, log logger.Logger) Service {
	if createdChannel == "" {
		createdChannel = constants.DefaultCreatedChannel
	}
	return &service{
		repo:           repo,
		producer:       producer,
		createdChannel: createdChannel,
		logger:         log,
	}
}

// CreateMessage runs the ingestion sequence: generate ids, persist the
// pending record, publish message.created, answer with pending. The store
// write and the publish are two separate systems; a publish failure after a
// successful write leaves a pending record behind and surfaces as an error.
func (s *service) CreateMessage(ctx context.Context, req CreateMessageRequest) (*CreateMessageResponse, error) {
	start := time.Now()

	correlationID := logging.GetCorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	idempotencyID := uuid.New().String()

	ctx = logging.WithCorrelationID(ctx, correlationID)
	ctx = logging.WithIdempotencyID(ctx, idempotencyID)

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	msg := &Message{
		IdempotencyID: idempotencyID,
		CorrelationID: correlationID,
		Status:        StatusPending,
		Payload: Payload{
			Content:  req.Content,
			Metadata: metadata,
		},
	}

	if err := s.repo.UpsertPending(ctx, msg); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to persist message", "error", err)
		metrics.MessagesCreatedTotal.WithLabelValues("storage_error").Inc()
		metrics.MessageCreateDuration.WithLabelValues("error").Observe(float64(time.Since(start).Milliseconds()))
		return nil, errors.ErrStorage.WithCause(err)
	}

	event := models.NewEvent(
		models.EventTypeMessageCreated,
		correlationID,
		idempotencyID,
		constants.ServiceNameGateway,
		map[string]interface{}{
			"content":  req.Content,
			"metadata": metadata,
		},
	)

	if err := s.producer.Publish(ctx, s.createdChannel, event); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to publish event", "error", err, "event_id", event.EventID)
		metrics.MessagesCreatedTotal.WithLabelValues("publish_error").Inc()
		metrics.EventsPublishedTotal.WithLabelValues(constants.ServiceNameGateway, event.EventType, "error").Inc()
		metrics.MessageCreateDuration.WithLabelValues("error").Observe(float64(time.Since(start).Milliseconds()))
		return nil, errors.ErrPublish.WithCause(err)
	}

	s.logger.InfowCtx(ctx, "Message created", "event_id", event.EventID)
	metrics.MessagesCreatedTotal.WithLabelValues("success").Inc()
	metrics.EventsPublishedTotal.WithLabelValues(constants.ServiceNameGateway, event.EventType, "success").Inc()
	metrics.MessageCreateDuration.WithLabelValues("success").Observe(float64(time.Since(start).Milliseconds()))

	return &CreateMessageResponse{
		ID:            idempotencyID,
		CorrelationID: correlationID,
		IdempotencyID: idempotencyID,
		Status:        StatusPending,
	}, nil
}

// GetMessageStatus projects the current record plus its ordered history.
// An unknown id is a valid answer, not an error.
func (s *service) GetMessageStatus(ctx context.Context, idempotencyID string) (*StatusView, error) {
	msg, err := s.repo.Get(ctx, idempotencyID)
	if err != nil {
		metrics.StatusQueriesTotal.WithLabelValues("error").Inc()
		return nil, errors.ErrStorage.WithCause(err)
	}

	if msg == nil {
		metrics.StatusQueriesTotal.WithLabelValues("not_found").Inc()
		return &StatusView{
			ID:     idempotencyID,
			Status: StatusNotFound,
		}, nil
	}

	entries, err := s.repo.ListHistory(ctx, idempotencyID)
	if err != nil {
		metrics.StatusQueriesTotal.WithLabelValues("error").Inc()
		return nil, errors.ErrStorage.WithCause(err)
	}

	history := make([]HistoryView, 0, len(entries))
	for _, entry := range entries {
		history = append(history, HistoryView{
			Status:    entry.Status,
			Service:   entry.ServiceName,
			EventID:   entry.EventID,
			Error:     entry.ErrorMessage,
			Timestamp: entry.CreatedAt,
		})
	}

	metrics.StatusQueriesTotal.WithLabelValues("found").Inc()

	createdAt := msg.CreatedAt
	updatedAt := msg.UpdatedAt
	return &StatusView{
		ID:            msg.IdempotencyID,
		CorrelationID: msg.CorrelationID,
		Status:        msg.Status,
		CreatedAt:     &createdAt,
		UpdatedAt:     &updatedAt,
		History:       history,
	}, nil
}
