package processor

import (
	"context"
	"fmt"
	"time"

	"courier/internal/broker"
	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/logger"
	"courier/internal/messages"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/retry"
)

// Service consumes message.created events, walks the record through
// pending -> processing -> completed (or failed) and publishes a
// message.status.updated event for each terminal transition. Redelivered
// events are absorbed twice over: a Redis seen-cache drops fast repeats, and
// the store's status check keeps anything already past pending from being
// processed again. A redelivery that reaches a terminal record only re-emits
// the status event for it.
type Service struct {
	repo          messages.Repository
	producer      broker.Producer
	seen          SeenCache
	seenTTL       time.Duration
	onRedisError  string
	statusChannel string
	logger        logger.Logger
}

func NewService(repo messages.Repository, producer broker.Producer, seen SeenCache, cfg config.SeenCacheConfig, statusChannel string, log logger.Logger) *Service {
	ttlSeconds := cfg.TTLSeconds
	if ttlSeconds <= 0 {
		ttlSeconds = constants.DefaultSeenTTLSeconds
	}
	if statusChannel == "" {
		statusChannel = constants.DefaultStatusChannel
	}
	return &Service{
		repo:          repo,
		producer:      producer,
		seen:          seen,
		seenTTL:       time.Duration(ttlSeconds) * time.Second,
		onRedisError:  cfg.OnRedisError,
		statusChannel: statusChannel,
		logger:        log,
	}
}

func (s *Service) HandleMessageCreated(ctx context.Context, event *models.Event) error {
	start := time.Now()

	if s.seen != nil {
		first, err := s.seen.MarkSeen(ctx, event.IdempotencyID, s.seenTTL)
		if err != nil {
			if s.onRedisError == constants.FallbackFail {
				metrics.ProcessorEventsTotal.WithLabelValues("error").Inc()
				return retry.NewRetryableError(fmt.Errorf("seen-cache unavailable: %w", err))
			}
			s.logger.WarnwCtx(ctx, "Seen-cache unavailable, falling through to store", "error", err)
		} else if !first {
			s.logger.InfowCtx(ctx, "Duplicate delivery dropped by seen-cache", "event_id", event.EventID)
			metrics.ProcessorEventsTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	msg, err := s.repo.Get(ctx, event.IdempotencyID)
	if err != nil {
		s.forgetSeen(ctx, event.IdempotencyID)
		metrics.ProcessorEventsTotal.WithLabelValues("error").Inc()
		return retry.NewRetryableError(fmt.Errorf("failed to load message: %w", err))
	}

	if msg == nil {
		// The event can outrun the gateway's own write becoming
		// visible, or arrive for a record the gateway failed to
		// report. Recreate the pending record from the event body.
		msg = &messages.Message{
			IdempotencyID: event.IdempotencyID,
			CorrelationID: event.CorrelationID,
			Status:        messages.StatusPending,
			Payload:       payloadFromEvent(event),
		}
		if err := s.repo.UpsertPending(ctx, msg); err != nil {
			s.forgetSeen(ctx, event.IdempotencyID)
			metrics.ProcessorEventsTotal.WithLabelValues("error").Inc()
			return retry.NewRetryableError(fmt.Errorf("failed to create message: %w", err))
		}
	} else if msg.Status != messages.StatusPending {
		if msg.Status.IsTerminal() {
			// A redelivered terminal record means the previous attempt
			// may have died between the transition and the status
			// publish. Re-emit the event; status delivery is
			// at-least-once.
			if err := s.republishStatus(ctx, event, msg); err != nil {
				s.forgetSeen(ctx, event.IdempotencyID)
				metrics.ProcessorEventsTotal.WithLabelValues("error").Inc()
				return retry.NewRetryableError(err)
			}
			metrics.ProcessorEventsTotal.WithLabelValues("republished").Inc()
			return nil
		}
		s.logger.InfowCtx(ctx, "Message already in flight, skipping",
			"current_status", string(msg.Status),
			"event_id", event.EventID,
		)
		metrics.ProcessorEventsTotal.WithLabelValues("already_processed").Inc()
		return nil
	}

	if err := s.transition(ctx, event, messages.StatusProcessing, ""); err != nil {
		s.forgetSeen(ctx, event.IdempotencyID)
		metrics.ProcessorEventsTotal.WithLabelValues("error").Inc()
		return retry.NewRetryableError(err)
	}

	if procErr := s.process(ctx, msg); procErr != nil {
		if err := s.transition(ctx, event, messages.StatusFailed, procErr.Error()); err != nil {
			s.forgetSeen(ctx, event.IdempotencyID)
			metrics.ProcessorEventsTotal.WithLabelValues("error").Inc()
			return retry.NewRetryableError(err)
		}
		if err := s.publishStatus(ctx, event, messages.StatusFailed, procErr.Error()); err != nil {
			s.forgetSeen(ctx, event.IdempotencyID)
			metrics.ProcessorEventsTotal.WithLabelValues("error").Inc()
			return retry.NewRetryableError(err)
		}
		s.logger.WarnwCtx(ctx, "Message processing failed",
			"error", procErr,
			"event_id", event.EventID,
		)
		metrics.ProcessorEventsTotal.WithLabelValues("failed").Inc()
		metrics.ProcessorDuration.WithLabelValues("failed").Observe(float64(time.Since(start).Milliseconds()))
		return nil
	}

	if err := s.transition(ctx, event, messages.StatusCompleted, ""); err != nil {
		s.forgetSeen(ctx, event.IdempotencyID)
		metrics.ProcessorEventsTotal.WithLabelValues("error").Inc()
		return retry.NewRetryableError(err)
	}

	if err := s.publishStatus(ctx, event, messages.StatusCompleted, ""); err != nil {
		s.forgetSeen(ctx, event.IdempotencyID)
		metrics.ProcessorEventsTotal.WithLabelValues("error").Inc()
		return retry.NewRetryableError(err)
	}

	s.logger.InfowCtx(ctx, "Message processed successfully", "event_id", event.EventID)
	metrics.ProcessorEventsTotal.WithLabelValues("success").Inc()
	metrics.ProcessorDuration.WithLabelValues("success").Observe(float64(time.Since(start).Milliseconds()))
	return nil
}

// process validates the recorded payload. Content is required at the HTTP
// boundary, but events recreated from the broker may carry anything.
func (s *Service) process(ctx context.Context, msg *messages.Message) error {
	if msg.Payload.Content == "" {
		return fmt.Errorf("message content is empty")
	}
	return nil
}

func (s *Service) transition(ctx context.Context, event *models.Event, status messages.Status, errorMessage string) error {
	entry := &messages.HistoryEntry{
		IdempotencyID: event.IdempotencyID,
		CorrelationID: event.CorrelationID,
		Status:        status,
		ServiceName:   constants.ServiceNameProcessor,
		EventID:       event.EventID,
		ErrorMessage:  errorMessage,
	}
	if err := s.repo.UpdateStatus(ctx, event.IdempotencyID, status, entry); err != nil {
		return fmt.Errorf("failed to update status to %s: %w", status, err)
	}
	return nil
}

func (s *Service) publishStatus(ctx context.Context, event *models.Event, status messages.Status, errorMessage string) error {
	payload := map[string]interface{}{
		"idempotency_id": event.IdempotencyID,
		"status":         string(status),
		"processed_at":   time.Now().UTC().Format(time.RFC3339),
	}
	if errorMessage != "" {
		payload["error"] = errorMessage
	}

	statusEvent := models.NewEvent(
		models.EventTypeMessageStatusUpdated,
		event.CorrelationID,
		event.IdempotencyID,
		constants.ServiceNameProcessor,
		payload,
	)

	if err := s.producer.Publish(ctx, s.statusChannel, statusEvent); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(constants.ServiceNameProcessor, statusEvent.EventType, "error").Inc()
		return fmt.Errorf("failed to publish status update: %w", err)
	}
	metrics.EventsPublishedTotal.WithLabelValues(constants.ServiceNameProcessor, statusEvent.EventType, "success").Inc()
	return nil
}

// republishStatus rebuilds the status event for a record that is already
// terminal. Failed records recover their error message from the history.
func (s *Service) republishStatus(ctx context.Context, event *models.Event, msg *messages.Message) error {
	errorMessage := ""
	if msg.Status == messages.StatusFailed {
		history, err := s.repo.ListHistory(ctx, event.IdempotencyID)
		if err != nil {
			s.logger.WarnwCtx(ctx, "Failed to load history for status replay", "error", err)
		}
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Status == messages.StatusFailed && history[i].ErrorMessage != "" {
				errorMessage = history[i].ErrorMessage
				break
			}
		}
	}
	s.logger.InfowCtx(ctx, "Re-emitting status for terminal message",
		"current_status", string(msg.Status),
		"event_id", event.EventID,
	)
	return s.publishStatus(ctx, event, msg.Status, errorMessage)
}

// forgetSeen releases the seen mark after a failed attempt so a retry is not
// mistaken for a duplicate.
func (s *Service) forgetSeen(ctx context.Context, idempotencyID string) {
	if s.seen == nil {
		return
	}
	if err := s.seen.Forget(ctx, idempotencyID); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to release seen mark", "error", err)
	}
}

func payloadFromEvent(event *models.Event) messages.Payload {
	payload := messages.Payload{Metadata: map[string]interface{}{}}
	if event.Payload == nil {
		return payload
	}
	if content, ok := event.Payload["content"].(string); ok {
		payload.Content = content
	}
	if metadata, ok := event.Payload["metadata"].(map[string]interface{}); ok {
		payload.Metadata = metadata
	}
	return payload
}
