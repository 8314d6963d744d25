package notifier

import (
	"context"
	"fmt"

	celgo "github.com/google/cel-go/cel"

	"courier/internal/config"
	"courier/internal/logger"
	"courier/pkg/cel"
	"courier/pkg/metrics"
	"courier/pkg/models"
)

// Service consumes message.status.updated events and emits a notification
// for each one that passes the optional CEL filter. Delivery is a structured
// log line; the consumer contract (ack, retry, DLQ) is what matters here, not
// the channel behind it.
type Service struct {
	evaluator *cel.Evaluator
	program   celgo.Program
	filter    string
	logger    logger.Logger
}

func NewService(cfg config.NotificationsConfig, log logger.Logger) (*Service, error) {
	s := &Service{
		filter: cfg.Filter,
		logger: log,
	}

	if cfg.Filter != "" {
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return nil, fmt.Errorf("failed to create filter evaluator: %w", err)
		}
		program, err := evaluator.CompileFilter(cfg.Filter)
		if err != nil {
			return nil, fmt.Errorf("invalid notification filter: %w", err)
		}
		s.evaluator = evaluator
		s.program = program
	}

	return s, nil
}

func (s *Service) HandleStatusUpdated(ctx context.Context, event *models.Event) error {
	status, ok := event.Payload["status"].(string)
	if !ok {
		s.logger.WarnwCtx(ctx, "Status not found in payload", "event_id", event.EventID)
		metrics.NotificationsTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	if s.program != nil {
		match, err := s.evaluator.RunFilter(ctx, s.program, event)
		if err != nil {
			// A broken filter must not wedge the queue; the event is
			// acked and the miss is visible in metrics.
			s.logger.ErrorwCtx(ctx, "Notification filter failed", "error", err, "event_id", event.EventID)
			metrics.NotificationsTotal.WithLabelValues("filter_error").Inc()
			return nil
		}
		if !match {
			metrics.NotificationsTotal.WithLabelValues("filtered").Inc()
			return nil
		}
	}

	s.logger.InfowCtx(ctx, "Notification sent",
		"event_id", event.EventID,
		"status", status,
	)
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	return nil
}
