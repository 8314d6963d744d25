package notifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/config"
	"courier/internal/logger"
	"courier/pkg/models"
)

func statusEvent(status string) *models.Event {
	return models.NewEvent(
		models.EventTypeMessageStatusUpdated,
		"corr-1", "idem-1", "message-processor",
		map[string]interface{}{
			"idempotency_id": "idem-1",
			"status":         status,
		},
	)
}

func TestNewServiceInvalidFilter(t *testing.T) {
	_, err := NewService(config.NotificationsConfig{Filter: "not valid!!!"}, logger.NopLogger())
	require.Error(t, err)
}

func TestNewServiceNonBoolFilter(t *testing.T) {
	_, err := NewService(config.NotificationsConfig{Filter: "idempotency_id"}, logger.NopLogger())
	require.Error(t, err)
}

func TestHandleStatusUpdatedNoFilter(t *testing.T) {
	svc, err := NewService(config.NotificationsConfig{}, logger.NopLogger())
	require.NoError(t, err)

	assert.NoError(t, svc.HandleStatusUpdated(context.Background(), statusEvent("completed")))
	assert.NoError(t, svc.HandleStatusUpdated(context.Background(), statusEvent("failed")))
}

func TestHandleStatusUpdatedWithFilter(t *testing.T) {
	svc, err := NewService(config.NotificationsConfig{
		Filter: `payload.status == "failed"`,
	}, logger.NopLogger())
	require.NoError(t, err)

	// Both pass and filtered events ack cleanly.
	assert.NoError(t, svc.HandleStatusUpdated(context.Background(), statusEvent("failed")))
	assert.NoError(t, svc.HandleStatusUpdated(context.Background(), statusEvent("completed")))
}

func TestHandleStatusUpdatedMissingStatus(t *testing.T) {
	svc, err := NewService(config.NotificationsConfig{}, logger.NopLogger())
	require.NoError(t, err)

	event := models.NewEvent(
		models.EventTypeMessageStatusUpdated,
		"corr-2", "idem-2", "message-processor",
		map[string]interface{}{"idempotency_id": "idem-2"},
	)

	assert.NoError(t, svc.HandleStatusUpdated(context.Background(), event))
}
