package logging

import (
	"context"
)

const (
	CorrelationIDKey = "correlation_id"
	IdempotencyIDKey = "idempotency_id"
	ServiceNameKey   = "service_name"
)

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

func WithIdempotencyID(ctx context.Context, idempotencyID string) context.Context {
	return context.WithValue(ctx, IdempotencyIDKey, idempotencyID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

func GetIdempotencyID(ctx context.Context) string {
	if idempotencyID, ok := ctx.Value(IdempotencyIDKey).(string); ok {
		return idempotencyID
	}
	return ""
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(ServiceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

// GetLogFields flattens the ids carried on the context into zap sugared
// key/value pairs so every log line of a request carries them.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 6)

	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		fields = append(fields, "correlation_id", correlationID)
	}

	if idempotencyID := GetIdempotencyID(ctx); idempotencyID != "" {
		fields = append(fields, "idempotency_id", idempotencyID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, "service_name", serviceName)
	}

	return fields
}
