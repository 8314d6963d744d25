package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	ServiceNameGateway      = "api-gateway"
	ServiceNameProcessor    = "message-processor"
	ServiceNameNotification = "notification-service"
)

const (
	DefaultCreatedChannel = "message.created"
	DefaultStatusChannel  = "message.status.updated"
)

const (
	CacheKeyPrefixSeen = "seen:"
)

// Fallback behavior when Redis is unreachable.
const (
	FallbackAllow = "allow"
	FallbackFail  = "fail"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultSeenTTLSeconds = 3600
)
