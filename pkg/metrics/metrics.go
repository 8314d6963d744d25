package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_messages_created_total",
			Help: "Total number of message creation requests handled by the gateway (count)",
		},
		[]string{"status"},
	)

	MessageCreateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_message_create_duration_ms",
			Help:    "Duration of message creation (store write + publish) in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"status"},
	)

	StatusQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_status_queries_total",
			Help: "Total number of status queries handled by the gateway (count)",
		},
		[]string{"result"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_events_published_total",
			Help: "Total number of events handed to the broker publisher (count)",
		},
		[]string{"service", "event_type", "status"},
	)

	ProcessorEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_events_total",
			Help: "Total number of events handled by the message processor (count)",
		},
		[]string{"status"},
	)

	ProcessorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "processor_processing_duration_ms",
			Help:    "Processing duration for the message processor in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of status updates seen by the notification service (count)",
		},
		[]string{"outcome"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_retry_attempts_total",
			Help: "Total number of consumer processing retries (count)",
		},
		[]string{"service", "channel"},
	)

	DLQEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_dlq_events_total",
			Help: "Total number of events routed to the dead letter queue (count)",
		},
		[]string{"service", "event_type"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)
)

func RegisterGatewayMetrics() {
	prometheus.MustRegister(MessagesCreatedTotal)
	prometheus.MustRegister(MessageCreateDuration)
	prometheus.MustRegister(StatusQueriesTotal)
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterProcessorMetrics() {
	prometheus.MustRegister(ProcessorEventsTotal)
	prometheus.MustRegister(ProcessorDuration)
	prometheus.MustRegister(EventsPublishedTotal)
}

func RegisterNotificationMetrics() {
	prometheus.MustRegister(NotificationsTotal)
}

func RegisterConsumerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQEventsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}
