package broker

import (
	"context"

	"courier/internal/config"
	"courier/pkg/circuitbreaker"
	"courier/pkg/models"
)

// BreakerProducer wraps a Producer with a circuit breaker so a flapping
// broker sheds load quickly instead of letting every request wait out a
// write timeout.
type BreakerProducer struct {
	inner   Producer
	breaker *circuitbreaker.Wrapper
}

func NewBreakerProducer(inner Producer, cfg config.CircuitBreakerConfig) *BreakerProducer {
	bcfg := circuitbreaker.DefaultConfig("broker-publish")
	if cfg.MaxRequests > 0 {
		bcfg.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		bcfg.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		bcfg.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		bcfg.ReadyToTrip = circuitbreaker.RatioTrip(cfg.FailureRatio, cfg.MinRequests)
	}

	return &BreakerProducer{
		inner:   inner,
		breaker: circuitbreaker.NewWrapper(bcfg),
	}
}

func (p *BreakerProducer) Publish(ctx context.Context, channel string, event *models.Event) error {
	_, err := p.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, p.inner.Publish(ctx, channel, event)
	})
	p.breaker.RecordRequest(err == nil)
	return err
}

// IsOpen reports whether the breaker is currently rejecting publishes.
func (p *BreakerProducer) IsOpen() bool {
	return p.breaker.IsOpen()
}

func (p *BreakerProducer) Close() error {
	return p.inner.Close()
}
