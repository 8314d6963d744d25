package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ExponentialBackoff returns an unlimited exponential backoff with jitter.
func ExponentialBackoff(initial, max time.Duration, multiplier float64) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = multiplier
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// ExponentialBackoffWithMaxElapsed stops producing delays after maxElapsed.
func ExponentialBackoffWithMaxElapsed(initial, max, maxElapsed time.Duration, multiplier float64) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = multiplier
	b.MaxElapsedTime = maxElapsed
	b.Reset()
	return b
}

// ConstantBackoff retries at a fixed interval.
func ConstantBackoff(interval time.Duration) backoff.BackOff {
	return backoff.NewConstantBackOff(interval)
}
