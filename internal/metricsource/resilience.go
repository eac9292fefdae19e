package metricsource

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"

	"github.com/rollward-systems/rollward/pkg/types"
)

// Resilience defaults for metric source calls. A tick that cannot reach the
// backend fails safe (treated as no data), so retries stay short: they must
// finish well inside one evaluation interval.
const (
	defaultMaxRetries      = 3
	defaultInitialInterval = 500 * time.Millisecond
)

// BreakerQuerier wraps a Querier with a circuit breaker so a dead metrics
// backend fails fast instead of stalling every tick on timeouts.
type BreakerQuerier struct {
	inner   Querier
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerQuerier wraps the querier with a named circuit breaker.
func NewBreakerQuerier(name string, inner Querier) *BreakerQuerier {
	return &BreakerQuerier{
		inner: inner,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Query executes the wrapped query through the breaker.
func (b *BreakerQuerier) Query(ctx context.Context, metric string, rng TimeRange) ([]types.MetricSample, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Query(ctx, metric, rng)
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.MetricSample), nil
}

// RetryQuerier wraps a Querier with bounded exponential backoff for transient
// connectivity errors.
type RetryQuerier struct {
	inner      Querier
	maxRetries uint
}

// NewRetryQuerier wraps the querier with bounded retry.
func NewRetryQuerier(inner Querier) *RetryQuerier {
	return &RetryQuerier{inner: inner, maxRetries: defaultMaxRetries}
}

// Query retries the wrapped query with exponential backoff until the retry
// budget is exhausted or the context is cancelled.
func (r *RetryQuerier) Query(ctx context.Context, metric string, rng TimeRange) ([]types.MetricSample, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = defaultInitialInterval

	return backoff.Retry(ctx, func() ([]types.MetricSample, error) {
		return r.inner.Query(ctx, metric, rng)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(r.maxRetries))
}
