package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/abgdnv/gomarketplace/pkg/config"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Resilient decorates a Store with retries and a circuit breaker.
// ErrNotFound and caller cancellation are passed through without retry and do not trip the breaker.
type Resilient struct {
	next    Store
	breaker *gobreaker.CircuitBreaker[[]byte]
	retry   config.RetryConfig
	logger  *slog.Logger
}

func NewResilient(next Store, cfg config.ResilienceConfig, logger *slog.Logger) *Resilient {
	logger = logger.With("component", "storage")
	st := gobreaker.Settings{
		Name:        "cart-storage",
		MaxRequests: 1,
		Timeout:     cfg.CircuitBreaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			total := counts.TotalSuccesses + counts.TotalFailures
			return counts.ConsecutiveFailures > cfg.CircuitBreaker.ConsecutiveFailures ||
				(total > cfg.CircuitBreaker.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(total)*100 > float64(cfg.CircuitBreaker.ErrorRatePercent))
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Resilient{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[[]byte](st),
		retry:   cfg.Retry,
		logger:  logger,
	}
}

func (r *Resilient) Get(ctx context.Context, key string) ([]byte, error) {
	return r.do(ctx, "get", func() ([]byte, error) {
		return r.next.Get(ctx, key)
	})
}

func (r *Resilient) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.do(ctx, "set", func() ([]byte, error) {
		return nil, r.next.Set(ctx, key, value)
	})
	return err
}

func (r *Resilient) Ping(ctx context.Context) error {
	return r.next.Ping(ctx)
}

func (r *Resilient) Close() error {
	return r.next.Close()
}

func (r *Resilient) do(ctx context.Context, op string, fn func() ([]byte, error)) ([]byte, error) {
	var result []byte
	attempt := 0
	operation := func() error {
		attempt++
		v, err := r.breaker.Execute(fn)
		if err == nil {
			result = v
			return nil
		}
		if !retryable(ctx, err) {
			return backoff.Permanent(err)
		}
		r.logger.WarnContext(ctx, "Storage call failed", "op", op, "attempt", attempt, "error", err)
		return err
	}
	if err := backoff.Retry(operation, backoff.WithContext(r.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Resilient) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retry.InitialBackoff
	if r.retry.MaxBackoff > 0 {
		b.MaxInterval = r.retry.MaxBackoff
	}
	b.MaxElapsedTime = 0
	b.Reset()

	retries := uint64(0)
	if r.retry.MaxAttempts > 1 {
		retries = uint64(r.retry.MaxAttempts - 1)
	}
	return backoff.WithMaxRetries(b, retries)
}

func retryable(ctx context.Context, err error) bool {
	switch {
	case ctx.Err() != nil:
		return false
	case errors.Is(err, ErrNotFound),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return false
	default:
		return true
	}
}
