// Package exchange holds exchange-agnostic helpers shared by gateway
// implementations: bounded retry with backoff and the retrying decorator.
package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// RetryPolicy bounds how often a transient failure is retried.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryPolicy is three attempts starting at 500ms.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: 500 * time.Millisecond}

// Do calls fn until it succeeds, returns a non-transient error, or the
// attempts run out. The delay doubles after each failure and the wait
// respects ctx cancellation. Only errors wrapping domain.ErrTransient are
// retried.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, domain.ErrTransient) {
			return err
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return err
}

// retryValue is Do for calls that return a value.
func retryValue[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
