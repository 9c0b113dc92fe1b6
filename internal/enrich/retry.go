package enrich

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// RetryPolicy bounds the generic retry wrapper around provider calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy allows five attempts, backing off from 1.5s up to 60s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 1500 * time.Millisecond, MaxDelay: 60 * time.Second}
}

// Delay returns how long to wait after the given failed attempt (1-based).
// A provider-supplied retry-after wins; otherwise the base delay doubles per
// attempt, capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int, err error) time.Duration {
	var re *RetryableError
	if errors.As(err, &re) && re.RetryAfter != nil {
		return *re.RetryAfter
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return min(d, p.MaxDelay)
}

// Retry calls fn until it succeeds, returns a PermanentError, the context is
// cancelled, or MaxAttempts is exhausted. The last failure is returned.
func Retry[T any](ctx context.Context, clock clockwork.Clock, p RetryPolicy, logger *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		var perm *PermanentError
		if errors.As(err, &perm) || attempt >= p.MaxAttempts || ctx.Err() != nil {
			return zero, err
		}

		delay := p.Delay(attempt, err)
		logger.Warn("provider call failed, retrying",
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		if err := sleepWithContext(ctx, clock, delay); err != nil {
			return zero, err
		}
	}
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
