package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"chimera/internal/domain"
	"chimera/internal/logger"
)

// Policy bounds how often and how long an operation is retried
type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy retries up to 4 times with 500ms, 1s, 2s... capped at 10s
func DefaultPolicy() Policy {
	return Policy{MaxTries: 4, InitialInterval: 500 * time.Millisecond, MaxInterval: 10 * time.Second}
}

// Do runs fn until it succeeds, fails with a non-transient error, the
// attempts are used up or ctx is done. Only domain.TransientSourceError
// failures are retried.
func Do[T any](ctx context.Context, p Policy, log *logger.Logger, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}

	attempt := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !domain.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if log != nil {
				log.Warn("retrying", "op", op, "attempt", attempt, "wait", wait.String(), "error", err.Error())
			}
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return v, err
}
