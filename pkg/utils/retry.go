package utils

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry runs f up to attempts times with exponential backoff starting at
// delay. Errors marked with Permanent stop the loop and are returned unwrapped.
func Retry(ctx context.Context, attempts uint, delay time.Duration, logger *zap.Logger, f func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if attempts == 0 {
		attempts = 1
	}

	var last error
	err := retry.Do(
		func() error {
			last = f()
			return last
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var p *permanentError
			return !errors.As(err, &p)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Retry attempt", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && last == nil {
		return ctxErr
	}
	var p *permanentError
	if errors.As(last, &p) {
		return p.err
	}
	if last != nil {
		return last
	}
	return err
}
