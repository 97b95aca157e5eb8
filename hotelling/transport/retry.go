package transport

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hotelling/hotelling/apperr"
)

// Backoff describes a bounded exponential retry.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// Retry runs fn until it succeeds, attempts run out or ctx ends.
// The final failure is wrapped as TransportFailure.
func Retry(ctx context.Context, b Backoff, logger *zap.Logger, op string, fn func(ctx context.Context) error) error {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	wait := b.Initial
	var err error
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		logger.Warn("transport operation failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == b.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return apperr.Wrap(apperr.CodeTransportFailure, op, ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
		if b.Max > 0 && wait > b.Max {
			wait = b.Max
		}
	}
	return apperr.Wrap(apperr.CodeTransportFailure, op, err)
}
