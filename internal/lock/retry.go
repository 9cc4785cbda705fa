package lock

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wanpark/access-server-go/internal/metrics"
	"github.com/wanpark/access-server-go/internal/model"
)

// Retrying retries a Controller a bounded number of times with linear
// backoff. Only the verify and redeem paths use it.
type Retrying struct {
	next     Controller
	attempts int
	backoff  time.Duration
	metrics  *metrics.Registry
}

func NewRetrying(next Controller, attempts int, backoff time.Duration, m *metrics.Registry) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{
		next:     next,
		attempts: attempts,
		backoff:  backoff,
		metrics:  m,
	}
}

// Actuate returns nil on the first successful attempt and the last error
// otherwise. Waiting between attempts stops early if ctx is done.
func (r *Retrying) Actuate(ctx context.Context, lockID string, purpose model.Purpose) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 && r.metrics != nil {
			r.metrics.ActuationRetries.Inc()
		}

		err = r.next.Actuate(ctx, lockID, purpose)
		if err == nil {
			return nil
		}

		log.Warn().
			Err(err).
			Str("lockId", lockID).
			Str("purpose", string(purpose)).
			Int("attempt", attempt).
			Int("maxAttempts", r.attempts).
			Msg("lock actuation failed")

		if attempt == r.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return &HardwareError{LockID: lockID, Driver: "retry", Err: ctx.Err()}
		case <-time.After(r.backoff * time.Duration(attempt)):
		}
	}
	return err
}
