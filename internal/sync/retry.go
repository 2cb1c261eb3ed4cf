package sync

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a failing item is retried. Each failure pushes
// the item's next-attempt time out exponentially; once MaxAttempts
// consecutive failures accumulate the item is parked in the dead-letter
// state for manual resolution instead of retrying forever.
type RetryPolicy struct {
	Initial     time.Duration
	Multiplier  float64
	Cap         time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy retries quickly at first and settles at one attempt per
// hour, giving up after 25 consecutive failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Initial:     30 * time.Second,
		Multiplier:  2.0,
		Cap:         time.Hour,
		MaxAttempts: 25,
	}
}

// Delay returns how long to wait after the given consecutive failure count
// (1 = first failure). Deterministic: no jitter, so tests and the backoff
// schedule are reproducible on-device.
func (p RetryPolicy) Delay(failures int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.Initial
	bo.RandomizationFactor = 0
	bo.Multiplier = p.Multiplier
	bo.MaxInterval = p.Cap
	bo.MaxElapsedTime = 0
	bo.Reset()

	d := bo.NextBackOff()
	for i := 1; i < failures; i++ {
		d = bo.NextBackOff()
	}
	if d > p.Cap {
		d = p.Cap
	}
	return d
}

// Exhausted reports whether the failure count has used up the retry budget.
func (p RetryPolicy) Exhausted(failures int) bool {
	return p.MaxAttempts > 0 && failures >= p.MaxAttempts
}
