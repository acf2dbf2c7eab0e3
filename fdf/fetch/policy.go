package fetch

import (
	"math/rand"
	"time"
)

// RetryPolicy makes retry behavior an explicit, testable configuration:
// how many retries transient failures get and how the delay between
// attempts grows.
type RetryPolicy struct {
	MaxRetries  int           // retries after the first attempt
	BackoffBase time.Duration // delay before the first retry
	BackoffMax  time.Duration // cap on the computed delay
	Jitter      float64       // extra random fraction of the delay, 0..1
}

// DefaultRetryPolicy matches the provider guidance: two retries with a
// doubling one-second base.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  2,
		BackoffBase: time.Second,
		BackoffMax:  8 * time.Second,
		Jitter:      0.5,
	}
}

// Backoff returns the delay before retry number attempt (0-based): the
// base doubled per attempt, capped, plus jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BackoffBase << uint(attempt)
	if p.BackoffMax > 0 && d > p.BackoffMax {
		d = p.BackoffMax
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Float64() * p.Jitter * float64(d))
	}
	return d
}
