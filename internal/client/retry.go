package client

import (
	"math/rand"
	"time"
)

// RetryPolicy bounds the client's transient-error retries. Backoff grows
// exponentially from BaseDelay with up to Jitter fraction of random spread.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      float64
}

// DefaultRetryPolicy mirrors the 3-attempt, 2s-base backoff used against
// the Cloudflare API.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Jitter:      0.2,
	}
}

// Backoff returns the delay before the given retry attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay << (attempt - 1)
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter * rand.Float64()
		d += time.Duration(spread)
	}
	return d
}
