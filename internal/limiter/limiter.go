package limiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Cloudflare API limits: 1200 requests/5min = 4 requests/sec (with burst of 2)
var cloudflareLimiter = rate.NewLimiter(rate.Every(250*time.Millisecond), 2)

// Wait blocks until the limiter allows the request
func Wait(ctx context.Context) error {
	return cloudflareLimiter.Wait(ctx)
}

// SetLimit replaces the shared limiter rate. Tests use it to avoid
// sleeping through the token bucket.
func SetLimit(r rate.Limit, burst int) {
	cloudflareLimiter = rate.NewLimiter(r, burst)
}
