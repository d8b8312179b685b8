package client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/edgewatch/cloudflare-analytics-exporter/internal/limiter"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/logging"
)

// RetryableClient wraps an HTTP client with bounded retries for transport
// errors, rate limiting and server-side failures.
type RetryableClient struct {
	client *http.Client
	policy RetryPolicy
}

// NewRetryableClient returns a retrying client with a per-request timeout.
func NewRetryableClient(policy RetryPolicy) *RetryableClient {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}
	return &RetryableClient{client: client, policy: policy}
}

// DoRequest performs the request, retrying on network errors, 429 and 5xx
// responses. Any other response is returned to the caller for
// classification.
func (r *RetryableClient) DoRequest(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
		resp, err := r.client.Do(req)
		if err == nil {
			if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
				return resp, nil
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("server responded with status %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		if attempt == r.policy.MaxAttempts {
			break
		}
		logging.Warn("API request failed, retrying...", map[string]interface{}{
			"url":     req.URL.String(),
			"attempt": attempt,
			"error":   lastErr.Error(),
		})
		select {
		case <-time.After(r.policy.Backoff(attempt)):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", r.policy.MaxAttempts, lastErr)
}
