package clients

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"
)

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxAttempts    int           // Total attempts, including the first
	InitialBackoff time.Duration // Backoff before the second attempt
	MaxBackoff     time.Duration // Cap on the backoff between attempts
	BackoffFactor  float64       // Multiplier for exponential backoff
}

// DefaultRetryConfig returns the retry configuration shared by the
// create-product and attach-image calls: up to 4 attempts, backoff
// 2s doubling up to 20s.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     20 * time.Second,
		BackoffFactor:  2.0,
	}
}

// RetryableFunc is an operation that can be retried
type RetryableFunc func(ctx context.Context) error

// Retrier handles retry logic with exponential backoff
type Retrier struct {
	config *RetryConfig
}

// NewRetrier creates a new retrier with the given config
func NewRetrier(config *RetryConfig) *Retrier {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &Retrier{config: config}
}

// Attempts returns the configured total attempt count
func (r *Retrier) Attempts() int {
	return r.config.MaxAttempts
}

// CalculateBackoff calculates the backoff duration after a given
// zero-based attempt
func (r *Retrier) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(r.config.InitialBackoff) * math.Pow(r.config.BackoffFactor, float64(attempt))
	if backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}
	return time.Duration(backoff)
}

// Do executes fn until it succeeds, the attempt budget is spent, or
// retryIf rejects the failure. The last failure is what surfaces.
// Every APIError (status >= 400) and every network-level error is
// retryable under the default predicate; local failures are not.
func (r *Retrier) Do(ctx context.Context, operation string, fn RetryableFunc, retryIf func(error) bool) error {
	if retryIf == nil {
		retryIf = RetryTransient
	}

	var lastErr error
	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !retryIf(lastErr) {
			return lastErr
		}

		if attempt == r.config.MaxAttempts-1 {
			return fmt.Errorf("%s: retries exhausted: %w", operation, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.CalculateBackoff(attempt)):
		}
	}

	return lastErr
}

// RetryTransient is the default retry predicate: any API response with
// status >= 400 and any network-level failure. Validation-style 4xx
// responses are indistinguishable from transient ones here, so they
// are retried too. Local errors and context cancellation are not.
func RetryTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsAPIError(err) {
		return true
	}
	var netErr *url.Error
	return errors.As(err, &netErr)
}
