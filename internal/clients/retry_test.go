package clients

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRetrier() *Retrier {
	return NewRetrier(&RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	})
}

func TestRetrierSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := testRetrier().Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	}, RetryTransient)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrierRecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	err := testRetrier().Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &APIError{StatusCode: 500, Method: "POST", Path: "/products.json"}
		}
		return nil
	}, RetryTransient)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrierExhaustsAttempts(t *testing.T) {
	calls := 0
	apiErr := &APIError{StatusCode: 429, Method: "POST", Path: "/products.json", Body: "throttled"}
	err := testRetrier().Do(context.Background(), "create product", func(ctx context.Context) error {
		calls++
		return apiErr
	}, RetryTransient)

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Contains(t, err.Error(), "create product: retries exhausted")
	assert.True(t, errors.Is(err, apiErr))
}

func TestRetrierStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	localErr := errors.New("payload too large to encode")
	err := testRetrier().Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return localErr
	}, RetryTransient)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, localErr, err)
}

func TestRetrierHonorsContextDuringBackoff(t *testing.T) {
	retrier := NewRetrier(&RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: time.Minute,
		MaxBackoff:     time.Minute,
		BackoffFactor:  2.0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := retrier.Do(ctx, "op", func(ctx context.Context) error {
		calls++
		return &APIError{StatusCode: 503}
	}, RetryTransient)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoff(t *testing.T) {
	retrier := NewRetrier(DefaultRetryConfig())

	assert.Equal(t, 2*time.Second, retrier.CalculateBackoff(0))
	assert.Equal(t, 4*time.Second, retrier.CalculateBackoff(1))
	assert.Equal(t, 8*time.Second, retrier.CalculateBackoff(2))
	assert.Equal(t, 16*time.Second, retrier.CalculateBackoff(3))
	// capped
	assert.Equal(t, 20*time.Second, retrier.CalculateBackoff(4))
	assert.Equal(t, 20*time.Second, retrier.CalculateBackoff(10))
}

func TestRetryTransient(t *testing.T) {
	assert.False(t, RetryTransient(nil))
	assert.False(t, RetryTransient(context.Canceled))
	assert.False(t, RetryTransient(context.DeadlineExceeded))
	assert.False(t, RetryTransient(errors.New("local failure")))

	assert.True(t, RetryTransient(&APIError{StatusCode: 400}))
	assert.True(t, RetryTransient(&APIError{StatusCode: 503}))
	assert.True(t, RetryTransient(&url.Error{Op: "Post", URL: "https://x", Err: errors.New("connection refused")}))
}
