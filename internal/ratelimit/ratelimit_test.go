package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJitter(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := Jitter(1500*time.Millisecond, 2500*time.Millisecond)
		assert.GreaterOrEqual(t, d, 1500*time.Millisecond)
		assert.LessOrEqual(t, d, 2500*time.Millisecond)
	}

	assert.Equal(t, time.Second, Jitter(time.Second, time.Second))
	assert.Equal(t, 2*time.Second, Jitter(2*time.Second, time.Second))
	assert.Equal(t, time.Duration(0), Jitter(0, 0))
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), 0))
}

func TestSimpleRateLimiter_FirstCallDoesNotWait(t *testing.T) {
	limiter := NewSimpleRateLimiter(time.Hour, time.Hour)

	start := time.Now()
	require.NoError(t, limiter.Wait(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSimpleRateLimiter_SpacesCalls(t *testing.T) {
	limiter := NewSimpleRateLimiter(50*time.Millisecond, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx))
	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSimpleRateLimiter_CancelledWait(t *testing.T) {
	limiter := NewSimpleRateLimiter(time.Hour, time.Hour)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, limiter.Wait(ctx), context.DeadlineExceeded)
}

func TestAdaptiveRateLimiter_BacksOffAfterErrors(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(2*time.Second, 2*time.Second)

	limiter.RecordError()
	limiter.RecordError()
	minDelay, _ := limiter.Delays()
	assert.Equal(t, 2*time.Second, minDelay, "two errors stay below the threshold")

	limiter.RecordError()
	minDelay, maxDelay := limiter.Delays()
	assert.Equal(t, 4*time.Second, minDelay)
	assert.Equal(t, 4*time.Second, maxDelay)

	for i := 0; i < 5; i++ {
		limiter.RecordSuccess()
	}
	minDelay, _ = limiter.Delays()
	assert.Equal(t, 3*time.Second, minDelay)
}

func TestAdaptiveRateLimiter_RespectsCeiling(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(time.Minute, time.Minute)
	for i := 0; i < 9; i++ {
		limiter.RecordError()
	}

	minDelay, maxDelay := limiter.Delays()
	assert.Equal(t, 2*time.Minute, minDelay)
	assert.Equal(t, 2*time.Minute, maxDelay)
}
