package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter_ZeroRate(t *testing.T) {
	rl := NewRateLimiter(0)
	require.NotNil(t, rl)

	start := time.Now()
	require.NoError(t, rl.WaitN(context.Background(), 500))
	assert.Less(t, time.Since(start), 10*time.Millisecond, "zero rate should not block")
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(1000)

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_WaitNClampsToBurst(t *testing.T) {
	rl := NewRateLimiter(10)
	// 50 > burst of 10 would be an error for rate.Limiter.WaitN.
	require.NoError(t, rl.WaitN(context.Background(), 50))
}

func TestRateLimiter_ContextCancelled(t *testing.T) {
	rl := NewRateLimiter(1)
	_ = rl.Wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, rl.Wait(ctx))
}

func TestRateLimiter_Throttles(t *testing.T) {
	rl := NewRateLimiter(20)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 30; i++ {
		require.NoError(t, rl.Wait(ctx))
	}
	// 20 burst immediately, the remaining 10 need ~500ms at 20/s.
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestRateLimiter_SetRate(t *testing.T) {
	rl := NewRateLimiter(1)
	_ = rl.Wait(context.Background())

	rl.SetRate(0)
	start := time.Now()
	require.NoError(t, rl.Wait(context.Background()))
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestRateLimiter_FractionalRate(t *testing.T) {
	rl := NewRateLimiter(0.5)
	assert.InDelta(t, 0.5, rl.Rate(), 1e-9)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, rl.Wait(ctx), "the first event fits the burst of one")
	assert.Error(t, rl.Wait(ctx), "the second event is two seconds away")
}
