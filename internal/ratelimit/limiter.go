// Package ratelimit paces outbound event delivery.
package ratelimit

import (
	"context"
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter limits events per second. A zero rate disables limiting.
// Fractional rates are allowed: 0.5 sends one event every two seconds.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
}

func NewRateLimiter(eps float64) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(eps), burstFor(eps)),
	}
}

// burstFor allows one second's worth of events, and at least one.
func burstFor(eps float64) int {
	return max(1, int(math.Ceil(eps)))
}

// Wait blocks until one event may be sent.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.WaitN(ctx, 1)
}

// WaitN blocks until n events may be sent. Requests larger than the burst
// are clamped to the burst so a large batch waits rather than failing.
func (r *RateLimiter) WaitN(ctx context.Context, n int) error {
	r.mu.RLock()
	limiter := r.limiter
	limit := limiter.Limit()
	burst := limiter.Burst()
	r.mu.RUnlock()

	if limit <= 0 {
		return ctx.Err()
	}
	n = min(max(n, 1), burst)
	return limiter.WaitN(ctx, n)
}

// Rate returns the current events-per-second limit.
func (r *RateLimiter) Rate() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return float64(r.limiter.Limit())
}

func (r *RateLimiter) SetRate(eps float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiter.SetLimit(rate.Limit(eps))
	r.limiter.SetBurst(burstFor(eps))
}
