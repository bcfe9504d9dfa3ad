package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket over golang.org/x/time/rate.
type RateLimiter struct {
	limiter *rate.Limiter
	burst   int
	rps     int
}

// NewRateLimiter creates a limiter allowing rps requests per second with
// the given burst. Non-positive values fall back to 1.
func NewRateLimiter(rps int, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		burst:   burst,
		rps:     rps,
	}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// TryAcquire attempts to acquire a token without blocking
func (rl *RateLimiter) TryAcquire() bool {
	return rl.limiter.Allow()
}

// Pool hands out one limiter per key (an endpoint URL) sharing the same
// rate and burst.
type Pool struct {
	mu       sync.Mutex
	limiters map[string]*RateLimiter
	rps      int
	burst    int
}

func NewPool(rps, burst int) *Pool {
	return &Pool{
		limiters: make(map[string]*RateLimiter),
		rps:      rps,
		burst:    burst,
	}
}

func (p *Pool) Wait(ctx context.Context, key string) error {
	return p.get(key).Wait(ctx)
}

func (p *Pool) TryAcquire(key string) bool {
	return p.get(key).TryAcquire()
}

func (p *Pool) get(key string) *RateLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[key]; ok {
		return l
	}
	l := NewRateLimiter(p.rps, p.burst)
	p.limiters[key] = l
	return l
}
