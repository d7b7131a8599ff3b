package transport

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a minimum spacing between outbound requests. The
// first turn is granted immediately; every later turn waits until
// 60/ratePerMinute seconds have passed since the previous grant.
type RateLimiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// NewRateLimiter builds a limiter from a requests-per-minute budget.
// Non-positive budgets fall back to 60 per minute.
func NewRateLimiter(perMinute float64) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	interval := time.Duration(float64(time.Minute) / perMinute)
	return &RateLimiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Wait blocks until the next turn is granted or the context ends.
func (l *RateLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Interval returns the enforced spacing between turns.
func (l *RateLimiter) Interval() time.Duration {
	return l.interval
}
