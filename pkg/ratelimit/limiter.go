// Package ratelimit provides a consistent interface for controlling the pace
// of operations, backed by Uber's token bucket rate limiter. In this library
// it caps outbound WebSocket message issuance when a session is configured
// with a send rate.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/ratelimit"
)

// Rate describes a limit of Limit operations per Interval. The zero value
// means unlimited.
type Rate struct {
	Limit    int
	Interval time.Duration
}

// RateLimiter paces operations according to a configured Rate.
type RateLimiter interface {
	// Wait blocks until an operation is permitted or the context is
	// cancelled before a token could be acquired.
	Wait(ctx context.Context) error

	// SetLimit replaces the rate at runtime. It returns an error for a
	// non-positive limit or interval.
	SetLimit(rate Rate) error
}

// uberLimiter implements RateLimiter using go.uber.org/ratelimit.
type uberLimiter struct {
	limiter ratelimit.Limiter
	rate    Rate
}

// NewTokenBucketLimiter creates a rate limiter allowing rate.Limit operations
// per rate.Interval, converted to operations per second for the underlying
// token bucket.
func NewTokenBucketLimiter(rate Rate) RateLimiter {
	rps := float64(rate.Limit) / rate.Interval.Seconds()
	return &uberLimiter{
		limiter: ratelimit.New(int(rps)),
		rate:    rate,
	}
}

// Wait implements the RateLimiter interface.
func (l *uberLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait cancelled: %w", ctx.Err())
	default:
		l.limiter.Take()
		return nil
	}
}

// SetLimit implements the RateLimiter interface.
func (l *uberLimiter) SetLimit(rate Rate) error {
	if rate.Limit <= 0 || rate.Interval <= 0 {
		return fmt.Errorf("invalid rate limit: %+v", rate)
	}
	rps := float64(rate.Limit) / rate.Interval.Seconds()
	l.limiter = ratelimit.New(int(rps))
	l.rate = rate
	return nil
}
