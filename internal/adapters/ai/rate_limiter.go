package ai

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"tripconcierge/pkg/errors"
)

// RateLimiter throttles outbound requests to one backend
type RateLimiter interface {
	// Wait blocks until request can proceed or context is cancelled.
	Wait(ctx context.Context) error

	// Limit returns current rate limit (requests per minute), -1 if unlimited.
	Limit() float64
}

// TokenBucketLimiter is an in-process limiter, suitable for a single replica
type TokenBucketLimiter struct {
	limiter *rate.Limiter
	backend string
}

// NewTokenBucketLimiter creates a limiter allowing reqPerMinute with the given burst.
// A non-positive burst defaults to 10% of the rate.
func NewTokenBucketLimiter(backend string, reqPerMinute float64, burst int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		limiter: rate.NewLimiter(rate.Limit(reqPerMinute/60.0), defaultBurst(reqPerMinute, burst)),
		backend: backend,
	}
}

// Wait blocks until a token is available or context is cancelled
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "rate limiter wait cancelled for backend %s", l.backend)
	}
	return nil
}

// Allow consumes a token if one is available
func (l *TokenBucketLimiter) Allow() bool {
	return l.limiter.Allow()
}

// Limit returns the rate limit in requests per minute
func (l *TokenBucketLimiter) Limit() float64 {
	return float64(l.limiter.Limit()) * 60.0
}

// NoOpLimiter never blocks
type NoOpLimiter struct{}

func NewNoOpLimiter() *NoOpLimiter {
	return &NoOpLimiter{}
}

func (l *NoOpLimiter) Wait(context.Context) error { return nil }

func (l *NoOpLimiter) Limit() float64 { return -1 }

// RateLimiterFactory creates local limiters, or Redis-backed ones when a
// client is given so that replicas share one budget per backend.
type RateLimiterFactory struct {
	redis *redis.Client
}

// NewRateLimiterFactory creates a factory; client may be nil
func NewRateLimiterFactory(client *redis.Client) *RateLimiterFactory {
	return &RateLimiterFactory{redis: client}
}

// Create builds a limiter for backend. reqPerMinute <= 0 disables limiting.
func (f *RateLimiterFactory) Create(backend string, reqPerMinute float64, burst int) RateLimiter {
	if reqPerMinute <= 0 {
		return NewNoOpLimiter()
	}
	if f.redis != nil {
		return NewRedisRateLimiter(f.redis, backend, reqPerMinute, burst)
	}
	return NewTokenBucketLimiter(backend, reqPerMinute, burst)
}

// RateLimitError wraps rate limit related errors with backend context
type RateLimitError struct {
	Backend string
	Limit   float64
	Err     error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit error for backend %s (limit: %.0f req/min): %v", e.Backend, e.Limit, e.Err)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// rateLimited applies a limiter in front of Send; Ping is not throttled
type rateLimited struct {
	Backend
	limiter RateLimiter
}

// WithRateLimit wraps backend so every Send first waits on limiter
func WithRateLimit(backend Backend, limiter RateLimiter) Backend {
	if limiter == nil {
		return backend
	}
	return &rateLimited{Backend: backend, limiter: limiter}
}

func (r *rateLimited) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, &RateLimitError{Backend: r.Name(), Limit: r.limiter.Limit(), Err: err}
	}
	return r.Backend.Send(ctx, req)
}

func defaultBurst(reqPerMinute float64, burst int) int {
	if burst > 0 {
		return burst
	}
	burst = int(reqPerMinute / 10)
	if burst < 1 {
		burst = 1
	}
	return burst
}
