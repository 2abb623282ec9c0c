package ai

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripconcierge/internal/testsupport"
)

type countingBackend struct {
	name  string
	sends atomic.Int32
}

func (c *countingBackend) Name() string { return c.name }

func (c *countingBackend) Send(context.Context, SendRequest) (*SendResult, error) {
	c.sends.Add(1)
	return &SendResult{OK: true, Text: "ok"}, nil
}

func (c *countingBackend) Ping(context.Context) (*PingResult, error) {
	return &PingResult{OK: true}, nil
}

func TestTokenBucketLimiter_Burst(t *testing.T) {
	// 60 req/min = 1 req/sec, burst=2
	limiter := NewTokenBucketLimiter(BackendOpenAI, 60, 2)

	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())
	assert.InDelta(t, 60, limiter.Limit(), 0.001)
}

func TestTokenBucketLimiter_ContextCancellation(t *testing.T) {
	limiter := NewTokenBucketLimiter(BackendOpenAI, 6, 1)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx))
}

func TestRateLimiterFactory_Disabled(t *testing.T) {
	limiter := NewRateLimiterFactory(nil).Create(BackendClaude, -1, 0)
	_, ok := limiter.(*NoOpLimiter)
	assert.True(t, ok)
	assert.Equal(t, float64(-1), limiter.Limit())
}

func TestWithRateLimit_BlocksSend(t *testing.T) {
	inner := &countingBackend{name: BackendEdge}
	b := WithRateLimit(inner, NewTokenBucketLimiter(BackendEdge, 6, 1))
	assert.Equal(t, BackendEdge, b.Name())

	_, err := b.Send(context.Background(), SendRequest{Message: "hi"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = b.Send(ctx, SendRequest{Message: "hi"})

	var rlErr *RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, BackendEdge, rlErr.Backend)
	assert.Equal(t, int32(1), inner.sends.Load())

	// ping is never throttled
	_, err = b.Ping(context.Background())
	assert.NoError(t, err)
}

func TestRedisRateLimiter_Burst(t *testing.T) {
	client := testsupport.NewRedisClient(t)
	ctx := context.Background()

	limiter := NewRedisRateLimiter(client.Client(), BackendOpenAI, 60, 2)
	require.NoError(t, limiter.Reset(ctx))

	ok, err := limiter.tryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.tryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.tryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	assert.Greater(t, time.Since(start), 300*time.Millisecond)
}
