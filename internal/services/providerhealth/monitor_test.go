package providerhealth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripconcierge/internal/adapters/ai"
	"tripconcierge/internal/domain/providerhealth"
	"tripconcierge/pkg/errors"
)

type fakeBackend struct {
	name    string
	healthy atomic.Bool
	delay   time.Duration
	pings   atomic.Int32
}

func newFake(name string, healthy bool) *fakeBackend {
	f := &fakeBackend{name: name}
	f.healthy.Store(healthy)
	return f
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Send(context.Context, ai.SendRequest) (*ai.SendResult, error) {
	return nil, errors.ErrNotImplemented
}

func (f *fakeBackend) Ping(ctx context.Context) (*ai.PingResult, error) {
	f.pings.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if !f.healthy.Load() {
		return &ai.PingResult{OK: false, Model: f.name + "-model", LatencyMs: 3}, errors.ErrUnavailable
	}
	return &ai.PingResult{OK: true, Model: f.name + "-model", LatencyMs: 3}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setup(t *testing.T, backends ...ai.Backend) (*Monitor, *clock) {
	t.Helper()
	reg := ai.NewRegistry()
	for _, b := range backends {
		require.NoError(t, reg.Register(b))
	}
	clk := &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewMonitor(reg, Config{TTL: 30 * time.Second, ProbeTimeout: 100 * time.Millisecond, Now: clk.Now}), clk
}

func TestMonitor_NeverProbedIsNotRoutable(t *testing.T) {
	m, _ := setup(t, newFake("claude", true))

	h := m.Peek("claude")
	assert.Equal(t, providerhealth.StateUnknown, h.State)
	assert.False(t, h.Routable())
}

func TestMonitor_ProbeHealthyAndUnhealthy(t *testing.T) {
	good, bad := newFake("claude", true), newFake("openai", false)
	m, _ := setup(t, good, bad)

	h := m.Probe(context.Background(), "claude")
	assert.Equal(t, providerhealth.StateHealthy, h.State)
	assert.True(t, h.Routable())
	assert.Equal(t, "claude-model", h.Model)

	h = m.Probe(context.Background(), "openai")
	assert.Equal(t, providerhealth.StateUnhealthy, h.State)
	assert.False(t, h.Routable())
	assert.NotEmpty(t, h.Error)
}

func TestMonitor_GetCachedRespectsTTL(t *testing.T) {
	b := newFake("claude", true)
	m, clk := setup(t, b)
	ctx := context.Background()

	// never probed: synchronous probe
	assert.True(t, m.GetCached(ctx, "claude").Routable())
	assert.Equal(t, int32(1), b.pings.Load())

	clk.Advance(29 * time.Second)
	assert.True(t, m.GetCached(ctx, "claude").Routable())
	assert.Equal(t, int32(1), b.pings.Load())

	b.healthy.Store(false)
	clk.Advance(2 * time.Second)
	assert.False(t, m.GetCached(ctx, "claude").Routable())
	assert.Equal(t, int32(2), b.pings.Load())
}

func TestMonitor_ProbeTimeout(t *testing.T) {
	b := newFake("gemini", true)
	b.delay = time.Second
	m, _ := setup(t, b)

	start := time.Now()
	h := m.Probe(context.Background(), "gemini")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, h.Routable())
}

func TestMonitor_ConcurrentProbesShareOnePing(t *testing.T) {
	b := newFake("claude", true)
	b.delay = 50 * time.Millisecond
	m, _ := setup(t, b)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, m.Probe(context.Background(), "claude").Routable())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), b.pings.Load())
}

func TestMonitor_UnknownBackend(t *testing.T) {
	m, _ := setup(t)
	h := m.Probe(context.Background(), "nope")
	assert.Equal(t, providerhealth.StateUnhealthy, h.State)
	assert.Contains(t, h.Error, "not found")
}

func TestMonitor_MarkFailure(t *testing.T) {
	b := newFake("claude", true)
	m, clk := setup(t, b)
	ctx := context.Background()

	require.True(t, m.GetCached(ctx, "claude").Routable())
	m.MarkFailure("claude", errors.ErrTimeout)

	h := m.GetCached(ctx, "claude")
	assert.False(t, h.Routable())
	assert.Equal(t, "claude-model", h.Model)
	assert.Equal(t, int32(1), b.pings.Load())

	clk.Advance(31 * time.Second)
	assert.True(t, m.GetCached(ctx, "claude").Routable())
}

func TestMonitor_RefreshAllAndSnapshot(t *testing.T) {
	m, _ := setup(t, newFake("openai", false), newFake("claude", true))

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, providerhealth.StateUnknown, snap[0].State)

	res := m.RefreshAll(context.Background())
	require.Len(t, res, 2)
	assert.Equal(t, "claude", res[0].ProviderID)
	assert.True(t, res[0].Healthy)
	assert.False(t, res[1].Healthy)

	snap = m.Snapshot()
	assert.Equal(t, providerhealth.StateHealthy, snap[0].State)
	assert.Equal(t, providerhealth.StateUnhealthy, snap[1].State)
}
