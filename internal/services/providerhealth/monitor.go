// Package providerhealth keeps a TTL-cached liveness verdict per AI backend.
package providerhealth

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"tripconcierge/internal/adapters/ai"
	"tripconcierge/internal/domain/providerhealth"
	"tripconcierge/internal/metrics"
	"tripconcierge/pkg/errors"
	"tripconcierge/pkg/logger"
)

const (
	DefaultTTL          = 30 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// Backends resolves backends by name
type Backends interface {
	Get(name string) (ai.Backend, bool)
	Names() []string
}

type Config struct {
	TTL          time.Duration
	ProbeTimeout time.Duration
	Now          func() time.Time
}

// Monitor owns the process-wide health cache. Reads are cheap; concurrent
// probes of the same backend are collapsed into one outbound ping.
type Monitor struct {
	backends Backends
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]providerhealth.ProviderHealth
	probes  singleflight.Group

	log *logger.Logger
}

func NewMonitor(backends Backends, cfg Config) *Monitor {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Monitor{
		backends: backends,
		ttl:      cfg.TTL,
		timeout:  cfg.ProbeTimeout,
		now:      cfg.Now,
		entries:  make(map[string]providerhealth.ProviderHealth),
		log:      logger.Get().With("component", "provider_health"),
	}
}

// Probe pings the backend now and stores the verdict. Callers probing the
// same backend concurrently share one ping; a caller giving up does not
// abort the shared probe.
func (m *Monitor) Probe(ctx context.Context, id string) providerhealth.ProviderHealth {
	ch := m.probes.DoChan(id, func() (interface{}, error) {
		return m.probe(context.WithoutCancel(ctx), id), nil
	})

	select {
	case res := <-ch:
		return res.Val.(providerhealth.ProviderHealth)
	case <-ctx.Done():
		h := m.Peek(id)
		if !h.Routable() {
			h.Error = ctx.Err().Error()
		}
		return h
	}
}

func (m *Monitor) probe(ctx context.Context, id string) providerhealth.ProviderHealth {
	backend, ok := m.backends.Get(id)
	if !ok {
		h := providerhealth.ProviderHealth{
			ProviderID: id,
			State:      providerhealth.StateUnhealthy,
			CheckedAt:  m.now(),
			Error:      errors.Wrapf(errors.ErrNotFound, "backend %s", id).Error(),
		}
		m.store(h)
		return h
	}

	m.markProbing(id)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	res, err := backend.Ping(ctx)

	h := providerhealth.ProviderHealth{ProviderID: id, CheckedAt: m.now()}
	if res != nil {
		h.Model = res.Model
		h.LatencyMs = res.LatencyMs
	}
	switch {
	case err != nil:
		h.State = providerhealth.StateUnhealthy
		h.Error = err.Error()
	case res == nil || !res.OK:
		h.State = providerhealth.StateUnhealthy
		h.Error = "health endpoint reported not ok"
	default:
		h.Healthy = true
		h.State = providerhealth.StateHealthy
	}

	metrics.RecordProbe(id, h.Healthy)
	if !h.Healthy {
		m.log.Warnw("Provider probe failed", "provider", id, "error", h.Error, "latency_ms", h.LatencyMs)
	} else {
		m.log.Debugw("Provider probe succeeded", "provider", id, "model", h.Model, "latency_ms", h.LatencyMs)
	}

	m.store(h)
	return h
}

// GetCached returns the last verdict, probing synchronously only when the
// entry is missing or older than the TTL
func (m *Monitor) GetCached(ctx context.Context, id string) providerhealth.ProviderHealth {
	if h := m.Peek(id); !h.Stale(m.now(), m.ttl) {
		return h
	}
	return m.Probe(ctx, id)
}

// Peek returns the cached entry without probing; never-probed backends are Unknown
func (m *Monitor) Peek(id string) providerhealth.ProviderHealth {
	m.mu.RLock()
	h, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return providerhealth.ProviderHealth{ProviderID: id, State: providerhealth.StateUnknown}
	}
	return h
}

// Snapshot returns one entry per registered backend, ordered by name
func (m *Monitor) Snapshot() []providerhealth.ProviderHealth {
	names := m.backends.Names()
	out := make([]providerhealth.ProviderHealth, 0, len(names))
	for _, name := range names {
		out = append(out, m.Peek(name))
	}
	return out
}

// RefreshAll probes every registered backend in parallel
func (m *Monitor) RefreshAll(ctx context.Context) []providerhealth.ProviderHealth {
	names := m.backends.Names()
	out := make([]providerhealth.ProviderHealth, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			out[i] = m.Probe(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

// MarkFailure records a failed call so routing skips the backend until
// the entry goes stale
func (m *Monitor) MarkFailure(id string, err error) {
	prev := m.Peek(id)
	h := providerhealth.ProviderHealth{
		ProviderID: id,
		Model:      prev.Model,
		LatencyMs:  prev.LatencyMs,
		State:      providerhealth.StateUnhealthy,
		CheckedAt:  m.now(),
	}
	if err != nil {
		h.Error = err.Error()
	}
	m.store(h)
}

func (m *Monitor) markProbing(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.entries[id]
	if !ok {
		h = providerhealth.ProviderHealth{ProviderID: id}
	}
	h.State = providerhealth.StateProbing
	m.entries[id] = h
}

// last writer wins; health is advisory
func (m *Monitor) store(h providerhealth.ProviderHealth) {
	m.mu.Lock()
	m.entries[h.ProviderID] = h
	m.mu.Unlock()
}
