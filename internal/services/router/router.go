// Package router picks an AI backend for a turn and falls back at most once.
package router

import (
	"context"
	"time"

	"tripconcierge/internal/adapters/ai"
	"tripconcierge/internal/domain/providerhealth"
	"tripconcierge/internal/domain/reply"
	"tripconcierge/internal/metrics"
	"tripconcierge/pkg/errors"
	"tripconcierge/pkg/logger"
)

// Mode selects the routing policy
type Mode string

const (
	// ModeProduction routes by health: primary, then secondary, then degraded
	ModeProduction Mode = "production"
	// ModeDemo always uses the demo backend, regardless of health
	ModeDemo Mode = "demo"
)

// DefaultTimeout bounds each outbound provider call
const DefaultTimeout = 15 * time.Second

// Backends resolves backends by name
type Backends interface {
	Get(name string) (ai.Backend, bool)
}

// Health is the router's view of the provider health monitor
type Health interface {
	GetCached(ctx context.Context, id string) providerhealth.ProviderHealth
	MarkFailure(id string, err error)
}

// Normalizer converts raw answers into replies
type Normalizer interface {
	Parse(raw reply.Raw) reply.ConciergeReply
}

type Config struct {
	Mode      Mode
	Primary   string
	Secondary string
	Demo      string
	Timeout   time.Duration
}

// Router is safe for concurrent use; it holds no per-turn state
type Router struct {
	backends   Backends
	health     Health
	normalizer Normalizer
	cfg        Config
	log        *logger.Logger
}

func New(backends Backends, health Health, normalizer Normalizer, cfg Config) *Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeProduction
	}
	return &Router{
		backends:   backends,
		health:     health,
		normalizer: normalizer,
		cfg:        cfg,
		log:        logger.Get().With("component", "router"),
	}
}

// Mode returns the configured routing mode
func (r *Router) Mode() Mode { return r.cfg.Mode }

// Route sends the request and normalizes the answer; it always returns a reply
func (r *Router) Route(ctx context.Context, req ai.SendRequest) reply.ConciergeReply {
	return r.normalizer.Parse(r.Send(ctx, req))
}

// Send issues at most two outbound calls: the selected backend and one
// fallback. A failed result has OK=false and is never an error.
func (r *Router) Send(ctx context.Context, req ai.SendRequest) reply.Raw {
	if r.cfg.Mode == ModeDemo {
		return r.sendDemo(ctx, req)
	}

	candidates := r.candidates()
	for i, id := range candidates {
		if ctx.Err() != nil {
			return failed("", ctx.Err())
		}

		h := r.health.GetCached(ctx, id)
		if !h.Routable() {
			r.log.Debugw("Skipping unhealthy provider", "provider", id, "state", h.State, "error", h.Error)
			if i == 0 && len(candidates) > 1 {
				metrics.ProviderFallbacks.WithLabelValues("primary_unhealthy").Inc()
			}
			continue
		}

		raw, err := r.call(ctx, id, req)
		if err == nil {
			return raw
		}

		r.health.MarkFailure(id, err)
		r.log.Warnw("Provider call failed", "provider", id, "error", err)
		if i == 0 && len(candidates) > 1 {
			metrics.ProviderFallbacks.WithLabelValues("primary_failed").Inc()
		}
	}

	metrics.ProviderFallbacks.WithLabelValues("all_unhealthy").Inc()
	return failed("", errors.Wrap(errors.ErrProviderUnavailable, "no provider answered"))
}

func (r *Router) sendDemo(ctx context.Context, req ai.SendRequest) reply.Raw {
	raw, err := r.call(ctx, r.cfg.Demo, req)
	if err != nil {
		r.log.Warnw("Demo provider call failed", "provider", r.cfg.Demo, "error", err)
		metrics.ProviderFallbacks.WithLabelValues("demo_failed").Inc()
		return failed(r.cfg.Demo, err)
	}
	return raw
}

// candidates returns primary then secondary, without blanks or repeats
func (r *Router) candidates() []string {
	out := make([]string, 0, 2)
	for _, id := range []string{r.cfg.Primary, r.cfg.Secondary} {
		if id == "" || (len(out) > 0 && out[0] == id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (r *Router) call(ctx context.Context, id string, req ai.SendRequest) (reply.Raw, error) {
	backend, ok := r.backends.Get(id)
	if !ok {
		return reply.Raw{}, errors.Wrapf(errors.ErrNotFound, "backend %s not registered", id)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res, err := backend.Send(ctx, req)
	latency := time.Since(start)

	if err == nil && (res == nil || !res.OK) {
		err = errors.Wrap(errors.ErrExternal, "backend returned not ok")
		if res != nil && res.Error != "" {
			err = errors.Wrap(errors.ErrExternal, res.Error)
		}
	}

	var promptTokens, completionTokens int
	if res != nil && res.Usage != nil {
		promptTokens, completionTokens = res.Usage.PromptTokens, res.Usage.CompletionTokens
	}
	metrics.RecordProviderCall(id, latency, promptTokens, completionTokens, err)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = errors.Wrapf(errors.ErrTimeout, "%s after %s: %v", id, r.cfg.Timeout, err)
		}
		return reply.Raw{}, errors.Wrapf(errors.ErrProviderUnavailable, "%s: %v", id, err)
	}

	return reply.Raw{
		Provider: id,
		OK:       true,
		Text:     res.Text,
		Usage:    res.Usage,
		Sources:  res.Sources,
		Model:    res.Model,
	}, nil
}

func failed(provider string, err error) reply.Raw {
	return reply.Raw{Provider: provider, OK: false, Error: err.Error()}
}
