package ai

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"

	"tripconcierge/internal/adapters/config"
	"tripconcierge/pkg/errors"
)

// BuildRegistry registers every backend that has credentials configured.
// redisClient is optional; when set, outbound rate limits are shared across replicas.
func BuildRegistry(ctx context.Context, cfg config.AIConfig, redisClient *redis.Client) (*Registry, error) {
	registry := NewRegistry()
	limiters := NewRateLimiterFactory(redisClient)
	rpm := float64(cfg.RequestsPerMinute)

	register := func(b Backend) error {
		return registry.Register(WithRateLimit(b, limiters.Create(b.Name(), rpm, 0)))
	}

	if cfg.ClaudeKey != "" {
		if err := register(NewClaudeBackend(cfg.ClaudeKey, cfg.ClaudeModel, "", cfg.RequestTimeout)); err != nil {
			return nil, err
		}
	}

	if cfg.OpenAIKey != "" {
		if err := register(NewOpenAIBackend(cfg.OpenAIKey, cfg.OpenAIModel, "", cfg.RequestTimeout)); err != nil {
			return nil, err
		}
	}

	if cfg.GeminiKey != "" {
		gemini, err := NewGeminiBackend(ctx, cfg.GeminiKey, cfg.GeminiModel, "", cfg.RequestTimeout)
		if err != nil {
			return nil, err
		}
		if err := register(gemini); err != nil {
			return nil, err
		}
	}

	if cfg.EdgeURL != "" {
		if err := register(NewEdgeBackend(cfg.EdgeURL, cfg.EdgeKey, cfg.RequestTimeout)); err != nil {
			return nil, err
		}
	}

	if len(registry.Names()) == 0 {
		return nil, errors.Wrap(errors.ErrUnavailable, "no AI backends configured")
	}

	return registry, nil
}

// NormalizeBackendName makes backend lookup more forgiving
func NormalizeBackendName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
