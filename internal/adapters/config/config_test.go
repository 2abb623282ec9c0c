package config

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripconcierge/pkg/errors"
)

func defaults(t *testing.T) Config {
	t.Helper()
	var cfg Config
	require.NoError(t, envconfig.Process("", &cfg))
	return cfg
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := defaults(t)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "production", cfg.App.Mode)
	assert.Equal(t, "memory", cfg.Usage.Store)
	assert.Equal(t, 5, cfg.Usage.DailyLimit)
	assert.Equal(t, 6, cfg.Prompt.HistoryTurns)
	assert.Equal(t, 15*time.Second, cfg.AI.RequestTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown mode", func(c *Config) { c.App.Mode = "staging" }, "CONCIERGE_MODE"},
		{"unknown store", func(c *Config) { c.Usage.Store = "dynamo" }, "USAGE_STORE"},
		{"zero limit", func(c *Config) { c.Usage.DailyLimit = 0 }, "USAGE_DAILY_LIMIT"},
		{"negative limit", func(c *Config) { c.Usage.DailyLimit = -2 }, "USAGE_DAILY_LIMIT"},
		{"empty free budget", func(c *Config) { c.Prompt.FreeBudgetChars = 0 }, "PROMPT_*_BUDGET_CHARS"},
		{"negative history", func(c *Config) { c.Prompt.HistoryTurns = -1 }, "PROMPT_HISTORY_TURNS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults(t)
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput))

			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidate_UnlimitedAndDemo(t *testing.T) {
	cfg := defaults(t)
	cfg.Usage.DailyLimit = -1
	cfg.App.Mode = "demo"

	assert.NoError(t, cfg.Validate())
}

func TestUsageLocation(t *testing.T) {
	assert.Equal(t, time.Local, UsageConfig{}.Location())
	assert.Equal(t, time.Local, UsageConfig{Timezone: "LOCAL"}.Location())
	assert.Equal(t, time.Local, UsageConfig{Timezone: "Mars/Olympus"}.Location())
	assert.Equal(t, "UTC", UsageConfig{Timezone: "UTC"}.Location().String())
}
