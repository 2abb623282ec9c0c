package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"tripconcierge/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Usage         UsageConfig
	Redis         RedisConfig
	Postgres      PostgresConfig
	SQLite        SQLiteConfig
	ClickHouse    ClickHouseConfig
	Kafka         KafkaConfig
	AI            AIConfig
	Health        HealthConfig
	TripData      TripDataConfig
	Prompt        PromptConfig
	Sessions      SessionConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"tripconcierge"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	// Mode is "production" or "demo"; demo routes every turn to the demo backend
	Mode string `envconfig:"CONCIERGE_MODE" default:"production"`
}

type HTTPConfig struct {
	Port            int           `envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"20s"`
}

// UsageConfig selects the usage store backend and the quota rules
type UsageConfig struct {
	// Store is one of: memory, redis, postgres, sqlite
	Store      string `envconfig:"USAGE_STORE" default:"memory"`
	DailyLimit int    `envconfig:"USAGE_DAILY_LIMIT" default:"5"`
	// Timezone used to compute the next-midnight reset boundary
	Timezone    string        `envconfig:"USAGE_TIMEZONE" default:"Local"`
	LockTTL     time.Duration `envconfig:"USAGE_LOCK_TTL" default:"5s"`
	LockWait    time.Duration `envconfig:"USAGE_LOCK_WAIT" default:"3s"`
	SQLTable    string        `envconfig:"USAGE_SQL_TABLE" default:"concierge_usage"`
	RedisPrefix string        `envconfig:"USAGE_REDIS_PREFIX" default:"concierge:"`
}

// Location resolves the configured timezone, falling back to time.Local
func (c UsageConfig) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"concierge"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"concierge"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type SQLiteConfig struct {
	Path string `envconfig:"SQLITE_PATH" default:"concierge.db"`
}

type ClickHouseConfig struct {
	Enabled       bool          `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host          string        `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port          int           `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User          string        `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password      string        `envconfig:"CLICKHOUSE_PASSWORD"`
	Database      string        `envconfig:"CLICKHOUSE_DB" default:"concierge"`
	BatchSize     int           `envconfig:"CLICKHOUSE_BATCH_SIZE" default:"200"`
	FlushInterval time.Duration `envconfig:"CLICKHOUSE_FLUSH_INTERVAL" default:"10s"`
}

type KafkaConfig struct {
	Enabled    bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers    []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	TurnsTopic string   `envconfig:"KAFKA_TURNS_TOPIC" default:"concierge.turns"`
	GroupID    string   `envconfig:"KAFKA_GROUP_ID" default:"tripconcierge"`
	// ConsumeTurns runs the in-process consumer that moves turn events into ClickHouse
	ConsumeTurns bool `envconfig:"KAFKA_CONSUME_TURNS" default:"true"`
}

type AIConfig struct {
	ClaudeKey   string `envconfig:"CLAUDE_API_KEY"`
	ClaudeModel string `envconfig:"CLAUDE_MODEL" default:"claude-sonnet-4-5"`
	OpenAIKey   string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	GeminiKey   string `envconfig:"GEMINI_API_KEY"`
	GeminiModel string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	EdgeURL     string `envconfig:"EDGE_BACKEND_URL"`
	EdgeKey     string `envconfig:"EDGE_BACKEND_KEY"`

	Primary   string `envconfig:"AI_PRIMARY_PROVIDER" default:"claude"`
	Secondary string `envconfig:"AI_SECONDARY_PROVIDER" default:"openai"`
	Demo      string `envconfig:"AI_DEMO_PROVIDER" default:"gemini"`

	RequestTimeout time.Duration `envconfig:"AI_REQUEST_TIMEOUT" default:"15s"`
	// Outbound requests per minute per backend, -1 = unlimited
	RequestsPerMinute int `envconfig:"AI_REQUESTS_PER_MINUTE" default:"120"`
	MaxTokens         int `envconfig:"AI_MAX_TOKENS" default:"1024"`
}

type HealthConfig struct {
	TTL           time.Duration `envconfig:"PROVIDER_HEALTH_TTL" default:"30s"`
	ProbeTimeout  time.Duration `envconfig:"PROVIDER_PROBE_TIMEOUT" default:"5s"`
	ProbeInterval time.Duration `envconfig:"PROVIDER_PROBE_INTERVAL" default:"30s"`
	ProbeEnabled  bool          `envconfig:"PROVIDER_PROBE_ENABLED" default:"true"`
}

type TripDataConfig struct {
	BaseURL     string        `envconfig:"TRIPDATA_BASE_URL"`
	APIKey      string        `envconfig:"TRIPDATA_API_KEY"`
	TierTimeout time.Duration `envconfig:"TRIPDATA_TIER_TIMEOUT" default:"5s"`
}

type PromptConfig struct {
	FreeBudgetChars int `envconfig:"PROMPT_FREE_BUDGET_CHARS" default:"4000"`
	ProBudgetChars  int `envconfig:"PROMPT_PRO_BUDGET_CHARS" default:"12000"`
	HistoryTurns    int `envconfig:"PROMPT_HISTORY_TURNS" default:"6"`
}

type SessionConfig struct {
	MaxSessions int           `envconfig:"SESSION_MAX" default:"10000"`
	IdleTTL     time.Duration `envconfig:"SESSION_IDLE_TTL" default:"2h"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	switch c.App.Mode {
	case "production", "demo":
	default:
		return errors.NewValidationError("CONCIERGE_MODE", "must be production or demo", c.App.Mode)
	}

	switch c.Usage.Store {
	case "memory", "redis", "postgres", "sqlite":
	default:
		return errors.NewValidationError("USAGE_STORE", "must be memory, redis, postgres or sqlite", c.Usage.Store)
	}

	if c.Usage.DailyLimit < -1 || c.Usage.DailyLimit == 0 {
		return errors.NewValidationError("USAGE_DAILY_LIMIT", "must be -1 (unlimited) or positive", c.Usage.DailyLimit)
	}

	if c.Prompt.FreeBudgetChars <= 0 || c.Prompt.ProBudgetChars <= 0 {
		return errors.NewValidationError("PROMPT_*_BUDGET_CHARS", "must be positive", c.Prompt)
	}

	if c.Prompt.HistoryTurns < 0 {
		return errors.NewValidationError("PROMPT_HISTORY_TURNS", "must not be negative", c.Prompt.HistoryTurns)
	}

	return nil
}
