package bootstrap

import (
	"context"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"tripconcierge/internal/adapters/ai"
	chclient "tripconcierge/internal/adapters/clickhouse"
	"tripconcierge/internal/adapters/config"
	errnoop "tripconcierge/internal/adapters/errors/noop"
	"tripconcierge/internal/adapters/errors/sentry"
	"tripconcierge/internal/adapters/kafka"
	redisclient "tripconcierge/internal/adapters/redis"
	"tripconcierge/internal/adapters/sqldb"
	"tripconcierge/internal/adapters/tripdata"
	"tripconcierge/internal/api"
	conciergeapi "tripconcierge/internal/api/concierge"
	"tripconcierge/internal/api/health"
	providersapi "tripconcierge/internal/api/providers"
	"tripconcierge/internal/consumers"
	"tripconcierge/internal/domain/trip"
	"tripconcierge/internal/domain/usage"
	"tripconcierge/internal/metrics"
	chrepo "tripconcierge/internal/repository/clickhouse"
	"tripconcierge/internal/repository/memory"
	redisrepo "tripconcierge/internal/repository/redis"
	"tripconcierge/internal/repository/sqlstore"
	"tripconcierge/internal/services/concierge"
	"tripconcierge/internal/services/normalizer"
	"tripconcierge/internal/services/prompt"
	"tripconcierge/internal/services/providerhealth"
	"tripconcierge/internal/services/ratelimit"
	"tripconcierge/internal/services/router"
	"tripconcierge/internal/services/tripcontext"
	turnlogsvc "tripconcierge/internal/services/turnlog"
	"tripconcierge/internal/workers"
	"tripconcierge/pkg/errors"
	"tripconcierge/pkg/logger"
)

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration, the logger and the error tracker
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infow("Starting", "app", cfg.App.Name, "env", cfg.App.Env, "version", Version)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)
}

// ========================================
// Phase 2: Infrastructure
// ========================================

// MustInitInfrastructure connects only the stores configuration selects
func (c *Container) MustInitInfrastructure() {
	var err error

	switch c.Config.Usage.Store {
	case "redis":
		c.Log.Info("Connecting to Redis...")
		if c.Redis, err = redisclient.NewClient(c.Config.Redis); err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
	case "postgres":
		c.Log.Info("Connecting to PostgreSQL...")
		if c.SQL, err = sqldb.OpenPostgres(c.Config.Postgres); err != nil {
			c.Log.Fatalf("failed to connect postgres: %v", err)
		}
	case "sqlite":
		c.Log.Infow("Opening SQLite", "path", c.Config.SQLite.Path)
		if c.SQL, err = sqldb.OpenSQLite(c.Config.SQLite); err != nil {
			c.Log.Fatalf("failed to open sqlite: %v", err)
		}
	}

	if c.Config.ClickHouse.Enabled {
		c.Log.Info("Connecting to ClickHouse...")
		if c.CH, err = chclient.NewClient(c.Config.ClickHouse); err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
	}

	c.Log.Info("Infrastructure ready")
}

// ========================================
// Phase 3: Adapters
// ========================================

func (c *Container) MustInitAdapters() {
	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	store, err := provideUsageStore(ctx, c)
	if err != nil {
		c.Log.Fatalf("failed to init usage store: %v", err)
	}
	c.Adapters.UsageStore = store

	var rdb *goredis.Client
	if c.Redis != nil {
		rdb = c.Redis.Client()
	}
	if c.Adapters.Backends, err = ai.BuildRegistry(ctx, c.Config.AI, rdb); err != nil {
		c.Log.Fatalf("failed to init AI backends: %v", err)
	}
	c.Log.Infow("AI backends registered", "backends", c.Adapters.Backends.Names())

	if c.Config.TripData.BaseURL != "" {
		if c.Adapters.TripData, err = tripdata.NewClient(c.Config.TripData, &http.Client{}); err != nil {
			c.Log.Fatalf("failed to init trip data client: %v", err)
		}
	} else {
		c.Log.Warn("TRIPDATA_BASE_URL not set, every turn uses the minimal context")
	}

	// with Kafka on and no in-process consumer, ClickHouse is loaded elsewhere
	feedsClickHouse := !c.Config.Kafka.Enabled || c.Config.Kafka.ConsumeTurns
	if c.CH != nil && feedsClickHouse {
		c.Adapters.TurnRepository = chrepo.NewTurnLogRepository(
			c.CH.Conn(),
			c.Config.ClickHouse.BatchSize,
			c.Config.ClickHouse.FlushInterval,
		)
		if err := c.Adapters.TurnRepository.Migrate(ctx); err != nil {
			c.Log.Fatalf("failed to migrate turn log table: %v", err)
		}
	}

	if c.Config.Kafka.Enabled {
		c.Adapters.KafkaProducer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers: c.Config.Kafka.Brokers,
			Async:   true,
		})
		if c.Adapters.TurnRepository != nil {
			c.Adapters.TurnsConsumer = kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers: c.Config.Kafka.Brokers,
				GroupID: c.Config.Kafka.GroupID,
				Topic:   c.Config.Kafka.TurnsTopic,
			})
		}
	}
}

// ========================================
// Phase 4: Services
// ========================================

func (c *Container) MustInitServices() {
	cfg := c.Config

	var locker ratelimit.Locker
	if c.Redis != nil {
		locker = redisrepo.NewLocker(c.Redis, cfg.Usage.RedisPrefix, cfg.Usage.LockTTL, cfg.Usage.LockWait)
	}
	c.Services.Quota = ratelimit.NewService(c.Adapters.UsageStore, locker, ratelimit.Config{
		DailyLimit: cfg.Usage.DailyLimit,
		Location:   cfg.Usage.Location(),
	})

	c.Services.Context = tripcontext.NewFetcher(provideTiers(c.Adapters.TripData, cfg.TripData.TierTimeout))

	c.Services.Health = providerhealth.NewMonitor(c.Adapters.Backends, providerhealth.Config{
		TTL:          cfg.Health.TTL,
		ProbeTimeout: cfg.Health.ProbeTimeout,
	})

	norm := normalizer.New()
	c.Services.Router = router.New(c.Adapters.Backends, c.Services.Health, norm, router.Config{
		Mode:      router.Mode(cfg.App.Mode),
		Primary:   ai.NormalizeBackendName(cfg.AI.Primary),
		Secondary: ai.NormalizeBackendName(cfg.AI.Secondary),
		Demo:      ai.NormalizeBackendName(cfg.AI.Demo),
		Timeout:   cfg.AI.RequestTimeout,
	})

	c.Services.TurnLog = provideTurnLog(c)

	svc, err := concierge.NewService(concierge.Deps{
		Quota:        c.Services.Quota,
		Context:      c.Services.Context,
		Budgeter:     prompt.NewBudgeter(cfg.Prompt.FreeBudgetChars, cfg.Prompt.ProBudgetChars, cfg.Prompt.HistoryTurns),
		Router:       c.Services.Router,
		Normalizer:   norm,
		SystemPrompt: prompt.SystemPrompt,
		Turns:        c.Services.TurnLog,
	}, concierge.Config{
		HistoryTurns: cfg.Prompt.HistoryTurns,
		MaxTokens:    cfg.AI.MaxTokens,
		MaxSessions:  cfg.Sessions.MaxSessions,
		SessionTTL:   cfg.Sessions.IdleTTL,
	})
	if err != nil {
		c.Log.Fatalf("failed to init concierge: %v", err)
	}
	c.Services.Concierge = svc

	if err := metrics.RegisterStateCollector(metrics.NewStateCollector(c.Services.Health, svc.Sessions())); err != nil {
		c.Log.Warnw("State collector not registered", "error", err)
	}
}

// ========================================
// Phase 5: Application
// ========================================

func (c *Container) MustInitApplication() {
	c.Application.HealthHandler = provideHealthHandler(c)

	c.Application.HTTPServer = api.NewServer(
		api.ServerConfig{
			Port:         c.Config.HTTP.Port,
			ServiceName:  c.Config.App.Name,
			Version:      Version,
			ReadTimeout:  c.Config.HTTP.ReadTimeout,
			WriteTimeout: c.Config.HTTP.WriteTimeout,
		},
		c.Application.HealthHandler,
		conciergeapi.NewHandler(c.Services.Concierge, c.Services.Quota),
		providersapi.NewHandler(c.Services.Health, c.Config.App.Mode),
	)
}

// ========================================
// Phase 6: Background
// ========================================

func (c *Container) MustInitBackground() {
	c.Background.WorkerScheduler = workers.NewScheduler(c.Config.HTTP.ShutdownTimeout)
	c.Background.WorkerScheduler.RegisterWorker(workers.NewHealthProbeWorker(
		c.Services.Health,
		c.Config.Health.ProbeInterval,
		c.Config.Health.ProbeEnabled,
	))

	if c.Adapters.TurnsConsumer != nil {
		c.Background.TurnLogConsumer = consumers.NewTurnLogConsumer(c.Adapters.TurnsConsumer, c.Adapters.TurnRepository)
	}
}

// ========================================
// Providers
// ========================================

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, Version)
	if err != nil {
		log.Warnw("Failed to initialize Sentry", "error", err)
		return errnoop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

func provideUsageStore(ctx context.Context, c *Container) (usage.Store, error) {
	switch c.Config.Usage.Store {
	case "redis":
		return redisrepo.NewUsageStore(c.Redis, c.Config.Usage.RedisPrefix), nil
	case "postgres", "sqlite":
		store, err := sqlstore.NewUsageStore(c.SQL, c.Config.Usage.SQLTable)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		c.Log.Warn("Using in-memory usage store; quotas reset on restart")
		return memory.NewUsageStore(), nil
	}
}

// provideTiers builds enhanced then basic tiers over the trip data API;
// with no client only the synthesized minimal context is available
func provideTiers(client *tripdata.Client, timeout time.Duration) []tripcontext.Tier {
	if client == nil {
		return nil
	}
	return []tripcontext.Tier{
		{Name: trip.TierEnhanced, Source: tripcontext.SourceFunc(client.FetchEnhanced), Timeout: timeout},
		{Name: trip.TierBasic, Source: tripcontext.SourceFunc(client.FetchBasic), Timeout: timeout},
	}
}

// provideTurnLog wires the turn sinks. With Kafka on, turns go to the topic
// and the consumer loads ClickHouse; otherwise ClickHouse is written directly.
func provideTurnLog(c *Container) *turnlogsvc.Recorder {
	rec := turnlogsvc.NewRecorder()

	if p := c.Adapters.KafkaProducer; p != nil {
		rec.Add("kafka", turnlogsvc.NewKafkaSink(p, c.Config.Kafka.TurnsTopic))
	}
	if c.Adapters.TurnRepository != nil && c.Adapters.TurnsConsumer == nil {
		rec.Add("clickhouse", c.Adapters.TurnRepository)
	}
	return rec
}

func provideHealthHandler(c *Container) *health.Handler {
	h := health.New(c.Config.App.Name, Version)

	if c.Redis != nil {
		h.AddCheck("redis", c.Redis.Health, true)
	}
	if c.SQL != nil {
		h.AddCheck(c.SQL.Dialect(), c.SQL.Health, true)
	}
	if c.CH != nil {
		h.AddCheck("clickhouse", c.CH.Health, false)
	}
	if c.Adapters.TripData != nil {
		h.AddCheck("tripdata", c.Adapters.TripData.Ping, false)
	}

	monitor := c.Services.Health
	h.AddCheck("providers", func(context.Context) error {
		for _, p := range monitor.Snapshot() {
			if p.Routable() {
				return nil
			}
		}
		return errors.Wrap(errors.ErrProviderUnavailable, "no routable provider")
	}, false)

	return h
}
