package bootstrap

import (
	"context"
	"sync"

	"tripconcierge/internal/adapters/ai"
	chclient "tripconcierge/internal/adapters/clickhouse"
	"tripconcierge/internal/adapters/config"
	"tripconcierge/internal/adapters/kafka"
	redisclient "tripconcierge/internal/adapters/redis"
	"tripconcierge/internal/adapters/sqldb"
	"tripconcierge/internal/adapters/tripdata"
	"tripconcierge/internal/api"
	"tripconcierge/internal/api/health"
	"tripconcierge/internal/consumers"
	"tripconcierge/internal/domain/usage"
	chrepo "tripconcierge/internal/repository/clickhouse"
	"tripconcierge/internal/services/concierge"
	"tripconcierge/internal/services/providerhealth"
	"tripconcierge/internal/services/ratelimit"
	"tripconcierge/internal/services/router"
	"tripconcierge/internal/services/tripcontext"
	turnlogsvc "tripconcierge/internal/services/turnlog"
	"tripconcierge/internal/workers"
	"tripconcierge/pkg/errors"
	"tripconcierge/pkg/logger"
)

// Version is overridden at build time with -ldflags "-X ..."
var Version = "dev"

// Container holds all application dependencies and their lifecycle.
// Components are grouped in initialization order.
type Container struct {
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure; each is nil unless configuration selects it
	Redis *redisclient.Client
	SQL   *sqldb.Client
	CH    *chclient.Client

	Adapters    *Adapters
	Services    *Services
	Application *Application
	Background  *Background

	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Adapters groups external clients
type Adapters struct {
	KafkaProducer  *kafka.Producer
	TurnsConsumer  *kafka.Consumer
	TripData       *tripdata.Client
	Backends       *ai.Registry
	UsageStore     usage.Store
	TurnRepository *chrepo.TurnLogRepository
}

// Services groups the concierge pipeline
type Services struct {
	Quota     *ratelimit.Service
	Context   *tripcontext.Fetcher
	Health    *providerhealth.Monitor
	Router    *router.Router
	TurnLog   *turnlogsvc.Recorder
	Concierge *concierge.Service
}

type Application struct {
	HTTPServer    *api.Server
	HealthHandler *health.Handler
}

type Background struct {
	WorkerScheduler *workers.Scheduler
	TurnLogConsumer *consumers.TurnLogConsumer
}

func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Adapters:    &Adapters{},
		Services:    &Services{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in order and panics on failure
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitApplication()
	c.MustInitBackground()
}

// Start launches the HTTP server, consumers and workers
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	// a directly-fed ClickHouse sink flushes on its own timer
	if c.Adapters.TurnRepository != nil && c.Background.TurnLogConsumer == nil {
		c.Adapters.TurnRepository.Start(c.Context)
	}

	if svc := c.Background.TurnLogConsumer; svc != nil {
		c.WG.Add(1)
		go func() {
			defer c.WG.Done()
			if err := svc.Start(c.Context); err != nil && c.Context.Err() == nil {
				c.Log.Errorw("Turn log consumer failed", "error", err)
			}
		}()
	}

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorw("HTTP server failed", "error", err)
			c.Cancel()
		}
	}()

	c.Log.Infow("All systems operational",
		"mode", c.Config.App.Mode,
		"backends", c.Adapters.Backends.Names(),
		"usage_store", c.Config.Usage.Store,
		"turn_sinks", c.Services.TurnLog.Len(),
	)
	return nil
}

// Shutdown stops everything in reverse dependency order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")
	c.Cancel()

	directRepo := c.Adapters.TurnRepository
	if c.Background.TurnLogConsumer != nil {
		// the consumer flushes its own writer on exit
		directRepo = nil
	}

	c.Lifecycle.Shutdown(ShutdownTargets{
		WG:              c.WG,
		HTTPServer:      c.Application.HTTPServer,
		WorkerScheduler: c.Background.WorkerScheduler,
		TurnRepository:  directRepo,
		KafkaProducer:   c.Adapters.KafkaProducer,
		SQL:             c.SQL,
		CH:              c.CH,
		Redis:           c.Redis,
		ErrorTracker:    c.ErrorTracker,
	}, c.Log)
}
