package di

import (
	"github.com/polyphonica/booking/internal/gateway"
	"github.com/polyphonica/booking/internal/handler"
	"github.com/polyphonica/booking/internal/notify"
	"github.com/polyphonica/booking/internal/repository"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/internal/worker"
	"github.com/polyphonica/booking/pkg/config"
	"github.com/polyphonica/booking/pkg/database"
	"github.com/polyphonica/booking/pkg/kafka"
	"github.com/polyphonica/booking/pkg/logger"
	"github.com/polyphonica/booking/pkg/rabbitmq"
	"github.com/polyphonica/booking/pkg/redis"
	"github.com/polyphonica/booking/pkg/retry"
)

// Container holds all dependencies for the booking service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Gateways
	PaymentGateway gateway.PaymentGateway
	Notifier       *notify.Notifier

	// Repositories
	Repos *repository.Repositories

	// Services
	CatalogService    service.CatalogService
	CheckoutService   service.CheckoutService
	ReconcileService  service.ReconcileService
	BookingService    service.BookingService
	FinanceService    service.FinanceService
	FeeSyncService    service.FeeSyncService
	ExpenseService    service.ExpenseService
	ImportService     service.ImportService
	RepertoireService service.RepertoireService

	// Handlers
	Handlers *handler.Handlers

	// Workers
	OutboxWorker     *worker.OutboxWorker
	HoldSweeper      *worker.HoldSweeper
	FeeSyncScheduler *worker.FeeSyncScheduler
}

// ContainerConfig contains configuration for building the container.
// DB, Redis and the event bus clients are optional; without a DB the
// in-memory repositories are used.
type ContainerConfig struct {
	Config          *config.Config
	DB              *database.PostgresDB
	Redis           *redis.Client
	PaymentGateway  gateway.PaymentGateway
	Mailer          notify.Mailer
	Alerter         notify.Alerter
	KafkaProducer   *kafka.Producer
	RabbitPublisher *rabbitmq.Publisher
	Clock           service.Clock
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	appCfg := cfg.Config
	log := logger.Get().Named("di")

	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		PaymentGateway: cfg.PaymentGateway,
	}

	if c.PaymentGateway == nil {
		mockCfg := gateway.DefaultMockGatewayConfig()
		mockCfg.WebhookSecret = appCfg.Stripe.WebhookSecret
		c.PaymentGateway = gateway.NewMockGateway(mockCfg)
	}

	mailer := cfg.Mailer
	if mailer == nil {
		mailer = notify.NewLogMailer(logger.Get().Named("mailer"))
	}
	alerter := cfg.Alerter
	if alerter == nil {
		alerter, _ = notify.NewTelegramAlerter("", 0, logger.Get().Named("telegram"))
	}
	c.Notifier = notify.NewNotifier(mailer, alerter, appCfg.App.OrgName)

	// Initialize repositories
	if c.DB != nil {
		c.Repos = repository.NewPostgresRepositories(c.DB, appCfg.Events.Topic)
	} else {
		c.Repos, _ = repository.NewMemoryRepositories(appCfg.Events.Topic)
		log.Warn("Using in-memory repositories (data will not persist)")
	}

	// Initialize services
	svcCfg := serviceConfig(appCfg)
	now := cfg.Clock
	c.CatalogService = service.NewCatalogService(c.Repos.Catalog, c.Repos.Ledger, now)
	c.CheckoutService = service.NewCheckoutService(c.Repos, c.PaymentGateway, c.Notifier, svcCfg, now)
	c.ReconcileService = service.NewReconcileService(c.Repos, c.PaymentGateway, c.Notifier, svcCfg, now)
	c.BookingService = service.NewBookingService(c.Repos, c.PaymentGateway, c.Notifier, svcCfg, now)
	c.FinanceService = service.NewFinanceService(c.Repos, now)
	c.FeeSyncService = service.NewFeeSyncService(c.Repos.Finance, c.PaymentGateway, retry.DefaultPolicy(), now)
	c.ExpenseService = service.NewExpenseService(c.Repos, now)
	c.ImportService = service.NewImportService(c.Repos, now)
	c.RepertoireService = service.NewRepertoireService(c.Repos.Repertoire, now)

	// Initialize handlers
	components := map[string]handler.HealthChecker{"postgres": nil, "redis": nil}
	if c.DB != nil {
		components["postgres"] = c.DB
	}
	if c.Redis != nil {
		components["redis"] = c.Redis
	}
	c.Handlers = &handler.Handlers{
		Health:     handler.NewHealthHandler(appCfg.App.Version, components),
		Catalog:    handler.NewCatalogHandler(c.CatalogService),
		Checkout:   handler.NewCheckoutHandler(c.CheckoutService, c.ReconcileService),
		Webhook:    handler.NewWebhookHandler(c.ReconcileService),
		Booking:    handler.NewBookingHandler(c.BookingService),
		Finance:    handler.NewFinanceHandler(c.FinanceService, c.FeeSyncService, appCfg.FeeSync.LookbackDays),
		Expense:    handler.NewExpenseHandler(c.ExpenseService, c.FinanceService),
		Import:     handler.NewImportHandler(c.ImportService),
		Repertoire: handler.NewRepertoireHandler(c.RepertoireService),
	}

	// Initialize workers
	outboxCfg := worker.DefaultOutboxWorkerConfig()
	if appCfg.Events.PollInterval > 0 {
		outboxCfg.PollInterval = appCfg.Events.PollInterval
	}
	c.OutboxWorker = worker.NewOutboxWorker(c.Repos.Outbox, eventPublisher(cfg), appCfg.Events.Bus, outboxCfg)

	sweepCfg := worker.DefaultHoldSweeperConfig()
	if appCfg.Booking.HoldSweepInterval > 0 {
		sweepCfg.ScanInterval = appCfg.Booking.HoldSweepInterval
	}
	c.HoldSweeper = worker.NewHoldSweeper(c.ReconcileService, sweepCfg)

	if appCfg.FeeSync.Enabled {
		var lock worker.LockFunc
		if c.Redis != nil {
			lock = worker.RedisLocker(c.Redis)
		} else {
			log.Warn("Redis unavailable, fee sync runs without a cross-instance lock")
		}
		c.FeeSyncScheduler = worker.NewFeeSyncScheduler(c.FeeSyncService, lock, appCfg.FeeSync.Interval, appCfg.FeeSync.LookbackDays)
	}

	return c
}

func serviceConfig(cfg *config.Config) service.Config {
	return service.Config{
		PublicBaseURL:      cfg.App.PublicBaseURL,
		Currency:           cfg.Stripe.Currency,
		HoldWindow:         cfg.Booking.HoldWindow,
		HoldGrace:          cfg.Booking.HoldGrace,
		RefundCutoffDays:   cfg.Booking.RefundCutoffDays,
		MaxTicketsPerOrder: cfg.Booking.MaxTicketsPerOrder,
		OrgName:            cfg.App.OrgName,
	}
}

// eventPublisher picks the outbox destination for the configured bus. A bus
// whose client failed to connect falls back to logging the events.
func eventPublisher(cfg *ContainerConfig) worker.EventPublisher {
	switch cfg.Config.Events.Bus {
	case config.EventBusKafka:
		if cfg.KafkaProducer != nil {
			return worker.NewKafkaPublisher(cfg.KafkaProducer)
		}
	case config.EventBusRabbitMQ:
		if cfg.RabbitPublisher != nil {
			return worker.NewRabbitPublisher(cfg.RabbitPublisher)
		}
	}
	return worker.NewLogPublisher()
}
