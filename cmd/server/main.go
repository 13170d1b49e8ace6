package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/polyphonica/booking/internal/di"
	"github.com/polyphonica/booking/internal/gateway"
	"github.com/polyphonica/booking/internal/handler"
	"github.com/polyphonica/booking/internal/metrics"
	"github.com/polyphonica/booking/internal/notify"
	"github.com/polyphonica/booking/migrations"
	"github.com/polyphonica/booking/pkg/config"
	"github.com/polyphonica/booking/pkg/database"
	"github.com/polyphonica/booking/pkg/kafka"
	"github.com/polyphonica/booking/pkg/logger"
	"github.com/polyphonica/booking/pkg/middleware"
	"github.com/polyphonica/booking/pkg/rabbitmq"
	pkgredis "github.com/polyphonica/booking/pkg/redis"
	"github.com/polyphonica/booking/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       "info",
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}
	if cfg.IsDevelopment() {
		logCfg.Level = "debug"
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Polyphonica booking service...")

	ctx := context.Background()

	// Initialize telemetry
	tel, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry disabled: %v", err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tel.Shutdown(shutdownCtx)
		}()
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Metrics registration failed: %v", err))
	}

	// Initialize database connection
	var db *database.PostgresDB
	dbCfg := database.DefaultPostgresConfig(cfg.Database.DSN())
	dbCfg.MaxConns = int32(cfg.Database.MaxConns)
	dbCfg.MinConns = int32(cfg.Database.MinConns)
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	dbCfg.EnableTracing = cfg.OTel.Enabled
	db, err = database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Warn(fmt.Sprintf("Database connection failed: %v", err))
		db = nil
	} else {
		defer db.Close()
		appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns))

		if cfg.Database.MigrateOnStart {
			if err := database.Migrate(ctx, dbCfg.DSN, migrations.FS); err != nil {
				appLog.Fatal(fmt.Sprintf("Failed to apply migrations: %v", err))
			}
			appLog.Info("Database migrations applied")
		}
	}

	// Initialize Redis connection
	var redisClient *pkgredis.Client
	redisCfg := &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		KeyPrefix:     cfg.App.Name + ":",
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
	}
	redisClient, err = pkgredis.NewClient(ctx, redisCfg)
	if err != nil {
		appLog.Warn(fmt.Sprintf("Redis connection failed: %v", err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		appLog.Info(fmt.Sprintf("Redis connected (pool: %d, minIdle: %d)", redisCfg.PoolSize, redisCfg.MinIdleConns))
	}

	// Initialize payment gateway based on feature flag
	var paymentGateway gateway.PaymentGateway
	if cfg.Stripe.Gateway == "stripe" {
		stripeGateway, gwErr := gateway.NewStripeGateway(&gateway.StripeGatewayConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Currency:      cfg.Stripe.Currency,
		})
		if gwErr != nil {
			appLog.Fatal(fmt.Sprintf("Failed to create Stripe gateway: %v", gwErr))
		}
		paymentGateway = stripeGateway
		appLog.Info("Using Stripe payment gateway")
	} else {
		appLog.Info("Using mock payment gateway")
	}

	// Initialize notifications
	var mailer notify.Mailer
	if cfg.Email.Enabled {
		smtpMailer, mailErr := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			User:     cfg.Email.User,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
		if mailErr != nil {
			appLog.Fatal(fmt.Sprintf("Failed to configure SMTP mailer: %v", mailErr))
		}
		mailer = smtpMailer
	}
	var alerter notify.Alerter
	telegram, err := notify.NewTelegramAlerter(cfg.Telegram.BotToken, cfg.Telegram.StaffChatID, logger.Get().Named("telegram"))
	if err != nil {
		appLog.Warn(fmt.Sprintf("Telegram alerts disabled: %v", err))
	} else {
		alerter = telegram
	}

	// Initialize event bus
	var kafkaProducer *kafka.Producer
	var rabbitPublisher *rabbitmq.Publisher
	switch cfg.Events.Bus {
	case config.EventBusKafka:
		kafkaProducer, err = kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Events.KafkaBrokers,
			ClientID:      cfg.Events.KafkaClientID,
			MaxRetries:    3,
			RetryInterval: time.Second,
		})
		if err != nil {
			appLog.Warn(fmt.Sprintf("Kafka connection failed, events will be logged only: %v", err))
			kafkaProducer = nil
		} else {
			defer kafkaProducer.Close()
			appLog.Info(fmt.Sprintf("Kafka producer connected (brokers: %v)", cfg.Events.KafkaBrokers))
		}
	case config.EventBusRabbitMQ:
		rabbitPublisher, err = rabbitmq.NewPublisher(rabbitmq.Config{
			URL:      cfg.Events.RabbitMQURL,
			Exchange: cfg.Events.Topic,
		})
		if err != nil {
			appLog.Warn(fmt.Sprintf("RabbitMQ connection failed, events will be logged only: %v", err))
			rabbitPublisher = nil
		} else {
			defer rabbitPublisher.Close()
			appLog.Info("RabbitMQ publisher connected")
		}
	}

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		Config:          cfg,
		DB:              db,
		Redis:           redisClient,
		PaymentGateway:  paymentGateway,
		Mailer:          mailer,
		Alerter:         alerter,
		KafkaProducer:   kafkaProducer,
		RabbitPublisher: rabbitPublisher,
	})

	// Start background workers
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	if err := container.OutboxWorker.Start(workerCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start outbox worker: %v", err))
	}
	if err := container.HoldSweeper.Start(workerCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start hold sweeper: %v", err))
	}
	if container.FeeSyncScheduler != nil {
		if err := container.FeeSyncScheduler.Start(workerCtx); err != nil {
			appLog.Fatal(fmt.Sprintf("Failed to start fee sync scheduler: %v", err))
		}
	}

	// Setup Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Apply middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger.Get().Named("http")))
	router.Use(telemetry.TracingMiddleware())

	// Configure idempotency middleware for checkout (if Redis available)
	var idempotencyConfig *middleware.IdempotencyConfig
	if redisClient != nil {
		idempotencyConfig = middleware.DefaultIdempotencyConfig(redisClient)
	}

	handler.RegisterRoutes(router, container.Handlers, handler.RouteOptions{
		Auth: middleware.AuthConfig{
			Secret: cfg.JWT.Secret,
			Issuer: cfg.JWT.Issuer,
		},
		Idempotency: idempotencyConfig,
	})

	// Create HTTP server
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Booking service listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	if container.FeeSyncScheduler != nil {
		container.FeeSyncScheduler.Stop()
	}
	container.HoldSweeper.Stop()
	container.OutboxWorker.Stop()

	appLog.Info("Server exited gracefully")
}
