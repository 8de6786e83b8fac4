package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	catalogapp "github.com/Memoya/simfly.me-sub000/internal/application/catalog"
	fulfillmentapp "github.com/Memoya/simfly.me-sub000/internal/application/fulfillment"
	healthapp "github.com/Memoya/simfly.me-sub000/internal/application/health"
	pricingapp "github.com/Memoya/simfly.me-sub000/internal/application/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/auth"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/cache"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/carrier"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/config"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/events"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/logger"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/notification"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/payment"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/persistence"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/scheduler"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/storage"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/telemetry"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/handler"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/middleware"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/router"
)

const rateLimitCleanupInterval = 5 * time.Minute

func main() {
	hashPassword := flag.String("hash-password", "", "Print the bcrypt hash of the given admin password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to hash password: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()

	logCfg := &logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	// OpenTelemetry logs bridge, teed after stdout
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize OTEL logs", zap.Error(err))
	}
	log, err := logger.New(logCfg,
		telemetry.NewZapOTELCore(cfg.Telemetry.ServiceName, logProvider, logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting eSIM engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Tracing, metrics and profiling
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilerEnabled,
		ServerAddress:   cfg.Telemetry.ProfilerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}
	defer shutdownTelemetry(log, tracerProvider, meterProvider, logProvider, profiler)

	meter := meterProvider.Meter("simfly-engine")

	// Database
	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), cfg.Database.SlowQueryThresh)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbPlugin, err := telemetry.NewDBPlugin(telemetry.DBConfig{
		TraceEnabled:       cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThresh,
	}, meter, log)
	if err != nil {
		log.Fatal("Failed to create database instrumentation", zap.Error(err))
	}
	if err := dbPlugin.Register(db.DB); err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}
	if err := telemetry.RegisterPoolMetrics(db.DB, meter); err != nil {
		log.Warn("Failed to register pool metrics", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Repositories
	providerRepo := persistence.NewGormProviderRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	offerRepo := persistence.NewGormOfferRepository(db.DB)
	settingsRepo := persistence.NewGormSettingsRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)

	// Caches and idempotency
	stores, err := cache.NewStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize caches", zap.Error(err))
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("Error closing caches", zap.Error(err))
		}
	}()

	// Carriers
	registry, err := carrier.NewRegistryFromConfig(cfg.Providers)
	if err != nil {
		log.Fatal("Failed to build carrier registry", zap.Error(err))
	}
	for _, a := range registry.ListAll() {
		log.Info("Carrier registered", zap.String("slug", a.Slug()), zap.String("name", a.Name()))
	}

	// Outbound collaborators
	notifier, err := notification.NewServices(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize notifications", zap.Error(err))
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			log.Error("Error draining alerts", zap.Error(err))
		}
	}()
	publisher, err := events.NewPublisher(cfg.Kafka, log)
	if err != nil {
		log.Fatal("Failed to initialize event publisher", zap.Error(err))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error("Error closing event publisher", zap.Error(err))
		}
	}()
	archiver, err := storage.NewArchiver(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize snapshot archive", zap.Error(err))
	}

	engineMetrics, err := telemetry.NewEngineMetrics(meter, log)
	if err != nil {
		log.Fatal("Failed to create engine metrics", zap.Error(err))
	}
	defer engineMetrics.Stop()
	if meterProvider.IsEnabled() {
		engineMetrics.StartPeriodicCollection(ctx, telemetry.NewGormProviderStats(db.DB), cfg.Telemetry.MetricsInterval)
	}

	// Application services
	pricingService := pricingapp.NewService(pricingapp.ServiceConfig{
		Candidates: productRepo,
		Offers:     offerRepo,
		Settings:   settingsRepo,
		Cache:      stores.Offers,
		DefaultWeights: pricing.ScoringWeights{
			Cost:        cfg.Pricing.WeightCost,
			Reliability: cfg.Pricing.WeightReliability,
			Priority:    cfg.Pricing.WeightPriority,
		},
		Logger: log,
	})
	syncService := catalogapp.NewSyncService(catalogapp.SyncServiceConfig{
		Registry:  registry,
		Providers: providerRepo,
		Products:  productRepo,
		Pricing:   pricingService,
		Archiver:  archiver,
		Alerter:   notifier.Alerter,
		Metrics:   engineMetrics,
		Policy: provider.HealthPolicy{
			FailureStep:       cfg.Catalog.FailureStep,
			WarningThreshold:  cfg.Catalog.WarningThreshold,
			CriticalThreshold: cfg.Catalog.CriticalThreshold,
		},
		BatchSize:    cfg.Catalog.BatchSize,
		FetchTimeout: cfg.Catalog.FetchTimeout,
		Logger:       log,
	})
	fulfillmentService := fulfillmentapp.NewService(fulfillmentapp.ServiceConfig{
		Orders:         orderRepo,
		Providers:      providerRepo,
		Products:       productRepo,
		Offers:         offerRepo,
		Registry:       registry,
		Mailer:         notifier.Mailer,
		Alerter:        notifier.Alerter,
		Publisher:      publisher,
		Metrics:        engineMetrics,
		Validator:      payment.NewValidator(),
		AttemptTimeout: cfg.Fulfillment.AttemptTimeout,
		RunTimeout:     cfg.Fulfillment.RunTimeout,
		ParallelItems:  cfg.Fulfillment.ParallelItems,
		Logger:         log,
	})
	healthMonitor := healthapp.NewMonitor(healthapp.MonitorConfig{
		Registry:            registry,
		Providers:           providerRepo,
		Alerter:             notifier.Alerter,
		Metrics:             engineMetrics,
		LowBalanceThreshold: decimal.NewFromFloat(cfg.Health.LowBalanceThreshold),
		Logger:              log,
	})

	translator, err := payment.NewStripeWebhookTranslator(cfg.Stripe)
	if err != nil {
		log.Fatal("Failed to initialize Stripe webhook verification", zap.Error(err))
	}
	webhookService := fulfillmentapp.NewWebhookService(fulfillmentapp.WebhookServiceConfig{
		Translator:  translator,
		Idempotency: stores.Idempotency,
		Fulfillment: fulfillmentService,
		EventTTL:    cfg.Stripe.EventDedupeTTL,
		Logger:      log,
	})

	jwtService := auth.NewJWTService(cfg.JWT)
	adminAuth := auth.NewAdminAuthenticator(cfg.Admin, jwtService, stores.Revocations, log)

	// Background jobs
	jobScheduler, err := scheduler.NewScheduler(scheduler.DefaultSchedulerConfig(),
		scheduler.NewEngineExecutor(syncService, healthMonitor, fulfillmentService, log), log)
	if err != nil {
		log.Fatal("Failed to create scheduler", zap.Error(err))
	}
	if err := jobScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer func() {
		if err := jobScheduler.Stop(context.Background()); err != nil {
			log.Error("Error stopping scheduler", zap.Error(err))
		}
	}()

	var triggers []*scheduler.IntervalTrigger
	if cfg.Catalog.SyncEnabled {
		triggers = append(triggers, newTrigger(log, jobScheduler, scheduler.IntervalTriggerConfig{
			Kind:       scheduler.JobKindCatalogSync,
			Interval:   cfg.Catalog.SyncInterval,
			RunOnStart: true,
		}))
	}
	if cfg.Health.Enabled {
		triggers = append(triggers, newTrigger(log, jobScheduler, scheduler.IntervalTriggerConfig{
			Kind:     scheduler.JobKindHealthCheck,
			Interval: cfg.Health.Interval,
		}))
	}
	for _, t := range triggers {
		if err := t.Start(ctx); err != nil {
			log.Fatal("Failed to start trigger", zap.Error(err))
		}
		defer func() {
			if err := t.Stop(context.Background()); err != nil {
				log.Error("Error stopping trigger", zap.Error(err))
			}
		}()
	}
	log.Info("Scheduler started",
		zap.Bool("catalog_sync", cfg.Catalog.SyncEnabled),
		zap.Duration("catalog_sync_interval", cfg.Catalog.SyncInterval),
		zap.Bool("health_check", cfg.Health.Enabled),
	)

	// Set Gin mode based on environment
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	// 7. Tracing, metrics and profiling labels
	// 8. RateLimit - Apply rate limiting (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	tracingConfig := middleware.DefaultTracingConfig()
	tracingConfig.ServiceName = cfg.Telemetry.ServiceName
	tracingConfig.Enabled = tracerProvider.IsEnabled()
	engine.Use(middleware.TracingWithConfig(tracingConfig))
	if tracingConfig.Enabled {
		engine.Use(middleware.TracingAttributeInjector(), middleware.SpanErrorMarker())
	}
	engine.Use(middleware.HTTPMetrics(meterProvider, log))
	if profiler.IsEnabled() {
		engine.Use(middleware.Profiling())
	}

	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	if cfg.HTTP.RateLimitRPS > 0 {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
		go rateLimiter.RunCleanup(rateLimitCleanupInterval, stopCleanup)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Float64("rps", cfg.HTTP.RateLimitRPS),
			zap.Int("burst", cfg.HTTP.RateLimitBurst),
		)
	}

	router.RegisterEngineRoutes(engine, router.Handlers{
		System: handler.NewSystemHandler(cfg.App.Name, telemetry.ServiceVersion,
			handler.ReadinessCheck{Name: "database", Check: db.Ping}),
		Auth:      handler.NewAuthHandler(adminAuth),
		Offers:    handler.NewOfferHandler(pricingService),
		Catalog:   handler.NewCatalogHandler(syncService, jobScheduler),
		Pricing:   handler.NewPricingHandler(pricingService),
		Providers: handler.NewProviderHandler(providerRepo, healthMonitor),
		Orders:    handler.NewOrderHandler(fulfillmentService, jobScheduler),
		Jobs:      handler.NewJobHandler(jobScheduler),
		Payments:  handler.NewPaymentHandler(fulfillmentService),
		Webhooks:  handler.NewStripeWebhookHandler(webhookService),
	}, middleware.AdminAuth(adminAuth, log))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func newTrigger(log *zap.Logger, submitter scheduler.JobSubmitter, cfg scheduler.IntervalTriggerConfig) *scheduler.IntervalTrigger {
	t, err := scheduler.NewIntervalTrigger(cfg, submitter, log)
	if err != nil {
		log.Fatal("Invalid trigger configuration", zap.String("kind", string(cfg.Kind)), zap.Error(err))
	}
	return t
}

func shutdownTelemetry(
	log *zap.Logger,
	tp *telemetry.TracerProvider,
	mp *telemetry.MeterProvider,
	lp *telemetry.LoggerProvider,
	profiler *telemetry.Profiler,
) {
	ctx := context.Background()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := mp.Shutdown(ctx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := lp.Shutdown(ctx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}
}
