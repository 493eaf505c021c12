package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	paymentapp "github.com/payably/backend/internal/application/payment"
	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared"
	"github.com/payably/backend/internal/infrastructure/cache"
	"github.com/payably/backend/internal/infrastructure/config"
	"github.com/payably/backend/internal/infrastructure/gateway"
	"github.com/payably/backend/internal/infrastructure/ledger"
	"github.com/payably/backend/internal/infrastructure/logger"
	"github.com/payably/backend/internal/infrastructure/notify"
	"github.com/payably/backend/internal/infrastructure/persistence"
	"github.com/payably/backend/internal/infrastructure/scheduler"
	"github.com/payably/backend/internal/infrastructure/telemetry"
	"github.com/payably/backend/internal/interfaces/http/handler"
	"github.com/payably/backend/internal/interfaces/http/middleware"
	"github.com/payably/backend/internal/interfaces/http/router"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Payably Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Map the configured log level onto GORM's logger
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)

	// Local payment store
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLogLevel)
	if err != nil {
		log.Fatal("Failed to connect to payment database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing payment database", zap.Error(err))
		}
	}()
	log.Info("Payment database connected")

	// External ledger connection. The ledger is a separate system of record;
	// it gets its own pool so a ledger outage cannot starve local reads.
	ledgerDB, err := persistence.NewDatabaseWithLogger(&cfg.Ledger, gormLogLevel)
	if err != nil {
		log.Fatal("Failed to connect to ledger database", zap.Error(err))
	}
	defer func() {
		if err := ledgerDB.Close(); err != nil {
			log.Error("Error closing ledger database", zap.Error(err))
		}
	}()
	log.Info("Ledger database connected")

	// Initialize telemetry
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Initialize repositories
	paymentRepo := persistence.NewGormPaymentRecordRepository(db.DB)
	scheduleRepo := persistence.NewGormRecurringScheduleRepository(db.DB)

	// Ledger adapters run against the external ledger connection
	ledgerWriter := ledger.NewGormLedgerWriter(ledgerDB.DB)
	invoiceSource := ledger.NewGormInvoiceSource(ledgerDB.DB)

	// Settlement gateways, routed by payment method
	cardCfg := &gateway.Config{
		BaseURL: cfg.CardGateway.BaseURL,
		APIKey:  cfg.CardGateway.APIKey,
		Timeout: cfg.CardGateway.Timeout,
	}
	cardGateway, err := gateway.NewCardGatewayAdapter(cardCfg)
	if err != nil {
		log.Fatal("Invalid card gateway configuration", zap.Error(err))
	}
	achCfg := &gateway.Config{
		BaseURL: cfg.ACHGateway.BaseURL,
		APIKey:  cfg.ACHGateway.APIKey,
		Timeout: cfg.ACHGateway.Timeout,
	}
	achGateway, err := gateway.NewACHGatewayAdapter(achCfg)
	if err != nil {
		log.Fatal("Invalid ACH gateway configuration", zap.Error(err))
	}
	settlementGateway := gateway.NewMethodRoutingGateway(cardGateway, achGateway)

	// Idempotency store: Redis, with an in-memory fallback outside production
	var idempotencyStore shared.IdempotencyStore
	if cfg.Idempotency.Enabled {
		storeFactory := cache.NewIdempotencyStoreFactory(cfg.Redis,
			cache.WithLogger(log),
			cache.WithInMemoryFallback(cfg.App.Env != "production"),
		)
		idempotencyStore, err = storeFactory.CreateStore()
		if err != nil {
			log.Fatal("Failed to create idempotency store", zap.Error(err))
		}
		defer func() {
			if err := idempotencyStore.Close(); err != nil {
				log.Error("Error closing idempotency store", zap.Error(err))
			}
		}()
		log.Info("Idempotency store ready", zap.Duration("ttl", cfg.Idempotency.TTL))
	} else {
		log.Warn("Idempotency guard disabled; duplicate submissions rely on the transaction ID check only")
	}

	// Terminal-failure notifications: webhook when configured, log sink otherwise
	var notifier payment.NotificationSink
	if cfg.Webhook.URL != "" {
		webhookSink, err := notify.NewWebhookNotificationSink(&notify.WebhookConfig{
			URL:     cfg.Webhook.URL,
			Secret:  cfg.Webhook.Secret,
			Timeout: cfg.Webhook.Timeout,
		})
		if err != nil {
			log.Fatal("Failed to create webhook notification sink", zap.Error(err))
		}
		notifier = webhookSink
		log.Info("Failure notifications via webhook", zap.String("url", cfg.Webhook.URL))
	} else {
		notifier = notify.NewLogNotificationSink(log)
	}

	// Initialize application services
	feeCalc, err := payment.NewFeeCalculator(decimal.NewFromFloat(cfg.Fee.Rate))
	if err != nil {
		log.Fatal("Failed to create fee calculator", zap.Error(err))
	}

	chargeTimeout := cfg.CardGateway.Timeout
	if cfg.ACHGateway.Timeout > chargeTimeout {
		chargeTimeout = cfg.ACHGateway.Timeout
	}

	paymentService := paymentapp.NewPaymentService(
		paymentRepo,
		scheduleRepo,
		settlementGateway,
		ledgerWriter,
		invoiceSource,
		notifier,
		feeCalc,
		idempotencyStore,
		chargeTimeout,
		log,
	)
	scheduleService := paymentapp.NewScheduleService(scheduleRepo, log)
	reconciliationService := paymentapp.NewReconciliationService(paymentRepo, ledgerWriter, log)

	// Scheduled payment processing (if enabled)
	if cfg.Scheduler.Enabled {
		processor := paymentapp.NewScheduledPaymentProcessor(paymentRepo, scheduleRepo, paymentService, feeCalc, log)

		schedulerConfig := scheduler.SchedulerConfig{
			Enabled:           cfg.Scheduler.Enabled,
			MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
			JobTimeout:        cfg.Scheduler.JobTimeout,
			MaxAttempts:       cfg.Scheduler.MaxAttempts,
			Backoff:           scheduler.DefaultSchedulerConfig().Backoff,
		}
		paymentScheduler := scheduler.NewScheduler(schedulerConfig, processor, log)
		if err := paymentScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start payment scheduler", zap.Error(err))
		}
		defer func() {
			if err := paymentScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping payment scheduler", zap.Error(err))
			}
		}()

		dueTrigger := scheduler.NewDueTrigger(scheduler.DueTriggerConfig{
			PollInterval: cfg.Scheduler.PollInterval,
			BatchLimit:   cfg.Scheduler.BatchLimit,
		}, paymentScheduler, processor, log)
		if err := dueTrigger.Start(context.Background()); err != nil {
			log.Fatal("Failed to start due trigger", zap.Error(err))
		}
		defer func() {
			if err := dueTrigger.Stop(context.Background()); err != nil {
				log.Error("Error stopping due trigger", zap.Error(err))
			}
		}()

		log.Info("Payment scheduler started",
			zap.Int("max_concurrent_jobs", cfg.Scheduler.MaxConcurrentJobs),
			zap.Duration("job_timeout", cfg.Scheduler.JobTimeout),
			zap.Duration("poll_interval", cfg.Scheduler.PollInterval),
		)
	}

	// Initialize HTTP handlers
	paymentHandler := handler.NewPaymentHandler(paymentService)
	scheduleHandler := handler.NewScheduleHandler(scheduleService)
	reconciliationHandler := handler.NewReconciliationHandler(reconciliationService)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Tracing - Propagate trace context (if telemetry enabled)
	// 5. Security - Add security headers
	// 6. CORS - Handle cross-origin requests
	// 7. BodyLimit - Limit request body size
	// 8. RateLimit - Apply rate limiting (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.Tracing())
	}
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, ledgerDB))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Payment domain (one-time payments, settlement events)
	paymentRoutes := router.NewDomainGroup("payments", "/payments")
	paymentRoutes.POST("", paymentHandler.PayNow)
	paymentRoutes.GET("", paymentHandler.List)
	paymentRoutes.GET("/transaction/:transaction_id", paymentHandler.GetByTransactionID)
	paymentRoutes.GET("/:id", paymentHandler.GetByID)
	paymentRoutes.POST("/settlement-events", paymentHandler.ApplySettlementEvent)
	paymentRoutes.POST("/:id/void", paymentHandler.Void)
	paymentRoutes.POST("/:id/refund", paymentHandler.Refund)

	// Schedule domain (recurring payment plans)
	scheduleRoutes := router.NewDomainGroup("schedules", "/schedules")
	scheduleRoutes.POST("", scheduleHandler.Create)
	scheduleRoutes.GET("", scheduleHandler.List)
	scheduleRoutes.GET("/:id", scheduleHandler.GetByID)
	scheduleRoutes.POST("/:id/pause", scheduleHandler.Pause)
	scheduleRoutes.POST("/:id/resume", scheduleHandler.Resume)
	scheduleRoutes.POST("/:id/cancel", scheduleHandler.Cancel)
	scheduleRoutes.POST("/:id/skip", scheduleHandler.Skip)
	scheduleRoutes.PUT("/:id/next-date", scheduleHandler.AdjustNextDate)
	scheduleRoutes.PUT("/:id/payment-method", scheduleHandler.SetPaymentMethod)

	// Reconciliation domain (ledger write backlog)
	reconciliationRoutes := router.NewDomainGroup("reconciliation", "/reconciliation")
	reconciliationRoutes.GET("/backlog", reconciliationHandler.Backlog)
	reconciliationRoutes.POST("/:id/retry", reconciliationHandler.Retry)

	// System routes
	systemHandler := handler.NewSystemHandler()
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	// Register all domain groups
	r.Register(paymentRoutes).
		Register(scheduleRoutes).
		Register(reconciliationRoutes).
		Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler reports the state of both database connections. The ledger
// being unreachable degrades the service but does not make it unhealthy:
// payments still settle, ledger writes queue up in the reconciliation backlog.
func healthHandler(db, ledgerDB *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)

		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}

		ledgerStatus := "ok"
		status := "healthy"
		if err := ledgerDB.Ping(); err != nil {
			reqLog.Warn("Ledger unreachable", zap.Error(err))
			ledgerStatus = "error"
			status = "degraded"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   status,
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
			"ledger":   ledgerStatus,
		})
	}
}
