package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	stockapp "github.com/ordersync/backend/internal/application/stock"
	syncapp "github.com/ordersync/backend/internal/application/sync"
	"github.com/ordersync/backend/internal/infrastructure/auth"
	"github.com/ordersync/backend/internal/infrastructure/cache"
	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/marketplace"
	"github.com/ordersync/backend/internal/infrastructure/persistence"
	"github.com/ordersync/backend/internal/infrastructure/storage"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
	"github.com/ordersync/backend/internal/interfaces/http/handler"
	"github.com/ordersync/backend/internal/interfaces/http/middleware"
	"github.com/ordersync/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting Order Sync Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize OpenTelemetry tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Register database query tracing (otelgorm)
	if err := telemetry.RegisterDBTracing(db.DB, cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Initialize repositories
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	movementRepo := persistence.NewGormMovementRepository(db.DB)
	movementRetryRepo := persistence.NewGormMovementRetryRepository(db.DB)
	syncJobRepo := persistence.NewGormSyncJobRepository(db.DB)
	syncLeaseRepo := persistence.NewGormSyncLeaseRepository(db.DB)
	webhookEventRepo := persistence.NewGormWebhookEventRepository(db.DB)

	// Per-order locking: Redis in multi-instance deployments, in-memory
	// fallback when Redis is unreachable
	lockerFactory := cache.NewOrderLockerFactory(cfg.Redis, cache.WithLogger(log))
	orderLocker, err := lockerFactory.CreateLocker()
	if err != nil {
		log.Fatal("Failed to create order locker", zap.Error(err))
	}

	// Register marketplace connectors for the enabled platforms
	registry := marketplace.NewRegistry()
	if cfg.Shopee.Enabled {
		shopeeAdapter, err := marketplace.NewShopeeAdapter(&marketplace.ShopeeConfig{
			PartnerID:      cfg.Shopee.PartnerID,
			PartnerKey:     cfg.Shopee.PartnerKey,
			ShopID:         cfg.Shopee.ShopID,
			AccessToken:    cfg.Shopee.AccessToken,
			RefreshToken:   cfg.Shopee.RefreshToken,
			APIBaseURL:     cfg.Shopee.APIBaseURL,
			IsSandbox:      cfg.Shopee.IsSandbox,
			TimeoutSeconds: cfg.Shopee.TimeoutSeconds,
		})
		if err != nil {
			log.Fatal("Failed to configure Shopee adapter", zap.Error(err))
		}
		registry.Register(shopeeAdapter, marketplace.NewShopeeNormalizer())
		log.Info("Shopee connector registered", zap.Int64("shop_id", cfg.Shopee.ShopID))
	}
	if cfg.Lazada.Enabled {
		lazadaAdapter, err := marketplace.NewLazadaAdapter(&marketplace.LazadaConfig{
			AppKey:         cfg.Lazada.AppKey,
			AppSecret:      cfg.Lazada.AppSecret,
			AccessToken:    cfg.Lazada.AccessToken,
			RefreshToken:   cfg.Lazada.RefreshToken,
			APIBaseURL:     cfg.Lazada.APIBaseURL,
			TimeoutSeconds: cfg.Lazada.TimeoutSeconds,
		})
		if err != nil {
			log.Fatal("Failed to configure Lazada adapter", zap.Error(err))
		}
		registry.Register(lazadaAdapter, marketplace.NewLazadaNormalizer())
		log.Info("Lazada connector registered")
	}
	if len(registry.Platforms()) == 0 {
		log.Warn("No marketplace connectors enabled; sync runs will be no-ops")
	}

	// Warehouse stock movements are booked against
	warehouseID := uuid.Nil
	if cfg.Sync.WarehouseID != "" {
		warehouseID, err = uuid.Parse(cfg.Sync.WarehouseID)
		if err != nil {
			log.Fatal("Invalid sync.warehouse_id", zap.String("value", cfg.Sync.WarehouseID), zap.Error(err))
		}
	} else {
		log.Warn("sync.warehouse_id not configured; movements will use the nil warehouse")
	}

	// Worker identity for platform leases
	workerID := cfg.Sync.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}

	// Webhook payload archive (S3)
	var archiver syncapp.PayloadArchiver
	if cfg.Archive.Enabled {
		s3Archive, err := storage.NewS3Archive(cfg.Archive, log)
		if err != nil {
			log.Fatal("Failed to initialize payload archive", zap.Error(err))
		}
		bucketCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s3Archive.EnsureBucket(bucketCtx); err != nil {
			log.Warn("Payload archive bucket check failed, archival is best effort", zap.Error(err))
		}
		cancel()
		archiver = s3Archive
		log.Info("Payload archive enabled", zap.String("bucket", cfg.Archive.Bucket))
	}

	// Initialize application services
	statusEngine := syncapp.NewStatusEngine(orderRepo, movementRepo, movementRetryRepo, orderLocker, warehouseID, log)
	orchestrator := syncapp.NewOrchestrator(
		registry, statusEngine, syncJobRepo, syncLeaseRepo,
		workerID, cfg.Sync.LeaseTTL, cfg.Sync.DefaultLookback, log,
	)
	reconciler := syncapp.NewReconciler(registry, statusEngine, webhookEventRepo, archiver, log)
	levelService := stockapp.NewLevelService(movementRepo, orderRepo, log)

	// Start the movement retry worker
	retryWorker := syncapp.NewRetryWorker(
		movementRetryRepo, orderRepo, movementRepo, warehouseID,
		cfg.Sync.RetryInterval, cfg.Sync.RetryBatchSize, cfg.Sync.RetryBaseDelay, log,
	)
	retryWorker.Start()
	defer retryWorker.Stop()
	log.Info("Movement retry worker started",
		zap.Duration("interval", cfg.Sync.RetryInterval),
		zap.Int("batch_size", cfg.Sync.RetryBatchSize),
	)

	// JWT auth for the operator API
	jwtService := auth.NewJWTService(cfg.JWT)

	// Initialize HTTP handlers
	webhookHandler := handler.NewWebhookHandler(reconciler, webhookEventRepo, cfg)
	syncHandler := handler.NewSyncHandler(orchestrator, syncJobRepo)
	stockHandler := handler.NewStockHandler(levelService)
	systemHandler := handler.NewSystemHandler(db.DB)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware stack, in order: request ID, panic recovery, request
	// logging, tracing, security headers, CORS, body limit, JWT auth
	engine.Use(logger.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if cfg.Telemetry.Enabled {
		engine.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	}
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{logger.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Platform push endpoints stay unauthenticated; they are verified by
	// signature instead
	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/health",
			"/api/v1/health",
			"/api/v1/system/ping",
		},
		SkipPathPrefixes: []string{
			"/api/v1/webhooks/shopee",
			"/api/v1/webhooks/lazada",
		},
		Logger: log,
	}
	engine.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db))

	// Setup API routes
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(systemHandler).
		Register(webhookHandler).
		Register(syncHandler).
		Register(stockHandler)
	r.Setup()

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

	// Drain webhook events accepted before the listener closed
	reconciler.Wait()

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for the root health check endpoint
func healthHandler(db *persistence.Database) gin.HandlerFunc {
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
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
