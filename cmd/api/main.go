package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "energy-billing/api/swagger" // swagger docs
	"energy-billing/internal/config"
	"energy-billing/internal/database"
	"energy-billing/internal/handler"
	"energy-billing/internal/logger"
	"energy-billing/internal/metrics"
	"energy-billing/internal/middleware"
	"energy-billing/internal/repository"
	"energy-billing/internal/runlock"
	"energy-billing/internal/service"
	"energy-billing/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// @title           Energy Billing API
// @version         1.0
// @description     Monthly electricity billing: meters, contracts, hourly readings, billing runs and invoices.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	defer func() { _ = log.Sync() }()

	db, err := database.NewConnection(cfg.Database, logger.NewGormLogger(log, cfg.Database.LogLevel), log)
	if err != nil {
		log.Fatal("Database connection failed", zap.Error(err))
	}

	locker, closeLocker, err := newLocker(cfg, db, log)
	if err != nil {
		log.Fatal("Run lock backend unavailable", zap.Error(err))
	}
	defer closeLocker()

	billingOpts, err := service.BillingOptionsFromConfig(cfg.Billing)
	if err != nil {
		log.Fatal("Invalid billing configuration", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(log)
	go wsHub.Run(ctx)

	auth := middleware.NewAuth(cfg.JWT.Secret)

	// Set up dependencies (Repository -> Service -> Handler)
	meterRepo := repository.NewMeterRepository(db)
	contractRepo := repository.NewContractRepository(db)
	readingRepo := repository.NewReadingRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)
	txManager := repository.NewTransactionManager(db)

	billingService := service.NewBillingService(service.BillingDependencies{
		ContractRepo: contractRepo,
		InvoiceRepo:  invoiceRepo,
		AuditRepo:    auditRepo,
		TxManager:    txManager,
		Usage:        service.NewReadingAggregator(readingRepo),
		Locker:       locker,
		Events:       wsHub,
	}, billingOpts, log)
	invoiceService := service.NewInvoiceService(invoiceRepo, contractRepo, cfg.Billing.PDFDir, log)
	meterService := service.NewMeterService(meterRepo, contractRepo, auditRepo, log)
	contractService := service.NewContractService(contractRepo, meterRepo, auditRepo, txManager, log)
	readingService := service.NewReadingService(readingRepo, meterRepo, auditRepo, log)
	auditService := service.NewAuditService(auditRepo)
	userService := service.NewUserService(userRepo, auditRepo, auth, cfg.JWT.TTL, log)

	if cfg.Admin.Email != "" {
		if err := userService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			log.Fatal("Failed to seed admin account", zap.Error(err))
		}
	}

	// Initialize Handlers
	handlers := []interface{ RegisterRoutes(*gin.RouterGroup) }{
		handler.NewBillingHandler(billingService, auth),
		handler.NewInvoiceHandler(invoiceService, auth),
		handler.NewMeterHandler(meterService, auth),
		handler.NewContractHandler(contractService, auth),
		handler.NewReadingHandler(readingService, auth),
		handler.NewAuditHandler(auditService, auth),
		handler.NewUserHandler(userService, auth),
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(logger.RequestID(), logger.GinMiddleware(log), logger.Recovery(log), metrics.GinMiddleware())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", logger.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	router.GET("/metrics", metrics.Handler())

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, auth, middleware.RoleAdmin, middleware.RoleOperator)
	})

	// API Routing
	for _, h := range handlers {
		h.RegisterRoutes(router.Group(""))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// In-flight billing runs finish or stop at their store timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Billing.StoreTimeout+30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	stop()

	log.Info("Server exited gracefully")
}

// newLocker builds the billing run lease backend selected by BILLING_LOCK_BACKEND.
func newLocker(cfg *config.Config, db *gorm.DB, log *zap.Logger) (runlock.Locker, func(), error) {
	noop := func() {}

	switch cfg.Billing.LockBackend {
	case "memory":
		log.Warn("Billing run lease is process-local; do not run more than one instance")
		return runlock.NewMemoryLocker(), noop, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr(), err)
		}
		log.Info("Billing run lease backed by redis", zap.String("addr", cfg.Redis.Addr()))
		return runlock.NewRedisLocker(client, cfg.Billing.LockTTL), func() { _ = client.Close() }, nil

	default:
		log.Info("Billing run lease backed by the database")
		return runlock.NewGormLocker(db, cfg.Billing.LockTTL), noop, nil
	}
}
