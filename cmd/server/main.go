package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appbilling "github.com/aistudio/backend/internal/application/billing"
	appworkflow "github.com/aistudio/backend/internal/application/workflow"
	"github.com/aistudio/backend/internal/domain/workflow"
	"github.com/aistudio/backend/internal/infrastructure/auth"
	"github.com/aistudio/backend/internal/infrastructure/cache"
	"github.com/aistudio/backend/internal/infrastructure/config"
	"github.com/aistudio/backend/internal/infrastructure/jobengine"
	"github.com/aistudio/backend/internal/infrastructure/logger"
	"github.com/aistudio/backend/internal/infrastructure/persistence"
	"github.com/aistudio/backend/internal/interfaces/http/handler"
	"github.com/aistudio/backend/internal/interfaces/http/middleware"
	"github.com/aistudio/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting AI Studio Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Redis, used as a read-through cache for billing policies
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing redis client", zap.Error(err))
		}
	}()

	// Repositories
	policyRepo := persistence.NewGormPolicyRepository(db.DB)
	ledgerRepo := persistence.NewGormLedgerRepository(db.DB)
	balanceRepo := persistence.NewGormBalanceRepository(db.DB)
	policyCache := cache.NewRedisPolicyCache(redisClient, policyRepo, cfg.Engine.PolicyCacheTTL, log)

	// External workflow engine
	engineAdapter, err := jobengine.NewHTTPEngine(&jobengine.Config{
		BaseURL:          cfg.Engine.BaseURL,
		Token:            cfg.Engine.Token,
		TimeoutSeconds:   cfg.Engine.TimeoutSeconds,
		MaxResponseBytes: cfg.Engine.MaxResponseBytes,
	})
	if err != nil {
		log.Fatal("Failed to configure workflow engine client", zap.Error(err))
	}

	// Application services
	billingService := appbilling.NewService(policyCache, balanceRepo, ledgerRepo, log)
	policyService := appbilling.NewPolicyService(policyRepo, policyCache, log)
	registry := workflow.NewTaskRegistry()
	workflowService := appworkflow.NewService(engineAdapter, registry, billingService, log)

	jwtService := auth.NewJWTService(cfg.JWT)

	// HTTP handlers
	workflowHandler := handler.NewWorkflowHandler(workflowService)
	billingHandler := handler.NewBillingHandler(policyService, billingService)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig()))
	engine.Use(middleware.BodyLimit(1 << 20))

	// Health check endpoint, outside API versioning and authentication
	engine.GET("/health", healthHandler(db))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	jwtConfig := middleware.DefaultJWTConfig(jwtService)
	jwtConfig.Logger = log
	engine.Use(middleware.JWTAuthWithConfig(jwtConfig))

	r.Register(workflowHandler).
		Register(billingHandler)
	r.Setup()

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
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

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

// healthHandler reports liveness and database reachability
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
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
