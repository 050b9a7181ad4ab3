package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"console-service/internal/background"
	"console-service/internal/cache"
	"console-service/internal/config"
	"console-service/internal/handlers"
	"console-service/internal/middleware"
	"console-service/internal/models"
	natsClient "console-service/internal/nats"
	"console-service/internal/redis"
	"console-service/internal/repository"
	"console-service/internal/services"
)

func main() {
	cfg := config.New()
	logger := newLogger(cfg.App)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	if err := autoMigrate(db, logger); err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}

	// Redis backs the second cache level; without it the cache degrades
	// to local-only
	hierarchyCacheCfg := cache.Config{
		Logger:       logger,
		TenantTTL:    cfg.Cache.TenantTTL,
		TreeTTL:      cfg.Cache.TreeTTL,
		LocalTTL:     cfg.Cache.LocalTTL,
		LocalMaxSize: cfg.Cache.LocalMaxSize,
	}
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to Redis, hierarchy cache runs local-only")
		} else {
			logger.Info("Connected to Redis")
			hierarchyCacheCfg.RedisClient = redisClient
			defer redisClient.Close()
		}
	}
	hierarchyCache := cache.New(hierarchyCacheCfg)

	var nc *natsClient.Client
	if cfg.NATS.Enabled {
		nc, err = natsClient.NewClient(&natsClient.Config{URL: cfg.NATS.URL, Logger: logger})
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to NATS, event publishing disabled")
			nc = nil
		} else {
			logger.Info("Connected to NATS")
			defer nc.Close()
		}
	}

	tenantRepo := repository.NewTenantRepository(db)
	agentRepo := repository.NewAgentRepository(db)
	userRepo := repository.NewUserRepository(db)

	var events services.EventPublisher
	if nc != nil {
		events = nc
	}
	tenantSvc := services.NewTenantService(tenantRepo, hierarchyCache, events, logger, cfg.Hierarchy.MaxDepth, cfg.Hierarchy.SlugRetries)
	agentSvc := services.NewAgentService(agentRepo, tenantSvc, logger, cfg.Agent.OfflineThreshold, cfg.Agent.APIKeyExpiryDays)
	userSvc := services.NewUserService(userRepo, tenantSvc, logger)

	healthHandler := handlers.NewHealthHandler(db, nc)
	tenantHandler := handlers.NewTenantHandler(tenantSvc)
	agentHandler := handlers.NewAgentHandler(agentSvc)
	userHandler := handlers.NewUserHandler(userSvc)

	initMetrics(db, tenantRepo, hierarchyCache, logger)

	bgRunner := background.NewRunner(tenantSvc, agentSvc, hierarchyCache, cfg.Retention, logger)
	if err := bgRunner.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start background runner")
	}

	router := setupRouter(cfg, logger, healthHandler, tenantHandler, agentHandler, userHandler)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("Starting console-service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	bgRunner.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func newLogger(cfg config.AppConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	// Keep the package-level logger aligned for code that logs without an
	// injected instance
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logger.GetLevel())
	return logger
}

func setupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	healthHandler *handlers.HealthHandler,
	tenantHandler *handlers.TenantHandler,
	agentHandler *handlers.AgentHandler,
	userHandler *handlers.UserHandler,
) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	corsConfig := cors.DefaultConfig()
	if cfg.App.CORSOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.App.CORSOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", "X-API-Key"}

	router.Use(cors.New(corsConfig))
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(logger))
	router.Use(middleware.Metrics())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		tenants := v1.Group("/tenants")
		{
			tenants.POST("", tenantHandler.Create)
			tenants.GET("", tenantHandler.Search)
			tenants.GET("/roots", tenantHandler.Roots)
			tenants.GET("/check-slug", tenantHandler.CheckSlugAvailability)
			tenants.GET("/max-level", tenantHandler.MaxLevel)
			tenants.GET("/slug/:slug", tenantHandler.GetBySlug)
			tenants.GET("/external/:externalId", tenantHandler.GetByExternalID)
			tenants.GET("/level/:level", tenantHandler.AtLevel)

			tenants.GET("/:id", tenantHandler.Get)
			tenants.PATCH("/:id", tenantHandler.Update)
			tenants.DELETE("/:id", tenantHandler.Delete)
			tenants.POST("/:id/move", tenantHandler.Move)
			tenants.GET("/:id/can-move", tenantHandler.CanMove)
			tenants.GET("/:id/children", tenantHandler.Children)
			tenants.GET("/:id/descendants", tenantHandler.Descendants)
			tenants.GET("/:id/ancestors", tenantHandler.Ancestors)
			tenants.GET("/:id/branch", tenantHandler.ByTypeInBranch)
			tenants.GET("/:id/search", tenantHandler.SearchInSubtree)
			tenants.GET("/:id/stats", tenantHandler.Stats)
			tenants.GET("/:id/activity", tenantHandler.Activity)
			tenants.GET("/:id/agents", agentHandler.ListByTenant)
			tenants.GET("/:id/users", userHandler.ListByTenant)
		}

		agents := v1.Group("/agents")
		{
			agents.POST("", agentHandler.Register)
			agents.GET("/:id", agentHandler.Get)
			agents.DELETE("/:id", agentHandler.Decommission)
			agents.POST("/:id/heartbeat", agentHandler.Heartbeat)
		}

		users := v1.Group("/users")
		{
			users.POST("", userHandler.Create)
			users.GET("/:id", userHandler.Get)
			users.PATCH("/:id", userHandler.Update)
			users.DELETE("/:id", userHandler.Delete)
		}
	}

	return router
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	// TranslateError maps driver unique-violation errors onto
	// gorm.ErrDuplicatedKey, which the slug retry loop depends on
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func autoMigrate(db *gorm.DB, logger *logrus.Logger) error {
	logger.Info("Starting database migration")

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		logger.WithError(err).Warn("Failed to create uuid-ossp extension")
	}

	modelsToMigrate := []interface{}{
		&models.Tenant{},
		&models.TenantActivityLog{},
		&models.Agent{},
		&models.User{},
	}
	for _, model := range modelsToMigrate {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	logger.Info("Database migration completed")
	return nil
}

func initMetrics(db *gorm.DB, tenantRepo *repository.TenantRepository, hierarchyCache *cache.HierarchyCache, logger *logrus.Logger) {
	dbConnectionsOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "console_db_connections_open",
		Help: "Number of open database connections",
	})
	dbConnectionsInUse := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "console_db_connections_in_use",
		Help: "Number of database connections currently in use",
	})
	treeDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "console_tenant_tree_max_level",
		Help: "Deepest level currently present in the tenant tree",
	})
	prometheus.MustRegister(dbConnectionsOpen, dbConnectionsInUse, treeDepth)

	prometheus.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "console_hierarchy_cache_hits_total",
			Help: "Total hierarchy cache hits across both levels",
		},
		func() float64 { return float64(hierarchyCache.Hits()) },
	))
	prometheus.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "console_hierarchy_cache_misses_total",
			Help: "Total hierarchy cache misses",
		},
		func() float64 { return float64(hierarchyCache.Misses()) },
	))

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			sqlDB, err := db.DB()
			if err != nil {
				logger.WithError(err).Warn("Failed to get database instance for metrics")
				continue
			}
			stats := sqlDB.Stats()
			dbConnectionsOpen.Set(float64(stats.OpenConnections))
			dbConnectionsInUse.Set(float64(stats.InUse))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if level, err := tenantRepo.MaxLevel(ctx); err == nil {
				treeDepth.Set(float64(level))
			}
			cancel()
		}
	}()
}
