// Package main provides the entry point of the SkyPortal source and candidate query service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/skyportal/source-query/app/handlers"
	"github.com/skyportal/source-query/app/middleware"
	"github.com/skyportal/source-query/app/router"
	"github.com/skyportal/source-query/app/services"
	businessflow "github.com/skyportal/source-query/business_flow"
	"github.com/skyportal/source-query/config"
	"github.com/skyportal/source-query/logger"
	"github.com/skyportal/source-query/models"
	"github.com/skyportal/source-query/repository"
	"github.com/skyportal/source-query/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	log       *logger.Logger
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	lg.Info("Starting source query service", "version", cfg.Deployment.Version, "environment", cfg.Deployment.Environment)

	app, err := initializeApplication(cfg, lg)
	if err != nil {
		lg.Fatal("Failed to initialize application", "error", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			lg.Fatal("Failed to start server", "error", err)
		}
	}()

	<-sigChan
	lg.Info("Shutting down gracefully")

	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		lg.Error("Error during shutdown", "error", err)
	}

	lg.Info("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, lg *logger.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if cfg.SlowQueryLog {
		gormCfg.Logger = gormlogger.New(lg.With("component", "gorm").StdLog(), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	lg.Info("Database connection established",
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
		"statement_timeout", cfg.StatementTimeout.String(),
	)
	return db, nil
}

// initializeRedis connects the Redis client backing the query cache. It returns nil when the
// cache does not use Redis.
func initializeRedis(cfg config.CacheConfig, lg *logger.Logger) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	lg.Info("Redis connection established", "redis_url", cfg.RedisURL, "db", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis to surface connectivity issues.
// The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, lg *logger.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					lg.Warn("Redis healthcheck failed", "error", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeQueryCache builds the snapshot cache. A disabled cache yields nil and the flows
// page without snapshots.
func initializeQueryCache(cfg config.CacheConfig, rc *redis.Client, db *gorm.DB, lg *logger.Logger) (services.QueryCache, []func(), error) {
	if !cfg.Enabled {
		lg.Info("Query cache disabled")
		return nil, nil, nil
	}

	var stopFuncs []func()
	cache, err := services.NewQueryCache(cfg, rc, repository.NewQueryCacheRepository(db), lg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize query cache: %w", err)
	}

	switch c := cache.(type) {
	case *services.DatabaseQueryCache:
		stopFuncs = append(stopFuncs, c.StartJanitor(context.Background(), cfg.CleanupInterval))
	case *services.RedisQueryCache:
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.CleanupInterval, lg))
	}

	lg.Info("Query cache initialized", "provider", cfg.Provider, "ttl", cfg.QueryTTL().String())
	return cache, stopFuncs, nil
}

// initializePartitions registers the monthly localization tile partitions from the configured
// first month up to the configured horizon past today
func initializePartitions(cfg config.QueryConfig) (*models.TilePartitionRegistry, error) {
	start, err := cfg.TilePartitionStartTime()
	if err != nil {
		return nil, fmt.Errorf("invalid tile partition start %q: %w", cfg.TilePartitionStart, err)
	}
	until := utils.UTCNow().AddDate(0, cfg.TilePartitionMonthsAhead, 0)
	return models.NewTilePartitionRegistry(start, until), nil
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig, lg *logger.Logger) (*Application, error) {
	db, err := initializeDatabase(cfg.Database, lg)
	if err != nil {
		return nil, err
	}

	rc, err := initializeRedis(cfg.Cache, lg)
	if err != nil {
		return nil, err
	}

	cache, stopFuncs, err := initializeQueryCache(cfg.Cache, rc, db, lg)
	if err != nil {
		return nil, err
	}

	partitions, err := initializePartitions(cfg.Query)
	if err != nil {
		return nil, err
	}

	repos := businessflow.EngineRepositories{
		Localizations: repository.NewLocalizationRepository(db),
		Catalogs:      repository.NewSpatialCatalogRepository(db),
		Queries:       repository.NewSourceQueryRepository(db, cfg.Database.StatementTimeout),
		Hydration:     repository.NewHydrationRepository(db),
	}

	cosmology := services.NewCosmologyService(cfg.Cosmology)
	exporter := services.NewExportService()

	tokenService, err := services.NewTokenService(cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	lg.Info("Token service initialized", "issuer", cfg.JWT.Issuer, "audience", cfg.JWT.Audience)

	sourceFlow := businessflow.NewSourceQueryFlow(repos, partitions, cache, cosmology, exporter, cfg.Query, cfg.Cache, lg.With("flow", "sources"))
	candidateFlow := businessflow.NewCandidateQueryFlow(repos, partitions, cache, cosmology, cfg.Query, cfg.Cache, lg.With("flow", "candidates"))

	sourceHandler := handlers.NewSourceHandler(sourceFlow, cfg.Query.RequestTimeout)
	candidateHandler := handlers.NewCandidateHandler(candidateFlow, cfg.Query.RequestTimeout)
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	appRouter := router.NewFiberRouter(cfg, sourceHandler, candidateHandler, authMiddleware, lg)

	return &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		log:       lg,
		stopFuncs: stopFuncs,
	}, nil
}
