// Package main provides the main entry point for the Instituto Coração Valente integration service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coracaovalente/instituto-integration/app/handlers"
	"github.com/coracaovalente/instituto-integration/app/middleware"
	"github.com/coracaovalente/instituto-integration/app/ratelimit"
	"github.com/coracaovalente/instituto-integration/app/retry"
	"github.com/coracaovalente/instituto-integration/app/router"
	"github.com/coracaovalente/instituto-integration/app/scheduler"
	"github.com/coracaovalente/instituto-integration/app/services"
	businessflow "github.com/coracaovalente/instituto-integration/business_flow"
	"github.com/coracaovalente/instituto-integration/config"
	"github.com/coracaovalente/instituto-integration/repository"
	"github.com/coracaovalente/instituto-integration/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Instituto integration service...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Background workers first so no pass starts against a closing server
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
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

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache returns nil when redis is disabled; the service then runs single-replica
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
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

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis; the returned function stops it
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, logger *log.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if client == nil {
		return cancel
	}
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
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

func initializeInstitutoClient(cfg config.IntegrationConfig, logger *log.Logger) services.InstitutoClient {
	if cfg.MockEnabled {
		logger.Printf("partner API mock enabled (delay=%s, failure rate=%.2f)", cfg.MockDelay, cfg.MockFailureRate)
		return services.NewMockInstitutoClient(cfg.MockDelay, cfg.MockFailureRate)
	}
	return services.NewHTTPInstitutoClient(cfg.HTTPTimeout, cfg.HealthTimeout, cfg.ClientRPS)
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	sink := utils.NewLogSink(utils.LogFileOptions{
		Path:       cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	log.SetOutput(sink)
	appLogger := utils.ComponentLogger("[app]", sink)

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, 30*time.Second, appLogger))

	// Repositories
	queueRepo := repository.NewDeliveryQueueRepository(db)
	logRepo := repository.NewDeliveryLogRepository(db)
	configRepo := repository.NewAPIConfigRepository(db)

	// Rate limiting
	limiterLogger := utils.ComponentLogger("[ratelimit]", sink)
	limiter := ratelimit.New()
	stopFuncs = append(stopFuncs, limiter.StartJanitor(context.Background(), cfg.RateLimit.CleanupInterval, func(n int) {
		limiterLogger.Printf("cleanup removed %d idle entries", n)
	}))

	var recorder ratelimit.StatsRecorder
	if rc != nil {
		recorder = ratelimit.NewRedisStatsRecorder(rc, cfg.Cache.RedisPrefix+"ratelimit:", cfg.RateLimit.StatsRetention)
	}
	institutoLimiter := ratelimit.NewInstitutoLimiter(limiter, ratelimit.Policy{
		UserMaxRequests:   cfg.RateLimit.UserMaxRequests,
		UserWindow:        cfg.RateLimit.UserWindow,
		GlobalMaxRequests: cfg.RateLimit.GlobalMaxRequests,
		GlobalWindow:      cfg.RateLimit.GlobalWindow,
	}, recorder, limiterLogger)

	// Partner configuration and delivery
	cipher, err := services.NewCredentialCipher(cfg.Security.CredentialsEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential cipher: %w", err)
	}
	deliveryLogger := utils.ComponentLogger("[delivery]", sink)
	configs := businessflow.NewCachedConfigProvider(configRepo, cipher, cfg.Integration.ConfigCacheTTL, deliveryLogger)
	client := initializeInstitutoClient(cfg.Integration, deliveryLogger)
	integrationFlow := businessflow.NewIntegrationFlow(institutoLimiter, logRepo, configs, client, deliveryLogger)

	// Retry queue
	var lock scheduler.QueueLock = scheduler.NoopQueueLock{}
	if rc != nil {
		lock = scheduler.NewRedisQueueLock(rc, utils.QueueLockKey, cfg.Integration.QueueLockTTL)
	}
	queue := scheduler.NewIntegrationQueueService(queueRepo, logRepo, integrationFlow, scheduler.QueueOptions{
		Interval:      cfg.Integration.PollInterval,
		BatchSize:     cfg.Integration.BatchSize,
		FallbackDelay: cfg.Integration.FallbackDelay,
		Backoff: retry.Policy{
			MaxAttempts: cfg.Integration.MaxAttempts,
			BaseDelay:   cfg.Integration.BackoffBase,
			MaxDelay:    cfg.Integration.BackoffMax,
			Multiplier:  cfg.Integration.BackoffMultiplier,
			Jitter:      cfg.Integration.BackoffJitter,
		},
		Lock:   lock,
		Logger: utils.ComponentLogger("[queue]", sink),
	})
	integrationFlow.SetEnqueuer(queue)

	if cfg.Integration.QueueEnabled {
		stopFuncs = append(stopFuncs, queue.Start(context.Background()))
		stopFuncs = append(stopFuncs, queue.StartCleanup(
			context.Background(),
			cfg.Integration.CleanupInterval,
			int(cfg.Integration.CleanupOlderThan/time.Hour),
		))
	}

	// Operator side
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	appLogger.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	adminLogger := utils.ComponentLogger("[admin]", sink)
	adminAuthFlow := businessflow.NewAdminAuthFlow(cfg.Admin.Username, cfg.Admin.PasswordHash, tokenService, cfg.JWT.AccessTokenTTL, adminLogger)
	adminFlow := businessflow.NewIntegrationAdminFlow(queue, institutoLimiter, integrationFlow, logRepo, configRepo, configs, cipher, db, adminLogger)

	// Handlers and router
	checks := map[string]router.HealthCheck{
		"database": func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		},
	}
	if rc != nil {
		checks["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return rc.Ping(ctx).Err()
		}
	}

	fiberRouter := router.NewFiberRouter(
		cfg,
		handlers.NewIntegrationHandler(integrationFlow),
		handlers.NewIntegrationAdminHandler(adminFlow),
		handlers.NewAdminHandler(adminAuthFlow),
		middleware.NewAuthMiddleware(tokenService),
		checks,
	)

	return &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
