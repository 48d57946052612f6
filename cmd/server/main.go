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

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultgrid/internal/config"
	"github.com/ethpandaops/resultgrid/internal/handlers"
	"github.com/ethpandaops/resultgrid/internal/loader"
	"github.com/ethpandaops/resultgrid/internal/query"
	"github.com/ethpandaops/resultgrid/internal/querycache"
	"github.com/ethpandaops/resultgrid/internal/ratelimit"
	"github.com/ethpandaops/resultgrid/internal/redis"
	"github.com/ethpandaops/resultgrid/internal/server"
	"github.com/ethpandaops/resultgrid/internal/version"
)

// infrastructure holds core infrastructure components.
type infrastructure struct {
	// redisClient is nil unless a component needs Redis.
	redisClient redis.Client
}

// services holds application services.
type services struct {
	cache   querycache.Cache
	loader  *loader.Loader
	views   *loader.Views
	limiter ratelimit.Limiter
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup logger
	logger := setupLogger()

	// Create application context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load and validate configuration
	cfg, err := loadAndValidateConfig(logger, *configPath)
	if err != nil {
		logger.WithError(err).Fatal("Configuration error")
	}

	// Setup infrastructure (redis)
	infra, err := setupInfrastructure(ctx, logger, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Infrastructure setup failed")
	}

	// Setup services (query client, cache, loader, limiter)
	svc := setupServices(logger, cfg, infra)

	// Start HTTP server
	srv, err := startServer(cfg, logger, infra, svc)
	if err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	shutdownGracefully(logger, cfg, srv, infra)
}

// setupLogger creates and configures the application logger.
func setupLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})

	info := version.Get()
	logger.WithFields(logrus.Fields{
		"release": info.Release,
		"commit":  info.Commit,
	}).Info("Starting resultgrid")

	return logger
}

// loadAndValidateConfig loads the configuration file and validates it.
func loadAndValidateConfig(logger *logrus.Logger, configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Set log level from config
	level, parseErr := logrus.ParseLevel(cfg.Server.LogLevel)
	if parseErr != nil {
		logger.WithError(parseErr).Warn("Invalid log level, using info")

		level = logrus.InfoLevel
	}

	logger.SetLevel(level)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"port":          cfg.Server.Port,
		"log_level":     cfg.Server.LogLevel,
		"query_url":     cfg.Query.URL,
		"block_size":    cfg.Query.BlockSize,
		"cache_backend": cfg.Cache.Backend,
		"rate_limiting": cfg.RateLimiting.Enabled,
	}).Info("Configuration loaded")

	return cfg, nil
}

// setupInfrastructure connects to Redis when the cache backend or the rate
// limiter needs it.
func setupInfrastructure(
	ctx context.Context,
	logger *logrus.Logger,
	cfg *config.Config,
) (*infrastructure, error) {
	infra := &infrastructure{}

	if !cfg.RedisRequired() {
		return infra, nil
	}

	redisClient := redis.NewClient(logger, redis.Config{
		Address:      cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
	})

	if err := redisClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start Redis client: %w", err)
	}

	infra.redisClient = redisClient

	return infra, nil
}

// setupServices wires the query client, the shared query cache, the record
// primer, the paged loader and the rate limiter.
func setupServices(
	logger *logrus.Logger,
	cfg *config.Config,
	infra *infrastructure,
) *services {
	svc := &services{}

	var store querycache.Store

	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		store = querycache.NewRedisStore(logger, infra.redisClient, cfg.Cache.KeyPrefix, cfg.Cache.TTL)
	default:
		store = querycache.NewMemoryStore(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	}

	svc.cache = querycache.New(logger, store)

	logger.WithFields(logrus.Fields{
		"backend": cfg.Cache.Backend,
		"ttl":     cfg.Cache.TTL,
	}).Info("Query cache ready")

	client := query.NewHTTPClient(logger, cfg.Query.URL, cfg.Query.RequestTimeout)

	primer := loader.NewCachePrimer(
		logger,
		svc.cache,
		cfg.Query.RecordRoute,
		cfg.Query.IDField,
		cfg.Query.NeighborDepth,
	)

	svc.loader = loader.New(logger, loader.Config{
		RowsRoute:        cfg.Query.RowsRoute,
		CountRoute:       cfg.Query.CountRoute,
		RecordRoute:      cfg.Query.RecordRoute,
		BlockSize:        cfg.Query.BlockSize,
		NeighborDepth:    cfg.Query.NeighborDepth,
		IDField:          cfg.Query.IDField,
		MaxSelectionRows: cfg.Query.MaxSelectionRows,

		MaxViewportBlocks: cfg.Query.MaxViewportBlocks,
		MaxBlockSize:      cfg.Query.MaxBlockSize,
	}, client, svc.cache, primer)

	svc.views = loader.NewViews(logger, svc.loader, cfg.Query.MaxViews, cfg.Query.ViewTTL)

	if cfg.RateLimiting.Enabled {
		svc.limiter = ratelimit.NewLimiter(logger, infra.redisClient.GetClient(), cfg.RateLimiting.FailureMode)
	}

	return svc
}

// startServer creates and starts the HTTP server.
func startServer(
	cfg *config.Config,
	logger *logrus.Logger,
	infra *infrastructure,
	svc *services,
) (*server.Server, error) {
	var ready []handlers.Pinger
	if infra.redisClient != nil {
		ready = append(ready, infra.redisClient)
	}

	srv, err := server.New(logger, cfg, server.Dependencies{
		Loader:  svc.loader,
		Cache:   svc.cache,
		Views:   svc.views,
		Limiter: svc.limiter,
		Ready:   ready,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server starting")

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server error")
		}
	}()

	return srv, nil
}

// shutdownGracefully performs graceful shutdown of all services.
// Shutdown order:
// 1. HTTP server (stop accepting requests, drain in-flight fetches).
// 2. Redis client (close connections).
func shutdownGracefully(
	logger *logrus.Logger,
	cfg *config.Config,
	srv *server.Server,
	infra *infrastructure,
) {
	logger.Info("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error during server shutdown")
	}

	if infra.redisClient != nil {
		if err := infra.redisClient.Stop(); err != nil {
			logger.WithError(err).Error("Error stopping Redis client")
		}
	}

	logger.Info("Server stopped gracefully")
}
