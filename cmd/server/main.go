package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/onlyshah/fashion-search/internal/api"
	"github.com/onlyshah/fashion-search/internal/cache"
	"github.com/onlyshah/fashion-search/internal/catalog"
	"github.com/onlyshah/fashion-search/internal/clickhouse"
	"github.com/onlyshah/fashion-search/internal/config"
	"github.com/onlyshah/fashion-search/internal/firestore"
	"github.com/onlyshah/fashion-search/internal/history"
	"github.com/onlyshah/fashion-search/internal/kafka"
	"github.com/onlyshah/fashion-search/internal/observability"
	"github.com/onlyshah/fashion-search/internal/orchestrator"
	"github.com/onlyshah/fashion-search/internal/suggest"
	"github.com/onlyshah/fashion-search/internal/trending"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Initialize logger
	logger, err := observability.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting catalog search service",
		zap.String("service", cfg.Observability.ServiceName),
	)

	// Initialize tracing
	tracerShutdown, err := observability.InitTracer(cfg.Observability.ServiceName)
	if err != nil {
		logger.Warn("tracing initialization failed, continuing without tracing", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients
	redisCache, err := cache.NewRedisCache(cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("initializing redis: %w", err)
	}
	defer redisCache.Close()
	logger.Info("redis cache initialized")

	replica := catalog.NewMemorySource(logger)

	var esSource *catalog.ElasticSource
	if cfg.Catalog.Elasticsearch.Enabled {
		esSource, err = catalog.NewElasticSource(cfg.Catalog.Elasticsearch, cfg.Search, logger)
		if err != nil {
			logger.Warn("elasticsearch initialization failed, serving from in-memory catalog only", zap.Error(err))
		} else {
			logger.Info("elasticsearch catalog source initialized")
			seedCtx, seedCancel := context.WithTimeout(ctx, 30*time.Second)
			products, seedErr := esSource.Fetch(seedCtx)
			seedCancel()
			if seedErr != nil {
				logger.Warn("catalog seed from elasticsearch failed", zap.Error(seedErr))
			} else {
				replica.Load(products)
				logger.Info("catalog replica seeded", zap.Int("products", len(products)))
			}
		}
	}

	var chClient *clickhouse.Client
	chClient, err = clickhouse.NewClient(cfg.ClickHouse, logger)
	if err != nil {
		logger.Warn("clickhouse initialization failed, analytics will be unavailable", zap.Error(err))
		chClient = nil
	} else {
		defer chClient.Close()
		if err := chClient.EnsureTables(ctx); err != nil {
			logger.Warn("clickhouse table creation failed", zap.Error(err))
		}
		logger.Info("clickhouse client initialized")
	}

	var fsClient *firestore.Client
	if cfg.Firestore.ProjectID != "" {
		fsClient, err = firestore.NewClient(ctx, cfg.Firestore, logger)
		if err != nil {
			logger.Warn("firestore initialization failed, snapshots will be unavailable", zap.Error(err))
			fsClient = nil
		} else {
			defer fsClient.Close()
			logger.Info("firestore client initialized")
		}
	}

	// Core in-memory engines
	trendingTracker := trending.NewTracker(logger)
	historyStore := history.NewStore(logger)
	suggester := suggest.NewEngine(trendingTracker, replica, historyStore, logger)

	// Hydrate from the last snapshot
	if fsClient != nil {
		if records, loadErr := fsClient.LoadTrending(ctx); loadErr != nil {
			logger.Warn("trending snapshot load failed", zap.Error(loadErr))
		} else {
			trendingTracker.Restore(records)
			logger.Info("trending state restored", zap.Int("records", len(records)))
		}
		if profiles, loadErr := fsClient.LoadProfiles(ctx); loadErr != nil {
			logger.Warn("profile snapshot load failed", zap.Error(loadErr))
		} else {
			historyStore.Restore(profiles)
			logger.Info("user profiles restored", zap.Int("profiles", len(profiles)))
		}
	}

	// Initialize slow search detector
	var perfWriter observability.PerformanceWriter
	if chClient != nil {
		perfWriter = chClient
	}
	slowDetector := observability.NewSlowSearchDetector(
		cfg.Search.SlowQuery.WarningThreshold,
		cfg.Search.SlowQuery.CriticalThreshold,
		logger,
		perfWriter,
	)

	// Initialize search orchestrator
	var source catalog.Source = replica
	if esSource != nil {
		source = esSource
	}
	var sink orchestrator.AnalyticsSink
	if chClient != nil {
		sink = chClient
	}
	orch := orchestrator.New(
		source, redisCache, historyStore, trendingTracker, suggester,
		slowDetector, sink, cfg.Search, cfg.Suggest.MetaLimit, logger,
	)

	// Initialize catalog sync pipeline
	syncer := catalog.NewSyncer(replica, esSource, redisCache, cfg.Catalog.Elasticsearch, logger)
	defer syncer.Stop()

	consumer := kafka.NewConsumer(cfg.Kafka, syncer.HandleEvent, logger)
	if err := consumer.Start(ctx); err != nil {
		logger.Warn("kafka consumer start failed, catalog sync will be unavailable", zap.Error(err))
	} else {
		defer consumer.Stop()
		logger.Info("kafka consumer started")
	}

	// Periodic state snapshots
	if fsClient != nil {
		go snapshotLoop(ctx, fsClient, trendingTracker, historyStore, cfg.Firestore.SnapshotPeriod, logger)
	}

	// Initialize HTTP server
	handler := api.NewHandler(
		orch, suggester, trendingTracker, historyStore,
		redisCache, redisCache, cfg.Suggest, logger,
	)

	healthHandler := api.NewHealthHandler(logger)
	healthHandler.Register("redis", redisCache)
	healthHandler.Register("kafka", consumer)
	if esSource != nil {
		healthHandler.Register("elasticsearch", esSource)
	}
	if chClient != nil {
		healthHandler.Register("clickhouse", chClient)
	}
	if fsClient != nil {
		healthHandler.Register("firestore", fsClient)
	}

	router := api.NewRouter(handler, healthHandler, api.HeaderIdentity{}, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	// Graceful shutdown
	logger.Info("starting graceful shutdown", zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new requests
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	// Final state snapshot before the in-memory stores go away
	if fsClient != nil {
		saveSnapshot(shutdownCtx, fsClient, trendingTracker, historyStore, logger)
	}

	// Cancel background operations
	cancel()

	// Shutdown tracing
	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
	return nil
}

func snapshotLoop(ctx context.Context, fsClient *firestore.Client, tracker *trending.Tracker, store *history.Store, period time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			saveSnapshot(saveCtx, fsClient, tracker, store, logger)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

func saveSnapshot(ctx context.Context, fsClient *firestore.Client, tracker *trending.Tracker, store *history.Store, logger *zap.Logger) {
	if err := fsClient.SaveTrending(ctx, tracker.Snapshot()); err != nil {
		logger.Error("trending snapshot save failed", zap.Error(err))
	}
	if err := fsClient.SaveProfiles(ctx, store.Snapshot()); err != nil {
		logger.Error("profile snapshot save failed", zap.Error(err))
	}
}
