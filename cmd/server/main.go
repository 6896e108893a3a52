// Package main is the entry point for the stockledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/config"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/receipt"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/export"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/metrics"
	"stockledger/internal/infrastructure/numerator"
	"stockledger/internal/infrastructure/pricing"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/inventory_repo"
	"stockledger/internal/infrastructure/storage/postgres/receipt_repo"
	"stockledger/internal/infrastructure/storage/postgres/report_repo"
	"stockledger/pkg/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     "server",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	log.Infow("starting stockledger server", "version", version, "env", cfg.AppEnv)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txOpts := postgres.DefaultTxOptions()
	txOpts.IsolationLevel = postgres.IsolationFromString(cfg.DBIsolation)
	txOpts.StatementTimeout = cfg.DBStatementTimeout
	txOpts.LockTimeout = cfg.DBLockTimeout
	txManager := postgres.NewTxManager(pool, txOpts)

	audit, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}
	outbox := postgres.NewOutboxPublisher(txManager)

	// --- Metrics ---
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		m.RegisterPool(pool.Pool)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()

	var reportCache reports.Cache
	var invalidator *cache.Invalidator
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warnw("redis unavailable, report caching disabled", "addr", cfg.RedisAddr, "error", err)
	} else {
		rc := cache.NewReportCache(rdb, cfg.ReportCacheTTL)
		reportCache = rc
		invalidator = cache.NewInvalidator(pool.Pool, rc, time.Second)
	}

	// --- Services ---
	invOpts := []inventory.Option{
		inventory.WithPriceUpdater(pricing.WithLogging(pricing.NewPostgresUpdater(txManager), log)),
		inventory.WithEventPublisher(outbox),
		inventory.WithAuditLogger(audit),
	}
	if m != nil {
		invOpts = append(invOpts, inventory.WithMetrics(m))
	}
	inventoryService := inventory.NewService(
		inventory_repo.NewBatchRepo(txManager),
		inventory_repo.NewLedgerRepo(txManager),
		txManager,
		invOpts...,
	)

	receiptService := receipt.NewService(
		receipt_repo.NewRepo(txManager),
		inventoryService,
		numerator.New(txManager),
		txManager,
		audit,
		outbox,
	)

	reportService := reports.NewService(report_repo.NewReportRepo(txManager), reportCache, export.NewExcel())
	reportService.SetDefaults(cfg.LowStockThreshold, cfg.ExpiryWindowDays)

	// --- Router ---
	routerCfg := v1.RouterConfig{
		Logger:       log,
		Inventory:    inventoryService,
		Receipts:     receiptService,
		Reports:      reportService,
		AuditHistory: audit,
		Version:      version,
		HealthChecks: map[string]handlers.Check{
			"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	}
	if cfg.IdempotencyEnabled {
		routerCfg.Idempotency = postgres.NewIdempotencyStore(txManager, cfg.IdempotencyTTL)
	}
	if m != nil {
		routerCfg.Metrics = m.GinMiddleware()
		routerCfg.MetricsHandler = m.Handler()
	}
	router := v1.NewRouter(routerCfg)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	if invalidator != nil {
		invalidator.Start(runCtx)
		defer invalidator.Stop()
	}

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
