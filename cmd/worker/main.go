// Package main is the entry point for the stockledger background worker.
// It relays the outbox to Pub/Sub, audits average costs and cleans up
// expired idempotency keys.
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

	"cloud.google.com/go/pubsub"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"stockledger/internal/config"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/events"
	"stockledger/internal/infrastructure/jobs"
	"stockledger/internal/infrastructure/lock"
	"stockledger/internal/infrastructure/metrics"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/inventory_repo"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     "worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting stockledger worker")

	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.AppName = "stockledger-worker"
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

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = rdb.Close() }()
	locker := lock.New(rdb)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		m.RegisterPool(pool.Pool)
		go serveMetrics(ctx, cfg.Addr(), m, log)
	}

	var engineOpts []inventory.Option
	if m != nil {
		engineOpts = append(engineOpts, inventory.WithMetrics(m))
	}
	engine := inventory.NewService(
		inventory_repo.NewBatchRepo(txManager),
		inventory_repo.NewLedgerRepo(txManager),
		txManager,
		engineOpts...,
	)

	var driftMetrics inventory.Metrics
	if m != nil {
		driftMetrics = m
	}
	audit := jobs.NewWACAuditJob(engine, driftMetrics, locker, log)
	auditTask, err := jobs.NewWACAuditTask(jobs.WACAuditPayload{})
	if err != nil {
		log.Fatalw("failed to build audit task", "error", err)
	}

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskWACAudit, Handler: tracked(m, jobs.TaskWACAudit, audit.Handle)},
	}
	cron := []jobs.CronRegistration{
		{Spec: cfg.WACAuditCron, Task: auditTask},
	}

	if cfg.IdempotencyEnabled {
		store := postgres.NewIdempotencyStore(txManager, cfg.IdempotencyTTL)
		handlers = append(handlers, jobs.TaskHandler{
			Type:    jobs.TaskIdempotencyCleanup,
			Handler: tracked(m, jobs.TaskIdempotencyCleanup, jobs.CleanupHandler(store, log)),
		})
		cron = append(cron, jobs.CronRegistration{Spec: "@hourly", Task: jobs.NewIdempotencyCleanupTask()})
	}

	if cfg.PubSubEnabled() {
		client, err := events.NewClient(ctx, events.Config{
			ProjectID:       cfg.PubSubProjectID,
			Topic:           cfg.PubSubTopic,
			CredentialsJSON: cfg.PubSubCredentialsJSON,
		})
		if err != nil {
			log.Fatalw("failed to create pubsub client", "error", err)
		}
		defer func(c *pubsub.Client) { _ = c.Close() }(client)

		topic, err := events.EnsureTopic(ctx, client, cfg.PubSubTopic)
		if err != nil {
			log.Fatalw("failed to resolve pubsub topic", "topic", cfg.PubSubTopic, "error", err)
		}
		defer topic.Stop()

		relay := postgres.NewOutboxRelay(txManager, cfg.OutboxBatchSize, events.NewOutboxHandler(events.NewTopicPublisher(topic)))
		relayJob := jobs.NewOutboxRelayJob(relay, locker, log)
		handlers = append(handlers, jobs.TaskHandler{
			Type:    jobs.TaskOutboxRelay,
			Handler: tracked(m, jobs.TaskOutboxRelay, relayJob.Handle),
		})
		cron = append(cron, jobs.CronRegistration{
			Spec: fmt.Sprintf("@every %s", cfg.OutboxPollInterval),
			Task: jobs.NewOutboxRelayTask(),
		})
	} else {
		log.Warn("PUBSUB_PROJECT_ID not set, outbox relay disabled")
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Concurrency: cfg.WorkerConcurrency,
		Logger:      log,
		Handlers:    handlers,
		Cron:        cron,
	})
	if err != nil {
		log.Fatalw("failed to create worker", "error", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutting down worker...")
		cancel()
		<-done
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("worker stopped unexpectedly", "error", err)
		}
	}

	log.Info("worker stopped")
}

// tracked records duration and outcome of every run.
func tracked(m *metrics.Metrics, name string, h asynq.HandlerFunc) asynq.HandlerFunc {
	if m == nil {
		return h
	}
	return func(ctx context.Context, t *asynq.Task) error {
		tr := m.Track(name)
		return tr.End(h(ctx, t))
	}
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Infow("metrics listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorw("metrics server failed", "error", err)
	}
}
