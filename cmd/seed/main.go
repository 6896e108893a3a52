// Package main applies the schema and loads opening stock balances.
//
//	seed -migrate
//	seed -file opening.xlsx
//	seed -file opening.csv -dry-run
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"stockledger/internal/config"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/infrastructure/opening"
	"stockledger/internal/infrastructure/pricing"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/inventory_repo"
	"stockledger/migrations"
	"stockledger/pkg/logger"
)

func main() {
	file := flag.String("file", "", "opening balances (.csv or .xlsx)")
	dryRun := flag.Bool("dry-run", false, "validate and total the file against an in-memory store")
	migrate := flag.Bool("migrate", false, "apply pending schema migrations first")
	flag.Parse()

	log, err := logger.New(logger.Config{Level: "info", Development: true, Service: "seed"})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var balances []opening.Balance
	if *file != "" {
		balances, err = opening.ReadFile(*file)
		if err != nil {
			log.Fatalw("failed to read opening balances", "file", *file, "error", err)
		}
		log.Infow("opening balances parsed", "file", *file, "lines", len(balances))
	}

	if *dryRun {
		if len(balances) == 0 {
			log.Fatal("-dry-run needs -file")
		}
		store := memory.NewStore()
		report(ctx, log, store, inventory.NewService(store, store, store), *file, balances)
		return
	}

	if !*migrate && len(balances) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if *migrate {
		applied, err := migrations.Apply(ctx, pool.Pool)
		if err != nil {
			log.Fatalw("failed to apply migrations", "error", err)
		}
		log.Infow("migrations applied", "count", len(applied), "names", applied)
	}

	if len(balances) == 0 {
		return
	}

	txOpts := postgres.DefaultTxOptions()
	txOpts.IsolationLevel = postgres.IsolationFromString(cfg.DBIsolation)
	txManager := postgres.NewTxManager(pool, txOpts)
	outbox := postgres.NewOutboxPublisher(txManager)
	audit, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	engine := inventory.NewService(
		inventory_repo.NewBatchRepo(txManager),
		inventory_repo.NewLedgerRepo(txManager),
		txManager,
		inventory.WithPriceUpdater(pricing.WithLogging(pricing.NewPostgresUpdater(txManager), log)),
		inventory.WithEventPublisher(outbox),
		inventory.WithAuditLogger(audit),
	)
	report(ctx, log, txManager, engine, *file, balances)
}

func report(ctx context.Context, log *logger.Logger, txm tx.Manager, engine *inventory.Service, file string, balances []opening.Balance) {
	sum, err := opening.Load(ctx, txm, engine, filepath.Base(file), balances)
	if err != nil {
		log.Fatalw("failed to load opening balances", "error", err)
	}
	log.Infow("opening balances loaded",
		"lines", sum.Lines,
		"products", sum.Products,
		"quantity", sum.Quantity,
		"value", sum.Value.StringFixed(2))
}
