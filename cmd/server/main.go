package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/p2p-escrow-engine/internal/config"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/escrow"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/events"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/events/kafka"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/interfaces"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/ledger"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/orders"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/storage/memory"
	"github.com/sheikh-saqib/p2p-escrow-engine/internal/storage/postgres"
)

func main() {
	bootstrap := flag.Bool("bootstrap", false, "provision system accounts for the configured currency and exit")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuration invalid", zap.Error(err))
	}

	ctx := context.Background()

	var (
		backend    interfaces.LedgerBackend
		orderStore interfaces.OrderStore
	)
	switch cfg.LedgerBackend {
	case config.BackendSimulated:
		backend = memory.NewStore()
		orderStore = memory.NewOrderStore()
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("open database", zap.Error(err))
		}
		pgLedger := postgres.NewStore(db)
		pgOrders := postgres.NewOrderStore(db)
		if err := pgLedger.EnsureSchema(ctx); err != nil {
			logger.Fatal("ledger schema", zap.Error(err))
		}
		if err := pgOrders.EnsureSchema(ctx); err != nil {
			logger.Fatal("orders schema", zap.Error(err))
		}
		backend = ledger.NewRetryingBackend(pgLedger, ledger.RetryPolicy{
			MaxRetries:      cfg.RetryMax,
			InitialInterval: cfg.RetryInterval,
			MaxInterval:     cfg.RetryTimeout,
			Timeout:         cfg.RetryTimeout,
		}, logger)
		orderStore = pgOrders
	}

	var publisher interfaces.EventPublisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers)
		defer kp.Close()
		publisher = kp
	}

	engine := ledger.NewEngine(backend, publisher, logger)
	registry := ledger.NewRegistry(backend, logger)

	// The simulated backend is empty on every start, so it is always
	// bootstrapped. Postgres is provisioned once via -bootstrap.
	if cfg.LedgerBackend == config.BackendSimulated || *bootstrap {
		if err := registry.Bootstrap(ctx, cfg.Currency); err != nil {
			logger.Fatal("bootstrap system accounts", zap.Error(err))
		}
	}
	if *bootstrap {
		logger.Info("bootstrap complete", zap.String("currency", cfg.Currency))
		return
	}

	coordinator := escrow.NewCoordinator(engine, registry, orderStore, publisher,
		cfg.FeePercent, cfg.Precision, cfg.Currency, logger)
	service := orders.NewService(orderStore, engine, registry, coordinator,
		cfg.Currency, cfg.Precision, logger)

	router := newRouter(&api{service: service, log: logger})

	logger.Info("starting server",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("backend", cfg.LedgerBackend),
		zap.String("currency", cfg.Currency),
	)
	if err := http.ListenAndServe(cfg.HTTPAddr, router); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
