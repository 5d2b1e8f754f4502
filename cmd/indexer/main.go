// Package main runs the ledger indexer: it connects to Postgres, ClickHouse
// and Redis, wires the ledger engine, and drives the ingestion worker until
// interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/messari/subgraphs-sub014/internal/config"
	"github.com/messari/subgraphs-sub014/internal/ledger"
	"github.com/messari/subgraphs-sub014/internal/logging"
	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/oracle"
	"github.com/messari/subgraphs-sub014/internal/storage"
	"github.com/messari/subgraphs-sub014/internal/tokens"
	"github.com/messari/subgraphs-sub014/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.NewLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger.WithFields(map[string]interface{}{
		"protocol": cfg.Protocol.ID,
		"network":  cfg.Protocol.Network,
	}).Info("starting ledger indexer")

	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	defer cancel()

	pg, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Error("failed to connect to Postgres")
		os.Exit(1)
	}
	store := storage.NewPostgresStore(pg)
	defer store.Close()

	ch, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Error("failed to connect to ClickHouse")
		os.Exit(1)
	}
	defer ch.Close()
	archive := storage.NewSnapshotArchive(ch)
	if err := archive.EnsureTables(ctx); err != nil {
		logger.WithError(err).Error("failed to prepare archive tables")
		os.Exit(1)
	}

	cache, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Error("failed to connect to Redis")
		os.Exit(1)
	}
	defer cache.Close()

	priceOracle, err := buildOracle(cfg, cache, logger)
	if err != nil {
		logger.WithError(err).Error("failed to build price oracle")
		os.Exit(1)
	}

	protocol := models.NewProtocol(
		cfg.Protocol.ID,
		cfg.Protocol.Name,
		cfg.Protocol.Slug,
		cfg.Protocol.Network,
	)
	engine := ledger.NewEngine(
		logger,
		store,
		protocol,
		ledger.RulesFromConfig(&cfg.Protocol),
		tokens.NewRegistry(),
		priceOracle,
		archive,
	)

	if err := engine.WarmTokens(ctx); err != nil {
		logger.WithError(err).Error("failed to warm token registry")
		os.Exit(1)
	}

	w, err := worker.NewLedgerWorker(&worker.LedgerWorkerConfig{
		Log:             logger,
		Engine:          engine,
		Store:           store,
		Source:          storage.NewEventFeed(pg),
		PollInterval:    cfg.Worker.PollInterval,
		BatchSize:       cfg.Worker.BatchSize,
		EventsPerSecond: cfg.Worker.EventsPerSecond,
	})
	if err != nil {
		logger.WithError(err).Error("failed to create ledger worker")
		os.Exit(1)
	}

	if err := w.Start(ctx); err != nil {
		logger.WithError(err).Error("failed to start ledger worker")
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	w.Stop()

	applied, skipped, failed := w.Stats()
	logger.WithFields(map[string]interface{}{
		"applied": applied,
		"skipped": skipped,
		"failed":  failed,
	}).Info("ledger indexer stopped")
}

func buildOracle(cfg *config.Config, cache *storage.RedisCache, logger *logging.Logger) (oracle.Oracle, error) {
	var inner oracle.Oracle
	if cfg.Oracle.PricesPath != "" {
		static, err := oracle.LoadPricesFile(cfg.Oracle.PricesPath)
		if err != nil {
			return nil, err
		}
		inner = static
	} else {
		logger.Warn("no prices file configured, all amounts will value at zero")
		inner = oracle.NewStaticOracle()
	}
	return oracle.NewCachedOracle(inner, cache, cfg.Oracle.CacheTTL, logger), nil
}
