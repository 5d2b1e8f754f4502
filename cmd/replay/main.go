// Package main replays a decoded event dump through the ledger engine
// against an in-memory store. Used to validate ledger behavior offline
// without any external services.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"sort"

	"github.com/messari/subgraphs-sub014/internal/config"
	"github.com/messari/subgraphs-sub014/internal/ledger"
	"github.com/messari/subgraphs-sub014/internal/logging"
	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/oracle"
	"github.com/messari/subgraphs-sub014/internal/storage"
	"github.com/messari/subgraphs-sub014/internal/tokens"
	"github.com/messari/subgraphs-sub014/internal/types"
)

func main() {
	var (
		eventsPath = flag.String("events", "", "Path to a JSON array of decoded events")
		pricesPath = flag.String("prices", "", "Path to a JSON map of token address to USD price")
	)
	flag.Parse()

	if *eventsPath == "" {
		log.Fatal("missing required -events flag")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.NewLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)

	events, err := loadEvents(*eventsPath)
	if err != nil {
		log.Fatalf("Failed to load events: %v", err)
	}

	priceOracle := oracle.NewStaticOracle()
	if *pricesPath != "" {
		priceOracle, err = oracle.LoadPricesFile(*pricesPath)
		if err != nil {
			log.Fatalf("Failed to load prices: %v", err)
		}
	}

	protocol := models.NewProtocol(
		cfg.Protocol.ID,
		cfg.Protocol.Name,
		cfg.Protocol.Slug,
		cfg.Protocol.Network,
	)
	engine := ledger.NewEngine(
		logger,
		storage.NewMemoryStore(),
		protocol,
		ledger.RulesFromConfig(&cfg.Protocol),
		tokens.NewRegistry(),
		priceOracle,
		nil,
	)

	ctx := logging.WithLogger(context.Background(), logger)
	applied, failed := 0, 0
	for _, ev := range events {
		if err := engine.ProcessEvent(ctx, ev); err != nil {
			failed++
			logger.WithFields(map[string]interface{}{
				"kind":  string(ev.Kind),
				"block": ev.Context.BlockNumber,
			}).WithError(err).Error("event failed")
			continue
		}
		applied++
	}

	logger.WithFields(map[string]interface{}{
		"applied": applied,
		"failed":  failed,
	}).Info("replay finished")
}

func loadEvents(path string) ([]*types.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []*types.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Context.Before(events[j].Context)
	})
	return events, nil
}
