package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"pm-trade-bot/internal/backtest"
	"pm-trade-bot/internal/config"
	"pm-trade-bot/internal/logging"
	"pm-trade-bot/internal/store"
	"pm-trade-bot/internal/strategy"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	dbPath := flag.String("db", "", "sqlite database with recorded market data (default: store.sqlite_path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	path := *dbPath
	if path == "" {
		path = cfg.Store.SQLitePath
	}
	db, err := store.NewSQLite(path)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	records, err := db.LoadMarketRecords(ctx)
	if err != nil {
		fatal(err)
	}
	if len(records) == 0 {
		fatal(fmt.Errorf("no recorded market data in %s", path))
	}
	snapshots, err := db.LoadBookSnapshots(ctx)
	if err != nil {
		fatal(err)
	}

	strategies, err := buildStrategies(cfg, log)
	if err != nil {
		fatal(err)
	}
	log.Info("replaying recorded data",
		zap.Int("market_records", len(records)),
		zap.Int("book_snapshots", len(snapshots)),
		zap.Strings("strategies", cfg.Engine.Strategies))

	engine := backtest.NewEngine(cfg.Backtest, strategies, log)
	result, err := engine.Run(ctx, records, snapshots)
	if err != nil {
		fatal(err)
	}
	if err := backtest.WriteReport(os.Stdout, result); err != nil {
		fatal(err)
	}
}

func buildStrategies(cfg *config.Config, log *zap.Logger) ([]strategy.Strategy, error) {
	registry := strategy.NewRegistry()
	registry.Register("naive_value", func() strategy.Strategy {
		return strategy.NewNaiveValue(cfg.Strategies.NaiveValue, log)
	})
	registry.Register("market_maker", func() strategy.Strategy {
		return strategy.NewMarketMaker(cfg.Strategies.MarketMaker, log)
	})
	registry.Register("arbitrage", func() strategy.Strategy {
		return strategy.NewCrossMarketArb(cfg.Strategies.Arbitrage, log)
	})
	registry.Register("signal_based", func() strategy.Strategy {
		return strategy.NewSignalBased(cfg.Strategies.SignalBased, nil, log)
	})
	return registry.Build(cfg.Engine.Strategies)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
