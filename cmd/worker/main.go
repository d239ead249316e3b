// Package main provides the portfolio sync worker entry point.
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

	"github.com/portfolio-sentinel/internal/adapter"
	"github.com/portfolio-sentinel/internal/alert"
	"github.com/portfolio-sentinel/internal/api"
	"github.com/portfolio-sentinel/internal/backtest"
	"github.com/portfolio-sentinel/internal/config"
	"github.com/portfolio-sentinel/internal/logging"
	"github.com/portfolio-sentinel/internal/market"
	"github.com/portfolio-sentinel/internal/oracle"
	"github.com/portfolio-sentinel/internal/rolecache"
	"github.com/portfolio-sentinel/internal/storage"
	"github.com/portfolio-sentinel/internal/types"
	"github.com/portfolio-sentinel/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.InitGlobalLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	logger := logging.WithField("component", "worker")
	defer logger.Sync()

	logger.Info("portfolio sync worker starting")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatalf("failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.Fatalf("failed to connect to ClickHouse: %v", err)
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	logger.Info("database connections established")

	pool := postgres.Pool()
	walletRepo := storage.NewWalletRepository(pool)
	snapshotRepo := storage.NewSnapshotRepository(pool)
	txRepo := storage.NewTransactionRepository(pool)
	alertRepo := storage.NewAlertRepository(pool)
	strategyRepo := storage.NewStrategyRepository(pool)
	syncStore := storage.NewSyncStore(pool, snapshotRepo, txRepo)
	syncRunRepo := storage.NewSyncRunRepository(clickhouse)
	priceHistoryRepo := storage.NewPriceHistoryRepository(clickhouse)
	priceCache := storage.NewPriceCache(redis, cfg.Oracle.CacheTTL)

	registry := adapter.NewRegistry()
	subscribers := make(map[types.ChainID]adapter.HeadSubscriber)
	for chainID, rpcURL := range cfg.Chains.RPCURLs {
		wsURL := cfg.Chains.WSURLs[chainID]
		chainAdapter, err := adapter.NewEthereumAdapter(chainID, rpcURL, wsURL, cfg.Chains.RoleManagerAddress, cfg.Chains.RequestTimeout)
		if err != nil {
			logger.WithField("chainId", uint64(chainID)).WithError(err).Error("failed to create chain adapter")
			continue
		}
		registry.Register(chainAdapter)
		if wsURL != "" {
			subscribers[chainID] = chainAdapter
		}
		logger.WithField("chainId", uint64(chainID)).Info("chain adapter initialized")
	}
	if len(registry.Chains()) == 0 {
		logger.Fatal("no chain adapters configured; set CHAIN_RPC_URLS")
	}

	marketClient := market.NewClient(&cfg.Oracle)
	priceOracle := oracle.New(priceCache, priceHistoryRepo, marketClient, oracle.Config{
		Staleness:          cfg.Oracle.HistoryStaleness,
		MinPersistInterval: cfg.Oracle.MinPersistInterval,
		StaticPrices:       cfg.Oracle.StaticPrices,
	})

	refresher := oracle.NewRefresher(priceOracle, trackedSymbols(cfg, registry.Chains()), cfg.Oracle.RefreshInterval)
	refresher.Start()
	defer refresher.Stop()

	roles := rolecache.New(walletRepo, rolecache.NewRegistryResolver(registry), rolecache.Config{
		DefaultTTL:   cfg.RoleCache.DefaultTTL,
		TTLOverrides: cfg.RoleCache.TTLOverrides,
	})
	go func() {
		succeeded, failed, err := roles.RefreshAll(context.Background())
		if err != nil {
			logger.WithError(err).Warn("initial role warm-up failed")
			return
		}
		logger.WithFields(map[string]interface{}{
			"succeeded": succeeded,
			"failed":    failed,
		}).Info("role cache warmed")
	}()

	engine := worker.NewEngine(
		cfg.Sync,
		walletRepo,
		snapshotRepo,
		txRepo,
		syncStore,
		syncRunRepo,
		registry,
		priceOracle,
		cfg.Tokens,
	)
	engine.Start()
	defer engine.Stop()

	var listener *worker.HeadListener
	if cfg.Sync.WSTriggerEnabled && len(subscribers) > 0 {
		listener = worker.NewHeadListener(engine, subscribers)
		listener.Start()
		defer listener.Stop()
	}

	var evaluator *alert.Evaluator
	if cfg.Alert.Enabled {
		evaluator = alert.NewEvaluator(
			cfg.Alert,
			walletRepo,
			snapshotRepo,
			txRepo,
			alertRepo,
			registry,
			cfg.Tokens,
		)
		evaluator.Start()
		defer evaluator.Stop()
	}

	runner := backtest.NewRunner(strategyRepo, priceOracle)

	var simulator api.AlertSimulator
	if evaluator != nil {
		simulator = evaluator
	}
	server := api.NewServer(
		fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		map[string]api.Pinger{
			"postgres":   postgres,
			"clickhouse": clickhouse,
			"redis":      redis,
		},
		syncRunRepo,
		simulator,
		roles,
		runner,
	)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("operational server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("operational server shutdown failed")
	}

	logger.Info("worker stopped")
}

// trackedSymbols collects every symbol the refresher should keep warm:
// native assets of configured chains plus all tracked tokens.
func trackedSymbols(cfg *config.Config, chains []types.ChainID) []string {
	seen := make(map[string]bool)
	var symbols []string

	add := func(symbol string) {
		symbol = types.NormalizeSymbol(symbol)
		if symbol != "" && !seen[symbol] {
			seen[symbol] = true
			symbols = append(symbols, symbol)
		}
	}

	for _, chainID := range chains {
		add(chainID.NativeSymbol())
	}
	for _, token := range cfg.Tokens {
		add(token.Symbol)
	}
	return symbols
}
