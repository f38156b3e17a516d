package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/analytics"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/cache"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/chain"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/config"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/fetcher"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/metrics"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/storage"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/storage/memory"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/storage/postgres"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/tradeindex"
)

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func dialChain(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*chain.Client, config.Contracts, error) {
	if cfg.RPCURL == "" {
		return nil, config.Contracts{}, fmt.Errorf("rpc url is required")
	}
	contracts, err := cfg.Contracts()
	if err != nil {
		return nil, config.Contracts{}, err
	}
	client, err := chain.NewClient(ctx, cfg.RPCURL, m)
	if err != nil {
		return nil, config.Contracts{}, fmt.Errorf("connect rpc: %w", err)
	}
	return client, contracts, nil
}

func newStrategy(cfg config.Config, contracts config.Contracts, client *chain.Client, logger *zap.Logger) *analytics.Strategy {
	logFetcher := fetcher.New(client, fetcher.Config{
		BatchSize:      cfg.LogBatchSize,
		MaxConcurrency: cfg.MaxConcurrency,
	}, logger.Named("fetcher"))

	return analytics.NewStrategy(analytics.StrategyConfig{
		BondingCurve:       contracts.BondingCurve,
		PaymentToken:       contracts.PaymentToken,
		FeeAddress:         contracts.FeeAddress,
		TokenDecimals:      cfg.TokenDecimals,
		PaymentDecimals:    cfg.PaymentDecimals,
		BlockTime:          cfg.BlockTime,
		MaxPoints:          cfg.MaxPoints,
		FlatLinePoints:     cfg.FlatLinePoints,
		SkipHistoricalRead: cfg.SkipHistoricalRead,
	}, client, logFetcher, logger.Named("strategy"))
}

// openCache returns Redis when configured, otherwise an in-process cache.
func openCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.Cache, func(), error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemory(cfg.CacheTTL), func() {}, nil
	}
	redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
	if err := redisCache.Ping(ctx); err != nil {
		_ = redisCache.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("analytics cache on redis", zap.String("addr", cfg.RedisAddr))
	return redisCache, func() { _ = redisCache.Close() }, nil
}

// openStore returns Postgres when configured, otherwise an in-memory store.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.TradeStore, func(), error) {
	if cfg.PGDSN == "" {
		logger.Warn("pg-dsn not set, indexed trades are kept in memory only")
		return memory.NewTradeStore(), func() {}, nil
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

func indexerConfig(cfg config.Config, contracts config.Contracts) tradeindex.Config {
	return tradeindex.Config{
		BondingCurve:    contracts.BondingCurve,
		PaymentToken:    contracts.PaymentToken,
		TokenDecimals:   cfg.TokenDecimals,
		PaymentDecimals: cfg.PaymentDecimals,
	}
}
