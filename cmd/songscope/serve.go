package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/analytics"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/api"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/cache"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/metrics"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/notify"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/storage"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/tradeindex"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	client, contracts, err := dialChain(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer client.Close()

	resultCache, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	strategy := newStrategy(cfg, contracts, client, logger)
	service := analytics.NewService(strategy, resultCache, cfg.Window, m, logger.Named("analytics"))

	invalidate := invalidateOnTrade(service, logger)

	var publisher notify.Publisher
	if cfg.NATSURL != "" {
		conn, err := notify.Connect(cfg.NATSURL, "songscope-serve", m, logger.Named("notify"))
		if err != nil {
			return err
		}
		defer conn.Close()
		publisher = conn

		if err := conn.Subscribe(ctx, invalidate); err != nil {
			return err
		}
	} else {
		logger.Info("nats-url not set, trade notifications stay in process")
		publisher = notify.NewLocal(invalidate)
	}

	indexer := tradeindex.New(indexerConfig(cfg, contracts), client, store, publisher, m, logger.Named("tradeindex"))

	server := api.New(api.Options{
		Addr:       cfg.Listen,
		RPCTimeout: cfg.RPCTimeout,
		Gatherer:   registry,
		Readiness:  readinessChecks(store, resultCache),
	}, service, indexer, m, logger.Named("api"))

	logger.Info("serve start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("bonding_curve", contracts.BondingCurve.Hex()),
		zap.String("payment_token", contracts.PaymentToken.Hex()),
		zap.Duration("window", cfg.Window),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Bool("skip_historical_read", cfg.SkipHistoricalRead),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	logger.Info("serve stopped")
	return nil
}

// invalidateOnTrade drops cached analytics for the token of each indexed trade.
func invalidateOnTrade(service *analytics.Service, logger *zap.Logger) notify.Handler {
	return func(ctx context.Context, n model.TradeNotification) {
		token := common.HexToAddress(n.TokenAddress)
		if err := service.Invalidate(ctx, token); err != nil {
			logger.Warn("invalidate on trade notification failed", zap.String("token", n.TokenAddress), zap.Error(err))
			return
		}
		logger.Debug("analytics invalidated by trade", zap.String("token", n.TokenAddress), zap.String("tx_hash", n.TxHash))
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// readinessChecks pings the backends that support it. In-memory backends are always ready.
func readinessChecks(store storage.TradeStore, resultCache cache.Cache) []api.Check {
	var checks []api.Check
	if p, ok := store.(pinger); ok {
		checks = append(checks, api.Check{Name: "store", Ping: p.Ping})
	}
	if p, ok := resultCache.(pinger); ok {
		checks = append(checks, api.Check{Name: "cache", Ping: p.Ping})
	}
	return checks
}
