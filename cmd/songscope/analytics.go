package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/analytics"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/cache"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/chain"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/storage"
)

func runAnalytics(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	token, err := chain.ParseAddress(args[0])
	if err != nil {
		return err
	}
	bypass, _ := cmd.Flags().GetBool("bypass")
	watch, _ := cmd.Flags().GetDuration("watch")
	out, _ := cmd.Flags().GetString("out")
	var sink *storage.JSONL[model.Analytics]
	if out != "" {
		sink = storage.NewJSONL[model.Analytics](out)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, contracts, err := dialChain(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	strategy := newStrategy(cfg, contracts, client, logger)
	service := analytics.NewService(strategy, cache.NewMemory(cfg.CacheTTL), cfg.Window, nil, logger.Named("analytics"))
	session := analytics.NewSession(service, cfg.Window, bypass)
	session.SetToken(token)

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")

	load := func() error {
		loadCtx, cancel := withOptionalTimeout(ctx, cfg.RPCTimeout)
		defer cancel()
		result, err := session.Load(loadCtx)
		if errors.Is(err, analytics.ErrStale) {
			return nil
		}
		if err != nil {
			return err
		}
		if sink != nil {
			if err := sink.Append(result); err != nil {
				return err
			}
		}
		return encoder.Encode(result)
	}

	if err := load(); err != nil {
		return fmt.Errorf("compute analytics: %w", err)
	}
	if watch <= 0 {
		return nil
	}

	ticker := time.NewTicker(watch)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			session.Refresh()
			if err := load(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("analytics refresh failed", zap.String("token", chain.AddressKey(token)), zap.Error(err))
			}
		}
	}
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
