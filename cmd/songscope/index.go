package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/chain"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/notify"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/tradeindex"
)

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	txHash, err := chain.ParseTxHash(args[0])
	if err != nil {
		return err
	}
	token, err := chain.ParseAddress(args[1])
	if err != nil {
		return err
	}
	var entityID *string
	if value, _ := cmd.Flags().GetString("entity-id"); value != "" {
		entityID = &value
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, contracts, err := dialChain(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var publisher notify.Publisher
	if cfg.NATSURL != "" {
		conn, err := notify.Connect(cfg.NATSURL, "songscope-index", nil, logger.Named("notify"))
		if err != nil {
			return err
		}
		defer conn.Close()
		publisher = conn
	}

	indexer := tradeindex.New(indexerConfig(cfg, contracts), client, store, publisher, nil, logger.Named("tradeindex"))
	record, err := indexer.IndexWithRetry(ctx, tradeindex.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBackoff,
	}, txHash, token, entityID)
	if err != nil {
		return err
	}

	logger.Info("index done",
		zap.String("id", record.ID),
		zap.String("type", string(record.TradeType)),
	)
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(record)
}
