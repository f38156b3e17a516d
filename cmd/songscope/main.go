package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "songscope",
		Short:        "Song token price analytics and trade indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analytics and trade indexing HTTP API",
		RunE:  runServe,
	}
	addChainFlags(serveCmd.Flags())
	addAnalyticsFlags(serveCmd.Flags())
	addBackendFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().Duration("rpc-timeout", 15*time.Second, "per-request RPC timeout")
	root.AddCommand(serveCmd)

	analyticsCmd := &cobra.Command{
		Use:   "analytics <token>",
		Short: "Compute price analytics for a song token",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalytics,
	}
	addChainFlags(analyticsCmd.Flags())
	addAnalyticsFlags(analyticsCmd.Flags())
	analyticsCmd.Flags().Bool("bypass", false, "skip the result cache")
	analyticsCmd.Flags().Duration("watch", 0, "recompute on this interval until interrupted (0 disables)")
	analyticsCmd.Flags().Duration("rpc-timeout", 15*time.Second, "per-computation RPC timeout")
	analyticsCmd.Flags().String("out", "", "append each result to this JSONL file")
	root.AddCommand(analyticsCmd)

	indexCmd := &cobra.Command{
		Use:   "index <tx-hash> <token>",
		Short: "Index the bonding-curve trade of a transaction",
		Args:  cobra.ExactArgs(2),
		RunE:  runIndex,
	}
	addChainFlags(indexCmd.Flags())
	indexCmd.Flags().String("pg-dsn", "", "Postgres DSN (in-memory store when empty)")
	indexCmd.Flags().String("nats-url", "", "NATS URL for trade notifications")
	indexCmd.Flags().String("entity-id", "", "related entity id stored with the trade")
	indexCmd.Flags().Int("max-retries", 0, "retry attempts while the receipt is unavailable or the RPC fails")
	indexCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	root.AddCommand(indexCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres migrations",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addChainFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "RPC URL")
	flags.String("bonding-curve", "", "bonding curve contract address")
	flags.String("payment-token", "", "payment token address")
	flags.String("fee-address", "", "protocol fee address excluded from trade amounts")
	flags.Int("token-decimals", 18, "song token decimals when the chain read fails")
	flags.Int("payment-decimals", 6, "payment token decimals")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addAnalyticsFlags(flags *pflag.FlagSet) {
	flags.Duration("window", 24*time.Hour, "analytics window")
	flags.Duration("block-time", 2*time.Second, "average block time used to map the window to blocks")
	flags.Duration("cache-ttl", 30*time.Second, "analytics cache TTL")
	flags.Int("max-points", 20, "maximum trade points in a series")
	flags.Int("flat-line-points", 20, "points in a synthetic flat-line series")
	flags.Uint64("log-batch-size", 2000, "blocks per eth_getLogs request")
	flags.Int("max-concurrency", 8, "maximum concurrent block timestamp requests")
	flags.Bool("skip-historical-read", false, "always reconstruct trades so volume is reported")
}

func addBackendFlags(flags *pflag.FlagSet) {
	flags.String("pg-dsn", "", "Postgres DSN (in-memory store when empty)")
	flags.String("redis-addr", "", "Redis address for a shared analytics cache (in-memory when empty)")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database")
	flags.String("nats-url", "", "NATS URL for trade notifications")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
