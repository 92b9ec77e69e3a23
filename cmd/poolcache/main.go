package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolcache/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "poolcache",
		Short:        "In-memory AMM pool state cache",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Follow pool events and keep pool state in memory",
		RunE:  runListener,
	}

	runCmd.Flags().String("rpc", "", "EVM RPC URL")
	runCmd.Flags().StringSlice("v2-pools", nil, "Uniswap V2 pair addresses (comma-separated)")
	runCmd.Flags().StringSlice("v3-pools", nil, "Uniswap V3 pool addresses (comma-separated)")
	runCmd.Flags().Uint64("batch-size", 500, "blocks per log query")
	runCmd.Flags().Duration("poll-interval", 4*time.Second, "delay between head polls")
	runCmd.Flags().Uint64("confirmations", 0, "blocks to stay behind head")
	runCmd.Flags().Uint64("start-block", 0, "first block to replay, 0 means head at bootstrap")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("sink", config.SinkJSONL, "snapshot sink (jsonl, postgres, sqlite, none)")
	runCmd.Flags().String("snapshot-out", "./data/pools.jsonl", "JSONL snapshot path")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	runCmd.Flags().String("sqlite-path", "./data/pools.db", "SQLite database path")
	runCmd.Flags().Duration("snapshot-interval", 30*time.Second, "delay between snapshot exports")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against a saved pool snapshot",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("snapshot", "./data/pools.jsonl", "JSONL snapshot path")
	quoteCmd.Flags().String("pool", "", "pool address")
	quoteCmd.Flags().String("amount-in", "", "input amount in raw token units")
	quoteCmd.Flags().Bool("zero-for-one", true, "swap token0 for token1")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	return root
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
