package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolcache/internal/chain"
	"poolcache/internal/config"
	"poolcache/internal/dex"
	"poolcache/internal/indexer"
	"poolcache/internal/snapshot"
	"poolcache/internal/state"
	"poolcache/internal/storage"
	"poolcache/internal/storage/postgres"
	"poolcache/internal/storage/sqlite"
)

func runListener(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	pools, err := indexer.ParsePoolTargets(cfg.V2Pools, cfg.V3Pools)
	if err != nil {
		return err
	}

	registry, err := dex.DefaultRegistry()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	sink, err := openSink(ctx, cfg)
	if err != nil {
		return err
	}
	if sink != nil {
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Warn("close sink", zap.Error(err))
			}
		}()
	}

	manager := state.NewManager()
	runner := indexer.NewRunner(indexer.RunConfig{
		Pools:             pools,
		StartBlock:        cfg.StartBlock,
		BatchSize:         cfg.BatchSize,
		PollInterval:      cfg.PollInterval,
		Confirmations:     cfg.Confirmations,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, manager, registry, logger)

	logger.Info("poolcache start",
		zap.String("rpc", cfg.RPCURL),
		zap.Int("pools", len(pools)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Uint64("confirmations", cfg.Confirmations),
		zap.String("sink", cfg.Sink),
		zap.String("pg_dsn", redactDSN(cfg.PostgresDSN)),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return runner.Run(groupCtx)
	})
	if sink != nil {
		exporter := snapshot.NewExporter(manager, sink, cfg.SnapshotInterval, logger)
		group.Go(func() error {
			return exporter.Run(groupCtx)
		})
	}

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("poolcache stopped", zap.Int("pools", manager.PoolCount()), zap.Error(err))
	return err
}

// openSink returns nil for the none sink.
func openSink(ctx context.Context, cfg config.Config) (storage.Sink, error) {
	switch cfg.Sink {
	case config.SinkJSONL:
		return storage.NewJSONLSink(cfg.SnapshotOut), nil
	case config.SinkPostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.SinkSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil
	case config.SinkNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
