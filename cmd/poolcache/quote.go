package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolcache/internal/config"
	"poolcache/internal/model"
	"poolcache/internal/state"
	"poolcache/internal/storage"
	"poolcache/internal/storage/sqlite"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
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
	if !common.IsHexAddress(cfg.Pool) {
		return fmt.Errorf("invalid pool address: %s", cfg.Pool)
	}
	pool := common.HexToAddress(cfg.Pool)

	manager := state.NewManager()
	loaded, err := loadSnapshot(cmd.Context(), cfg.Snapshot, manager)
	if err != nil {
		return err
	}
	logger.Debug("snapshot loaded", zap.String("path", cfg.Snapshot), zap.Int("pools", loaded))

	entry, ok := manager.Get(pool)
	if !ok {
		return fmt.Errorf("pool %s not found in %s", pool.Hex(), cfg.Snapshot)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pool      %s\n", pool.Hex())
	fmt.Fprintf(out, "protocol  %s\n", entry.Protocol())
	fmt.Fprintf(out, "price     %g\n", entry.Price())

	if cfg.AmountIn == "" {
		return nil
	}

	v2, ok := entry.V2()
	if !ok {
		return fmt.Errorf("swap quotes are only supported for %s pools", state.UniswapV2)
	}
	amountIn, err := parseAmount(cfg.AmountIn)
	if err != nil {
		return err
	}
	amountOut, err := v2.AmountOut(amountIn, cfg.ZeroForOne)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "amount_in  %s\n", amountIn.Dec())
	fmt.Fprintf(out, "amount_out %s\n", amountOut.Dec())
	return nil
}

// loadSnapshot fills manager from a JSONL export or, for .db files, a SQLite
// export. It returns the number of pools loaded.
func loadSnapshot(ctx context.Context, path string, manager *state.Manager) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var records []model.PoolSnapshot
	if strings.HasSuffix(path, ".db") {
		if _, err := os.Stat(path); err != nil {
			return 0, fmt.Errorf("open snapshot: %w", err)
		}
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("open sqlite: %w", err)
		}
		defer store.Close()
		snapshots, err := store.LoadSnapshots(ctx)
		if err != nil {
			return 0, err
		}
		records = snapshots
	} else {
		snapshots, err := storage.ReadJSONL(path)
		if err != nil {
			return 0, err
		}
		records = snapshots
	}

	for _, record := range records {
		entry, err := record.ToState()
		if err != nil {
			return 0, fmt.Errorf("pool %s: %w", record.Address, err)
		}
		switch entry.Protocol() {
		case state.UniswapV2:
			v2, _ := entry.V2()
			manager.UpdateV2(v2)
		case state.UniswapV3:
			v3, _ := entry.V3()
			manager.UpdateV3(v3)
		}
	}
	return len(records), nil
}

func parseAmount(input string) (*uint256.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(input), 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount-in: %s", input)
	}
	amount, overflow := uint256.FromBig(value)
	if overflow {
		return nil, fmt.Errorf("amount-in exceeds 256 bits: %s", input)
	}
	return amount, nil
}
