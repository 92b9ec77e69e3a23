package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"poolcache/internal/dex"
	"poolcache/internal/state"
)

// ChainReader is the chain access the runner needs. *chain.Client satisfies it.
type ChainReader interface {
	dex.ContractCaller
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for the listener.
type RunConfig struct {
	Pools             []PoolTarget
	StartBlock        uint64
	BatchSize         uint64
	PollInterval      time.Duration
	Confirmations     uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner follows pool events on chain and keeps the Manager current.
type Runner struct {
	cfg        RunConfig
	chain      ChainReader
	manager    *state.Manager
	registry   *dex.Registry
	tokens     *dex.TokenCache
	logger     *zap.Logger
	checkpoint *CheckpointStore

	protocols map[common.Address]state.Protocol
	addresses []common.Address
	chainID   uint64
	// floors holds, per pool, the block whose state was read directly; logs
	// at or below it are already reflected in the cache.
	floors map[common.Address]uint64
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, chainReader ChainReader, manager *state.Manager, registry *dex.Registry, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}

	protocols := make(map[common.Address]state.Protocol, len(cfg.Pools))
	addresses := make([]common.Address, 0, len(cfg.Pools))
	for _, pool := range cfg.Pools {
		if _, ok := protocols[pool.Address]; !ok {
			addresses = append(addresses, pool.Address)
		}
		protocols[pool.Address] = pool.Protocol
	}

	return &Runner{
		cfg:        cfg,
		chain:      chainReader,
		manager:    manager,
		registry:   registry,
		tokens:     dex.NewTokenCache(),
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		protocols:  protocols,
		floors:     make(map[common.Address]uint64),
		addresses:  addresses,
	}
}

func (r *Runner) validate() error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.manager == nil {
		return fmt.Errorf("state manager is nil")
	}
	if r.registry == nil {
		return fmt.Errorf("decoder registry is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be greater than zero")
	}
	if len(r.addresses) == 0 {
		return fmt.Errorf("at least one pool is required")
	}
	for address, protocol := range r.protocols {
		if protocol == state.ProtocolUnknown {
			return fmt.Errorf("pool %s has no protocol", address.Hex())
		}
	}
	return nil
}

// Run bootstraps every pool and then polls for new blocks until ctx is done.
// It returns ctx.Err() on cancellation.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	r.chainID = chainID.Uint64()

	if err := r.ResolveTokens(ctx); err != nil {
		return err
	}

	next, err := r.startBlock(ctx)
	if err != nil {
		return err
	}

	var bootstrapAt uint64
	if next > 0 {
		bootstrapAt = next - 1
	}
	r.Bootstrap(ctx, bootstrapAt)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		next, err = r.SyncOnce(ctx, next)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("sync failed", zap.Error(err), zap.Uint64("next", next))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// startBlock picks the first block to replay: after the checkpoint, then the
// configured start block, then the block after the safe head.
func (r *Runner) startBlock(ctx context.Context) (uint64, error) {
	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return 0, err
	}
	if ok {
		if cp.ChainID != 0 && cp.ChainID != r.chainID {
			return 0, fmt.Errorf("checkpoint chain id %d does not match chain %d", cp.ChainID, r.chainID)
		}
		next := cp.LastProcessedBlock + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", next))
		return next, nil
	}
	if r.cfg.StartBlock > 0 {
		return r.cfg.StartBlock, nil
	}

	head, err := r.safeHead(ctx)
	if err != nil {
		return 0, err
	}
	return head + 1, nil
}

// ResolveTokens loads token0/token1 for every pool that is not cached yet.
func (r *Runner) ResolveTokens(ctx context.Context) error {
	for _, address := range r.addresses {
		address := address
		err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			_, err := r.tokens.Resolve(ctx, r.chain, address, r.logger)
			if err != nil {
				r.logger.Warn("resolve pool tokens failed", zap.Error(err), zap.String("pool", address.Hex()))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("resolve tokens for %s: %w", address.Hex(), err)
		}
	}
	return nil
}

// Bootstrap reads the state of every pool at block and writes it to the
// Manager. Pools that fail are logged and left for the next event to fill.
// It returns the number of pools loaded.
func (r *Runner) Bootstrap(ctx context.Context, block uint64) int {
	blockNumber := new(big.Int).SetUint64(block)
	loaded := 0
	for _, address := range r.addresses {
		tokens, ok := r.tokens.Get(address)
		if !ok {
			r.logger.Warn("bootstrap skipped, tokens unknown", zap.String("pool", address.Hex()))
			continue
		}

		address := address
		err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			return r.bootstrapPool(ctx, address, tokens, blockNumber)
		})
		if err != nil {
			r.logger.Warn("bootstrap pool failed", zap.Error(err), zap.String("pool", address.Hex()), zap.Uint64("block", block))
			if !r.bootstrapAtHead(ctx, address, tokens, block) {
				continue
			}
		}
		loaded++
	}
	r.logger.Info("bootstrap complete", zap.Int("pools", loaded), zap.Int("configured", len(r.addresses)), zap.Uint64("block", block))
	return loaded
}

// bootstrapAtHead retries a failed historical read at the safe head, which
// works on nodes that have pruned the older state. Logs up to the head are
// then skipped for that pool.
func (r *Runner) bootstrapAtHead(ctx context.Context, address common.Address, tokens dex.PoolTokens, block uint64) bool {
	head, err := r.safeHead(ctx)
	if err != nil || head <= block {
		return false
	}
	err = withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		return r.bootstrapPool(ctx, address, tokens, new(big.Int).SetUint64(head))
	})
	if err != nil {
		r.logger.Warn("bootstrap pool at head failed", zap.Error(err), zap.String("pool", address.Hex()), zap.Uint64("block", head))
		return false
	}
	r.floors[address] = head
	r.logger.Info("pool bootstrapped at head", zap.String("pool", address.Hex()), zap.Uint64("block", head))
	return true
}

func (r *Runner) bootstrapPool(ctx context.Context, address common.Address, tokens dex.PoolTokens, block *big.Int) error {
	switch r.protocols[address] {
	case state.UniswapV2:
		pool, err := dex.FetchV2State(ctx, r.chain, address, tokens, block)
		if err != nil {
			return err
		}
		r.manager.UpdateV2(pool)
	case state.UniswapV3:
		pool, err := dex.FetchV3State(ctx, r.chain, address, tokens, block)
		if err != nil {
			return err
		}
		r.manager.UpdateV3(pool)
	default:
		return fmt.Errorf("unsupported protocol %s", r.protocols[address])
	}
	return nil
}

// SyncOnce applies every log from next up to the safe head and returns the
// next block to process. On error the returned block is the first one not
// yet applied.
func (r *Runner) SyncOnce(ctx context.Context, next uint64) (uint64, error) {
	head, err := r.safeHead(ctx)
	if err != nil {
		return next, err
	}
	ranges, err := PendingRanges(next, head, r.cfg.BatchSize)
	if err != nil {
		return next, err
	}
	if len(ranges) == 0 {
		r.logger.Debug("nothing to sync", zap.Uint64("from", next), zap.Uint64("head", head))
		return next, nil
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return next, ctx.Err()
		default:
		}

		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return next, fmt.Errorf("filter logs: %w", err)
		}

		applied := r.applyLogs(ctx, logs)

		if err := r.checkpoint.Save(r.chainID, blockRange.To); err != nil {
			return next, err
		}
		next = blockRange.To + 1

		r.logger.Info("batch complete",
			zap.Int("logs", len(logs)),
			zap.Int("applied", applied),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}

	return next, nil
}

func (r *Runner) safeHead(ctx context.Context) (uint64, error) {
	var latest uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = r.chain.LatestBlockNumber(ctx)
		if err != nil {
			r.logger.Warn("latest block fetch failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	if latest < r.cfg.Confirmations {
		return 0, nil
	}
	return latest - r.cfg.Confirmations, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.addresses, r.registry.Topics())
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

// applyLogs writes decoded logs to the Manager in (block, index) order and
// returns how many were applied.
func (r *Runner) applyLogs(ctx context.Context, logs []types.Log) int {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	applied := 0
	for _, log := range logs {
		if err := r.applyLog(ctx, log); err != nil {
			if !errors.Is(err, errSkipLog) {
				r.logger.Warn("apply log failed",
					zap.Error(err),
					zap.String("pool", log.Address.Hex()),
					zap.Uint64("block", log.BlockNumber),
					zap.Uint("index", log.Index),
				)
			}
			continue
		}
		applied++
	}
	return applied
}

var errSkipLog = errors.New("log skipped")

func (r *Runner) applyLog(ctx context.Context, log types.Log) error {
	if log.Removed || len(log.Topics) == 0 {
		return errSkipLog
	}
	expected, ok := r.protocols[log.Address]
	if !ok {
		return errSkipLog
	}
	if floor, ok := r.floors[log.Address]; ok && log.BlockNumber <= floor {
		return errSkipLog
	}
	decoder, ok := r.registry.Lookup(log.Topics[0])
	if !ok {
		return errSkipLog
	}
	if decoder.Protocol() != expected {
		return fmt.Errorf("%s event on %s pool", decoder.Protocol(), expected)
	}

	tokens, ok := r.tokens.Get(log.Address)
	if !ok {
		return fmt.Errorf("tokens unknown")
	}

	if patcher, ok := decoder.(dex.Patcher); ok {
		decoded, err := r.patch(ctx, patcher, log, tokens)
		if err != nil {
			return err
		}
		return r.store(decoded)
	}

	decoded, err := decoder.Decode(log, tokens)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return r.store(decoded)
}

// patch applies a partial event to the cached entry. Without a usable entry
// the pool is re-read at the log's block, which already includes the event.
func (r *Runner) patch(ctx context.Context, patcher dex.Patcher, log types.Log, tokens dex.PoolTokens) (state.PoolState, error) {
	if current, ok := r.manager.Get(log.Address); ok && current.Protocol() == r.protocols[log.Address] {
		patched, err := patcher.Patch(log, current)
		if err == nil {
			return patched, nil
		}
		r.logger.Warn("patch failed, refetching pool",
			zap.Error(err),
			zap.String("pool", log.Address.Hex()),
			zap.Uint64("block", log.BlockNumber),
		)
	}

	block := new(big.Int).SetUint64(log.BlockNumber)
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		return r.bootstrapPool(ctx, log.Address, tokens, block)
	})
	if err != nil {
		return state.PoolState{}, fmt.Errorf("refetch at block %d: %w", log.BlockNumber, err)
	}
	r.floors[log.Address] = log.BlockNumber
	refreshed, _ := r.manager.Get(log.Address)
	return refreshed, nil
}

func (r *Runner) store(decoded state.PoolState) error {
	switch decoded.Protocol() {
	case state.UniswapV2:
		pool, _ := decoded.V2()
		r.manager.UpdateV2(pool)
	case state.UniswapV3:
		pool, _ := decoded.V3()
		r.manager.UpdateV3(pool)
	default:
		return fmt.Errorf("decoder returned %s state", decoded.Protocol())
	}
	return nil
}
