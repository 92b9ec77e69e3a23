package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"poolcache/internal/model"
	"poolcache/internal/state"
	"poolcache/internal/storage"
)

const finalExportTimeout = 10 * time.Second

// Exporter periodically copies the pool cache into a storage sink.
type Exporter struct {
	manager  *state.Manager
	sink     storage.Sink
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewExporter(manager *state.Manager, sink storage.Sink, interval time.Duration, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		manager:  manager,
		sink:     sink,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// ExportOnce writes the current cache contents, ordered by address, and
// returns how many pools were written.
func (e *Exporter) ExportOnce(ctx context.Context) (int, error) {
	pools := e.manager.Snapshot()
	sort.Slice(pools, func(i, j int) bool {
		a, b := pools[i].Address(), pools[j].Address()
		return bytes.Compare(a[:], b[:]) < 0
	})

	capturedAt := e.now()
	records := make([]model.PoolSnapshot, 0, len(pools))
	for _, pool := range pools {
		record, err := model.FromState(pool, capturedAt)
		if err != nil {
			e.logger.Warn("skip pool export", zap.String("pool", pool.Address().Hex()), zap.Error(err))
			continue
		}
		records = append(records, record)
	}

	if err := e.sink.PutSnapshots(ctx, records); err != nil {
		return 0, fmt.Errorf("put snapshots: %w", err)
	}
	return len(records), nil
}

// Run exports on every interval tick until ctx is done, then exports once
// more so the last state reaches the sink.
func (e *Exporter) Run(ctx context.Context) error {
	if e.manager == nil {
		return fmt.Errorf("state manager is nil")
	}
	if e.sink == nil {
		return fmt.Errorf("sink is nil")
	}
	if e.interval <= 0 {
		return fmt.Errorf("snapshot interval must be positive")
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), finalExportTimeout)
			n, err := e.ExportOnce(flushCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("final export: %w", err)
			}
			e.logger.Info("final snapshot exported", zap.Int("pools", n))
			return nil
		case <-ticker.C:
			n, err := e.ExportOnce(ctx)
			if err != nil {
				e.logger.Warn("snapshot export failed", zap.Error(err))
				continue
			}
			e.logger.Debug("snapshot exported", zap.Int("pools", n))
		}
	}
}
