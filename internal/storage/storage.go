package storage

import (
	"context"

	"poolcache/internal/model"
)

// Sink receives full exports of the pool cache.
type Sink interface {
	PutSnapshots(ctx context.Context, pools []model.PoolSnapshot) error
	Close() error
}
