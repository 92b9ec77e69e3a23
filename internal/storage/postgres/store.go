package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolcache/internal/model"
)

const createPoolStatesSQL = `
	CREATE TABLE IF NOT EXISTS pool_states (
		address        TEXT PRIMARY KEY,
		protocol       TEXT NOT NULL,
		token0         TEXT NOT NULL,
		token1         TEXT NOT NULL,
		reserve0       NUMERIC(78, 0),
		reserve1       NUMERIC(78, 0),
		sqrt_price_x96 NUMERIC(78, 0),
		liquidity      NUMERIC(39, 0),
		tick           INTEGER,
		price          DOUBLE PRECISION NOT NULL,
		captured_at    TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// Store persists pool snapshots to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the pool_states table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createPoolStatesSQL); err != nil {
		return fmt.Errorf("create pool_states: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// PutSnapshots upserts every pool keyed by address.
func (s *Store) PutSnapshots(ctx context.Context, pools []model.PoolSnapshot) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range pools {
		batch.Queue(`
			INSERT INTO pool_states (
				address, protocol, token0, token1, reserve0, reserve1,
				sqrt_price_x96, liquidity, tick, price, captured_at, updated_at
			) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11::timestamptz, now())
			ON CONFLICT (address)
			DO UPDATE SET
				protocol = EXCLUDED.protocol,
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				reserve0 = EXCLUDED.reserve0,
				reserve1 = EXCLUDED.reserve1,
				sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
				liquidity = EXCLUDED.liquidity,
				tick = EXCLUDED.tick,
				price = EXCLUDED.price,
				captured_at = EXCLUDED.captured_at,
				updated_at = now()
		`,
			p.Address,
			p.Protocol,
			p.Token0,
			p.Token1,
			nullable(p.Reserve0),
			nullable(p.Reserve1),
			nullable(p.SqrtPriceX96),
			nullable(p.Liquidity),
			p.Tick,
			p.Price,
			p.CapturedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
