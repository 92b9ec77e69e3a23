package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"poolcache/internal/model"
)

const createPoolStatesSQL = `
	CREATE TABLE IF NOT EXISTS pool_states (
		address        TEXT PRIMARY KEY,
		protocol       TEXT NOT NULL,
		token0         TEXT NOT NULL,
		token1         TEXT NOT NULL,
		reserve0       TEXT,
		reserve1       TEXT,
		sqrt_price_x96 TEXT,
		liquidity      TEXT,
		tick           INTEGER,
		price          REAL NOT NULL,
		captured_at    TEXT NOT NULL
	)`

const upsertPoolStateSQL = `
	INSERT INTO pool_states (
		address, protocol, token0, token1, reserve0, reserve1,
		sqrt_price_x96, liquidity, tick, price, captured_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(address) DO UPDATE SET
		protocol = excluded.protocol,
		token0 = excluded.token0,
		token1 = excluded.token1,
		reserve0 = excluded.reserve0,
		reserve1 = excluded.reserve1,
		sqrt_price_x96 = excluded.sqrt_price_x96,
		liquidity = excluded.liquidity,
		tick = excluded.tick,
		price = excluded.price,
		captured_at = excluded.captured_at`

// Store persists pool snapshots to a local SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, createPoolStatesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create pool_states: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutSnapshots upserts every pool in a single transaction.
func (s *Store) PutSnapshots(ctx context.Context, pools []model.PoolSnapshot) error {
	if len(pools) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPoolStateSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range pools {
		var tick sql.NullInt32
		if p.Tick != nil {
			tick = sql.NullInt32{Int32: *p.Tick, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			p.Address,
			p.Protocol,
			p.Token0,
			p.Token1,
			nullString(p.Reserve0),
			nullString(p.Reserve1),
			nullString(p.SqrtPriceX96),
			nullString(p.Liquidity),
			tick,
			p.Price,
			p.CapturedAt,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", p.Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadSnapshots returns every stored pool ordered by address.
func (s *Store) LoadSnapshots(ctx context.Context) ([]model.PoolSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, protocol, token0, token1, reserve0, reserve1,
			sqrt_price_x96, liquidity, tick, price, captured_at
		FROM pool_states ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("query pool_states: %w", err)
	}
	defer rows.Close()

	var out []model.PoolSnapshot
	for rows.Next() {
		var (
			p                                        model.PoolSnapshot
			reserve0, reserve1, sqrtPrice, liquidity sql.NullString
			tick                                     sql.NullInt32
		)
		if err := rows.Scan(&p.Address, &p.Protocol, &p.Token0, &p.Token1,
			&reserve0, &reserve1, &sqrtPrice, &liquidity, &tick, &p.Price, &p.CapturedAt); err != nil {
			return nil, fmt.Errorf("scan pool_states: %w", err)
		}
		p.Reserve0 = reserve0.String
		p.Reserve1 = reserve1.String
		p.SqrtPriceX96 = sqrtPrice.String
		p.Liquidity = liquidity.String
		if tick.Valid {
			value := tick.Int32
			p.Tick = &value
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
