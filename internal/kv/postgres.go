package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pifp-labs/pifp-ledger/internal/platform/db"
)

// Postgres implements Store on a single table with an expires_at column.
// Expired rows are treated as absent on read and reclaimed by Sweep.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps pool. The kv_entries table must exist (see scripts/seed).
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Get implements Store.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM kv_entries WHERE key = $1 AND expires_at > NOW()`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: postgres get: %w", err)
	}
	return value, nil
}

// Set implements Store.
func (p *Postgres) Set(ctx context.Context, key string, value []byte, retention time.Duration) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, $2, NOW() + $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, retention)
	if err != nil {
		return fmt.Errorf("kv: postgres set: %w", err)
	}
	return nil
}

// SetMulti implements Store. The batch runs inside one transaction so either
// every row lands or the table is untouched.
func (p *Postgres) SetMulti(ctx context.Context, entries []Entry) error {
	err := db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		for _, e := range entries {
			_, err := tx.Exec(ctx,
				`INSERT INTO kv_entries (key, value, expires_at) VALUES ($1, $2, NOW() + $3)
				 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
				e.Key, e.Value, e.Retention)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kv: postgres setmulti: %w", err)
	}
	return nil
}

// Remaining implements Store.
func (p *Postgres) Remaining(ctx context.Context, key string) (time.Duration, error) {
	var remaining time.Duration
	err := p.pool.QueryRow(ctx,
		`SELECT expires_at - NOW() FROM kv_entries WHERE key = $1 AND expires_at > NOW()`, key,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("kv: postgres remaining: %w", err)
	}
	return remaining, nil
}

// ExtendRetention implements Store.
func (p *Postgres) ExtendRetention(ctx context.Context, key string, threshold, extendTo time.Duration) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE kv_entries SET expires_at = NOW() + $3
		 WHERE key = $1 AND expires_at > NOW() AND expires_at < NOW() + $2`,
		key, threshold, extendTo)
	if err != nil {
		return fmt.Errorf("kv: postgres extend: %w", err)
	}
	return nil
}

// Delete implements Store.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("kv: postgres delete: %w", err)
	}
	return nil
}

// Sweep removes rows whose retention elapsed. Intended for a periodic job.
func (p *Postgres) Sweep(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM kv_entries WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("kv: postgres sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*Postgres)(nil)
