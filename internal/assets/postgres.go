package assets

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pifp-labs/pifp-ledger/internal/platform/db"
	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// Postgres keeps token balances in the asset_accounts table. Transfers run
// inside a transaction; a debit that would go negative rolls the whole call
// back with ErrInsufficientBalance.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Transfer implements the Transfer interface.
func (p *Postgres) Transfer(ctx context.Context, token, from, to shared.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("assets: transfer amount must be positive")
	}
	return db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE asset_accounts SET balance = balance - $3::numeric
			 WHERE token = $1 AND address = $2 AND balance >= $3::numeric`,
			string(token), string(from), amount.String())
		if err != nil {
			return fmt.Errorf("assets: debit: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrInsufficientBalance
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO asset_accounts (token, address, balance) VALUES ($1, $2, $3::numeric)
			 ON CONFLICT (token, address) DO UPDATE SET balance = asset_accounts.balance + EXCLUDED.balance`,
			string(token), string(to), amount.String())
		if err != nil {
			return fmt.Errorf("assets: credit: %w", err)
		}
		return nil
	})
}

// Balance implements the Transfer interface.
func (p *Postgres) Balance(ctx context.Context, token, addr shared.Address) (*big.Int, error) {
	var raw string
	err := p.pool.QueryRow(ctx,
		`SELECT balance::text FROM asset_accounts WHERE token = $1 AND address = $2`,
		string(token), string(addr)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("assets: balance: %w", err)
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("assets: balance: malformed numeric %q", raw)
	}
	return value, nil
}

// Mint credits amount of token to addr, for provisioning and tests.
func (p *Postgres) Mint(ctx context.Context, token, addr shared.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("assets: mint amount must be positive")
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO asset_accounts (token, address, balance) VALUES ($1, $2, $3::numeric)
		 ON CONFLICT (token, address) DO UPDATE SET balance = asset_accounts.balance + EXCLUDED.balance`,
		string(token), string(addr), amount.String())
	if err != nil {
		return fmt.Errorf("assets: mint: %w", err)
	}
	return nil
}

var _ Transfer = (*Postgres)(nil)
