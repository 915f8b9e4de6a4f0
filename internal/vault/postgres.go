package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresVault persists balances and allowances in PostgreSQL.
// Amounts are stored as NUMERIC(78,0) and exchanged with the driver as
// decimal text so no precision is lost.
type PostgresVault struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresVault creates a PostgresVault backed by the given connection pool.
func NewPostgresVault(pool *pgxpool.Pool, logger *zap.Logger) *PostgresVault {
	return &PostgresVault{pool: pool, logger: logger}
}

// BalanceOf implements Vault.
func (v *PostgresVault) BalanceOf(ctx context.Context, asset, holder common.Address) (*uint256.Int, error) {
	var dec string
	err := v.pool.QueryRow(ctx,
		`SELECT amount::text FROM vault_balances WHERE asset = $1 AND holder = $2`,
		asset.Hex(), holder.Hex(),
	).Scan(&dec)
	if errors.Is(err, pgx.ErrNoRows) {
		return uint256.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query balance: %w", err)
	}
	amount, err := uint256.FromDecimal(dec)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", dec, err)
	}
	return amount, nil
}

// Execute implements Vault. All transfers run in a single transaction; the
// first failure rolls back everything.
func (v *PostgresVault) Execute(ctx context.Context, transfers []Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	tx, err := v.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := v.ExecuteTx(ctx, tx, transfers); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit vault tx: %w", err)
	}
	return nil
}

// ExecuteTx applies transfers inside tx, which the caller commits. Callers
// use it to join the transfers with other writes in one transaction.
func (v *PostgresVault) ExecuteTx(ctx context.Context, tx pgx.Tx, transfers []Transfer) error {
	for i, t := range transfers {
		amount := t.Amount.Dec()

		if t.Kind == KindPull {
			tag, err := tx.Exec(ctx,
				`UPDATE vault_allowances SET amount = amount - $4::text::numeric
				 WHERE asset = $1 AND owner = $2 AND spender = $3 AND amount >= $4::text::numeric`,
				t.Asset.Hex(), t.From.Hex(), t.Spender.Hex(), amount,
			)
			if err != nil {
				return transferErr(i, t, err)
			}
			if tag.RowsAffected() != 1 {
				return transferErr(i, t, ErrInsufficientAllowance)
			}
		}

		tag, err := tx.Exec(ctx,
			`UPDATE vault_balances SET amount = amount - $3::text::numeric
			 WHERE asset = $1 AND holder = $2 AND amount >= $3::text::numeric`,
			t.Asset.Hex(), t.From.Hex(), amount,
		)
		if err != nil {
			return transferErr(i, t, err)
		}
		if tag.RowsAffected() != 1 && !t.Amount.IsZero() {
			return transferErr(i, t, ErrInsufficientBalance)
		}

		if err := credit(ctx, tx, t.Asset, t.To, amount); err != nil {
			return transferErr(i, t, err)
		}
	}

	v.logger.Debug("vault batch applied", zap.Int("transfers", len(transfers)))
	return nil
}

// Mint implements Faucet.
func (v *PostgresVault) Mint(ctx context.Context, asset, to common.Address, amount *uint256.Int) error {
	tx, err := v.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := credit(ctx, tx, asset, to, amount.Dec()); err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	return tx.Commit(ctx)
}

// Approve implements Faucet. It replaces any previous allowance.
func (v *PostgresVault) Approve(ctx context.Context, asset, owner, spender common.Address, amount *uint256.Int) error {
	if _, err := v.pool.Exec(ctx,
		`INSERT INTO vault_allowances (asset, owner, spender, amount)
		 VALUES ($1, $2, $3, $4::text::numeric)
		 ON CONFLICT (asset, owner, spender) DO UPDATE SET amount = EXCLUDED.amount`,
		asset.Hex(), owner.Hex(), spender.Hex(), amount.Dec(),
	); err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	return nil
}

// credit adds amount to holder's balance. The column's CHECK constraint
// rejects values above 2^256-1.
func credit(ctx context.Context, tx pgx.Tx, asset, holder common.Address, amount string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO vault_balances (asset, holder, amount)
		 VALUES ($1, $2, $3::text::numeric)
		 ON CONFLICT (asset, holder) DO UPDATE SET amount = vault_balances.amount + EXCLUDED.amount`,
		asset.Hex(), holder.Hex(), amount,
	)
	return err
}

var (
	_ Vault  = (*PostgresVault)(nil)
	_ Faucet = (*PostgresVault)(nil)
)
