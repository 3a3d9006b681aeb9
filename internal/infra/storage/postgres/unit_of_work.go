package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/path402/internal/core/domain"
)

// UnitOfWork bundles the mint statements into a single database transaction,
// ensuring atomicity (all succeed or all fail).
type UnitOfWork struct {
	tx *sqlx.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

// LockToken inserts the token if absent, then reads it with a row lock held
// until the transaction ends.
func (u *UnitOfWork) LockToken(ctx context.Context, tmpl *domain.Token) (*domain.Token, error) {
	if _, err := u.tx.ExecContext(ctx, insertTokenQuery, insertTokenArgs(tmpl)...); err != nil {
		return nil, fmt.Errorf("failed to insert token: %w", err)
	}
	t, err := getToken(ctx, u.tx, `SELECT `+tokenColumns+` FROM tokens WHERE address = $1 FOR UPDATE`, tmpl.Address)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("token %s missing after insert", tmpl.Address)
	}
	return t, nil
}

// DecrementTreasury issues one unit. It reports ErrInsufficientTreasury when
// the treasury is already empty.
func (u *UnitOfWork) DecrementTreasury(ctx context.Context, address string, now time.Time) (*domain.Token, error) {
	t, err := getToken(ctx, u.tx, `
		UPDATE tokens SET
			total_supply = total_supply + 1,
			treasury_remaining = treasury_remaining - 1,
			updated_at = $2
		WHERE address = $1 AND treasury_remaining > 0
			AND (max_supply IS NULL OR total_supply < max_supply)
		RETURNING `+tokenColumns, address, now)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("mint %s: %w", address, domain.ErrInsufficientTreasury)
	}
	return t, nil
}

// TouchAccount upserts the holder account.
func (u *UnitOfWork) TouchAccount(ctx context.Context, account *domain.Account, now time.Time) (*domain.Account, error) {
	return touchAccount(ctx, u.tx, account, now)
}

// CreditBalance adds one unit to the holder's balance.
func (u *UnitOfWork) CreditBalance(
	ctx context.Context,
	handle, address string,
	paid int64,
	now time.Time,
) (*domain.Balance, error) {
	var b domain.Balance
	err := u.tx.GetContext(ctx, &b, `
		INSERT INTO balances (`+balanceColumns+`)
		VALUES ($1, $2, 1, 1, $3, $3, $4)
		ON CONFLICT (handle, token_address) DO UPDATE SET
			balance = balances.balance + 1,
			total_acquired = balances.total_acquired + 1,
			total_spent = balances.total_spent + EXCLUDED.total_spent,
			avg_cost = (balances.total_spent + EXCLUDED.total_spent) / (balances.total_acquired + 1),
			updated_at = EXCLUDED.updated_at
		RETURNING `+balanceColumns,
		handle, address, paid, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to credit balance: %w", err)
	}
	return &b, nil
}

// AppendRecord writes an immutable ledger transaction.
func (u *UnitOfWork) AppendRecord(ctx context.Context, rec *domain.TxRecord) error {
	return appendRecord(ctx, u.tx, rec)
}

// checkTreasury mirrors the UPDATE guard so the price is derived only for a
// token that can actually issue.
func checkTreasury(t *domain.Token) error {
	if t.TreasuryRemaining <= 0 || (t.MaxSupply != nil && t.TotalSupply >= *t.MaxSupply) {
		return fmt.Errorf("mint %s: %w", t.Address, domain.ErrInsufficientTreasury)
	}
	return nil
}
