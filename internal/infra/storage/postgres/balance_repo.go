package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/path402/internal/core/domain"
)

const balanceColumns = `handle, token_address, balance, total_acquired, total_spent, avg_cost, updated_at`

// BalanceRepo implements storage.BalanceRepository using PostgreSQL.
type BalanceRepo struct {
	db *DB
}

// NewBalanceRepo creates a new PostgreSQL balance repository.
func NewBalanceRepo(db *DB) *BalanceRepo {
	return &BalanceRepo{db: db}
}

// Get retrieves a holder's balance in one token.
func (r *BalanceRepo) Get(ctx context.Context, handle, tokenAddress string) (*domain.Balance, error) {
	var b domain.Balance
	err := r.db.GetContext(ctx, &b,
		`SELECT `+balanceColumns+` FROM balances WHERE handle = $1 AND token_address = $2`,
		handle, tokenAddress,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &b, nil
}

// ownedRow is the flat join of balances and tokens.
type ownedRow struct {
	domain.Balance
	Token domain.Token `db:"t"`
}

// ListOwned returns the holder's positive balances joined with their tokens.
func (r *BalanceRepo) ListOwned(ctx context.Context, handle string) ([]domain.OwnedToken, error) {
	query := `
		SELECT b.handle, b.token_address, b.balance, b.total_acquired, b.total_spent, b.avg_cost, b.updated_at,
			t.address AS "t.address", t.name AS "t.name", t.pricing_model AS "t.pricing_model",
			t.base_price AS "t.base_price", t.decay_factor AS "t.decay_factor",
			t.total_supply AS "t.total_supply", t.treasury_remaining AS "t.treasury_remaining",
			t.initial_treasury AS "t.initial_treasury", t.max_supply AS "t.max_supply",
			t.issuer_handle AS "t.issuer_handle", t.issuer_share_bps AS "t.issuer_share_bps",
			t.platform_share_bps AS "t.platform_share_bps", t.active AS "t.active",
			t.verified AS "t.verified", t.created_at AS "t.created_at", t.updated_at AS "t.updated_at"
		FROM balances b
		JOIN tokens t ON t.address = b.token_address
		WHERE b.handle = $1 AND b.balance > 0
		ORDER BY t.address`

	var rows []ownedRow
	if err := r.db.SelectContext(ctx, &rows, query, handle); err != nil {
		return nil, fmt.Errorf("failed to list owned tokens: %w", err)
	}

	owned := make([]domain.OwnedToken, 0, len(rows))
	for _, row := range rows {
		owned = append(owned, domain.OwnedToken{Balance: row.Balance, Token: row.Token})
	}
	return owned, nil
}
