package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/path402/internal/core/domain"
)

const tokenColumns = `address, name, pricing_model, base_price, decay_factor, total_supply,
	treasury_remaining, initial_treasury, max_supply, issuer_handle, issuer_share_bps,
	platform_share_bps, active, verified, created_at, updated_at`

const insertTokenQuery = `
	INSERT INTO tokens (` + tokenColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (address) DO NOTHING`

func insertTokenArgs(t *domain.Token) []any {
	return []any{
		t.Address, t.Name, string(t.PricingModel), t.BasePrice, t.DecayFactor, t.TotalSupply,
		t.TreasuryRemaining, t.InitialTreasury, t.MaxSupply, t.IssuerHandle, t.IssuerShareBps,
		t.PlatformShareBps, t.Active, t.Verified, t.CreatedAt, t.UpdatedAt,
	}
}

// TokenRepo implements storage.TokenRepository using PostgreSQL.
type TokenRepo struct {
	db *DB
}

// NewTokenRepo creates a new PostgreSQL token repository.
func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

// Ensure inserts the token if absent and returns the stored row.
func (r *TokenRepo) Ensure(ctx context.Context, token *domain.Token) (*domain.Token, error) {
	if _, err := r.db.ExecContext(ctx, insertTokenQuery, insertTokenArgs(token)...); err != nil {
		return nil, fmt.Errorf("failed to insert token: %w", err)
	}
	t, err := r.GetByAddress(ctx, token.Address)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("token %s missing after insert", token.Address)
	}
	return t, nil
}

// GetByAddress retrieves a token by address.
func (r *TokenRepo) GetByAddress(ctx context.Context, address string) (*domain.Token, error) {
	return getToken(ctx, r.db, `SELECT `+tokenColumns+` FROM tokens WHERE address = $1`, address)
}

func getToken(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*domain.Token, error) {
	var t domain.Token
	err := sqlx.GetContext(ctx, q, &t, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &t, nil
}
