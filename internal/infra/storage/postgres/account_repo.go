package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/path402/internal/core/domain"
)

const touchAccountQuery = `
	INSERT INTO accounts (handle, display_name, created_at, last_seen_at)
	VALUES ($1, $2, $3, $3)
	ON CONFLICT (handle) DO UPDATE SET
		last_seen_at = EXCLUDED.last_seen_at,
		display_name = CASE WHEN accounts.display_name = '' THEN EXCLUDED.display_name ELSE accounts.display_name END
	RETURNING handle, display_name, created_at, last_seen_at`

// AccountRepo implements storage.AccountRepository using PostgreSQL.
type AccountRepo struct {
	db *DB
}

// NewAccountRepo creates a new PostgreSQL account repository.
func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// Touch upserts the account and bumps last_seen_at.
func (r *AccountRepo) Touch(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	now := account.LastSeenAt
	if now.IsZero() {
		now = time.Now()
	}
	return touchAccount(ctx, r.db, account, now)
}

func touchAccount(ctx context.Context, q sqlx.QueryerContext, account *domain.Account, now time.Time) (*domain.Account, error) {
	var a domain.Account
	if err := sqlx.GetContext(ctx, q, &a, touchAccountQuery, account.Handle, account.DisplayName, now); err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return &a, nil
}
