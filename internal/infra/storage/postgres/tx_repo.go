package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/path402/internal/core/domain"
)

const recordColumns = `id, tx_type, token_address, from_handle, to_handle, amount, unit_price,
	total_price, settlement_ref, created_at`

// RecordRepo implements storage.TxRecordRepository using PostgreSQL.
type RecordRepo struct {
	db *DB
}

// NewRecordRepo creates a new PostgreSQL ledger record repository.
func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// ListByToken returns the newest records for a token first.
func (r *RecordRepo) ListByToken(ctx context.Context, tokenAddress string, limit int) ([]domain.TxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []domain.TxRecord
	err := r.db.SelectContext(ctx, &recs,
		`SELECT `+recordColumns+` FROM ledger_transactions
		WHERE token_address = $1 ORDER BY created_at DESC LIMIT $2`,
		tokenAddress, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger transactions: %w", err)
	}
	return recs, nil
}

func appendRecord(ctx context.Context, e sqlx.ExecerContext, rec *domain.TxRecord) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO ledger_transactions (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, string(rec.Type), rec.TokenAddress, rec.FromHandle, rec.ToHandle,
		rec.Amount, rec.UnitPrice, rec.TotalPrice, rec.SettlementRef, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger transaction: %w", err)
	}
	return nil
}
