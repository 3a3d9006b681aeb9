package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/sethvargo/go-retry"

	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/infra/storage"
	"github.com/vietddude/path402/internal/metrics"
)

// Store implements storage.LedgerStore on PostgreSQL.
type Store struct {
	db          *DB
	tokens      *TokenRepo
	accounts    *AccountRepo
	balances    *BalanceRepo
	records     *RecordRepo
	mintRetries uint64
	log         *slog.Logger
}

// NewStore creates a ledger store. mintRetries bounds retries of a mint that
// lost a serialization race.
func NewStore(db *DB, mintRetries uint64) *Store {
	if mintRetries == 0 {
		mintRetries = 3
	}
	return &Store{
		db:          db,
		tokens:      NewTokenRepo(db),
		accounts:    NewAccountRepo(db),
		balances:    NewBalanceRepo(db),
		records:     NewRecordRepo(db),
		mintRetries: mintRetries,
		log:         slog.Default().With("component", "postgres"),
	}
}

func (s *Store) Tokens() storage.TokenRepository     { return s.tokens }
func (s *Store) Accounts() storage.AccountRepository { return s.accounts }
func (s *Store) Balances() storage.BalanceRepository { return s.balances }
func (s *Store) Records() storage.TxRecordRepository { return s.records }

// Mint runs the mint unit of work, retrying serialization failures.
func (s *Store) Mint(ctx context.Context, p storage.MintParams) (*domain.MintResult, error) {
	var result *domain.MintResult

	backoff := retry.WithMaxRetries(s.mintRetries, retry.NewExponential(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := s.mintOnce(ctx, p)
		if err != nil {
			if isRetryable(err) {
				metrics.MintRetries.Inc()
				s.log.Debug("Retrying mint", "token", p.Token.Address, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) mintOnce(ctx context.Context, p storage.MintParams) (*domain.MintResult, error) {
	uow, err := s.db.NewUnitOfWork(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()

	token, err := uow.LockToken(ctx, p.Token)
	if err != nil {
		return nil, err
	}
	if err := checkTreasury(token); err != nil {
		return nil, err
	}

	unitPrice := p.Price(token)
	if p.PricePaid < unitPrice {
		return nil, fmt.Errorf("mint %s: paid %d, price %d: %w", token.Address, p.PricePaid, unitPrice, domain.ErrStaleQuote)
	}

	token, err = uow.DecrementTreasury(ctx, token.Address, p.Now)
	if err != nil {
		return nil, err
	}

	account, err := uow.TouchAccount(ctx, p.Account, p.Now)
	if err != nil {
		return nil, err
	}

	bal, err := uow.CreditBalance(ctx, account.Handle, token.Address, p.PricePaid, p.Now)
	if err != nil {
		return nil, err
	}

	rec := domain.TxRecord{
		ID:            p.RecordID,
		Type:          domain.TxTypeMint,
		TokenAddress:  token.Address,
		ToHandle:      account.Handle,
		Amount:        1,
		UnitPrice:     unitPrice,
		TotalPrice:    p.PricePaid,
		SettlementRef: p.SettlementRef,
		CreatedAt:     p.Now,
	}
	if err := uow.AppendRecord(ctx, &rec); err != nil {
		if isSettlementConflict(err) {
			return nil, fmt.Errorf("mint %s: settlement %s: %w", token.Address, p.SettlementRef, domain.ErrSettlementReused)
		}
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit mint: %w", err)
	}

	return &domain.MintResult{
		Account:    *account,
		Token:      *token,
		NewBalance: bal.Balance,
		UnitPrice:  unitPrice,
		Record:     rec,
	}, nil
}

const settlementIndex = "idx_ledger_transactions_settlement"

// isSettlementConflict reports a unique violation on the settlement index.
func isSettlementConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == settlementIndex
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && pqErr.Constraint == settlementIndex
	}
	return false
}

// isRetryable reports serialization failures and deadlocks from either driver.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
