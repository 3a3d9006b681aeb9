package storage

import (
	"context"
	"time"

	"github.com/vietddude/path402/internal/core/domain"
)

// TokenRepository handles content token storage.
type TokenRepository interface {
	// Ensure inserts token if its address is absent and returns the stored row.
	// Concurrent callers for the same address observe a single row.
	Ensure(ctx context.Context, token *domain.Token) (*domain.Token, error)

	// GetByAddress returns nil, nil when the token does not exist.
	GetByAddress(ctx context.Context, address string) (*domain.Token, error)
}

// AccountRepository handles holder identities.
type AccountRepository interface {
	// Touch creates the account if absent and bumps last_seen_at.
	Touch(ctx context.Context, account *domain.Account) (*domain.Account, error)
}

// BalanceRepository handles holder balances.
type BalanceRepository interface {
	// Get returns nil, nil when the holder has never acquired the token.
	Get(ctx context.Context, handle, tokenAddress string) (*domain.Balance, error)

	// ListOwned returns positive balances joined with their tokens.
	ListOwned(ctx context.Context, handle string) ([]domain.OwnedToken, error)
}

// TxRecordRepository reads the append-only ledger log.
type TxRecordRepository interface {
	ListByToken(ctx context.Context, tokenAddress string, limit int) ([]domain.TxRecord, error)
}

// PriceFunc derives the unit price from the token state at charge time.
type PriceFunc func(token *domain.Token) int64

// MintParams describes one unit issued from a token's treasury.
type MintParams struct {
	Token         *domain.Token // template used if the token does not exist yet
	Account       *domain.Account
	PricePaid     int64
	SettlementRef string
	Price         PriceFunc
	RecordID      string
	Now           time.Time
}

// Minter performs the atomic mint step: ensure token, conditionally decrement
// the treasury, price the unit, credit the balance and append the record.
type Minter interface {
	Mint(ctx context.Context, params MintParams) (*domain.MintResult, error)
}

// LedgerStore is everything the content token ledger persists.
type LedgerStore interface {
	Tokens() TokenRepository
	Accounts() AccountRepository
	Balances() BalanceRepository
	Records() TxRecordRepository
	Minter
}

// PaywallStore holds ephemeral paywall state. Implementations must make
// ClaimRedemption and ConsumeUse atomic.
type PaywallStore interface {
	SaveRequest(ctx context.Context, req *domain.PaymentRequest) error
	// GetRequest returns nil, nil when absent.
	GetRequest(ctx context.Context, id string) (*domain.PaymentRequest, error)
	// FulfillRequest marks a pending request fulfilled. It returns false if the
	// request was missing or not pending.
	FulfillRequest(ctx context.Context, id string) (bool, error)

	AppendReceipt(ctx context.Context, receipt *domain.Receipt) error
	// GetReceipt returns nil, nil when absent.
	GetReceipt(ctx context.Context, id string) (*domain.Receipt, error)
	ListReceipts(ctx context.Context, start, end time.Time) ([]*domain.Receipt, error)

	// ClaimRedemption reserves requestID for token. It returns false if the
	// request already produced a token.
	ClaimRedemption(ctx context.Context, requestID, token string) (bool, error)
	// ReleaseRedemption undoes a claim, but only if token still holds it.
	ReleaseRedemption(ctx context.Context, requestID, token string) error

	// ClaimSettlement binds a settlement reference to one request. It returns
	// false if ref already backs another request.
	ClaimSettlement(ctx context.Context, ref, requestID string) (bool, error)
	// ReleaseSettlement undoes a claim, but only if requestID still holds it.
	ReleaseSettlement(ctx context.Context, ref, requestID string) error

	SaveToken(ctx context.Context, token *domain.AccessToken) error
	// GetToken returns nil, nil when absent.
	GetToken(ctx context.Context, token string) (*domain.AccessToken, error)
	// ConsumeUse increments the usage count if it is below the token's limit.
	ConsumeUse(ctx context.Context, token string) (bool, error)
	RevokeToken(ctx context.Context, token string) (bool, error)

	// Sweep removes requests and tokens expired before now.
	Sweep(ctx context.Context, now time.Time) (requests, tokens int, err error)
}
