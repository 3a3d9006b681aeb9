package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/infra/storage"
)

// MemoryStorage is a single-process ledger store. Every mutation happens under
// one lock, which gives the same atomicity the postgres store gets from a
// transaction.
type MemoryStorage struct {
	tokens   map[string]*domain.Token
	accounts map[string]*domain.Account
	balances map[string]*domain.Balance
	records  map[string][]domain.TxRecord
	settled  map[string]struct{}
	mu       sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tokens:   make(map[string]*domain.Token),
		accounts: make(map[string]*domain.Account),
		balances: make(map[string]*domain.Balance),
		records:  make(map[string][]domain.TxRecord),
		settled:  make(map[string]struct{}),
	}
}

func balanceKey(handle, address string) string {
	return handle + "|" + address
}

func (s *MemoryStorage) Tokens() storage.TokenRepository     { return &TokenRepo{store: s} }
func (s *MemoryStorage) Accounts() storage.AccountRepository { return &AccountRepo{store: s} }
func (s *MemoryStorage) Balances() storage.BalanceRepository { return &BalanceRepo{store: s} }
func (s *MemoryStorage) Records() storage.TxRecordRepository { return &RecordRepo{store: s} }

// Mint implements storage.Minter.
func (s *MemoryStorage) Mint(ctx context.Context, p storage.MintParams) (*domain.MintResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.ensureTokenLocked(p.Token)

	if token.TreasuryRemaining <= 0 ||
		(token.MaxSupply != nil && token.TotalSupply >= *token.MaxSupply) {
		return nil, fmt.Errorf("mint %s: %w", token.Address, domain.ErrInsufficientTreasury)
	}

	unitPrice := p.Price(token)
	if p.PricePaid < unitPrice {
		return nil, fmt.Errorf("mint %s: paid %d, price %d: %w", token.Address, p.PricePaid, unitPrice, domain.ErrStaleQuote)
	}
	if p.SettlementRef != "" {
		if _, used := s.settled[p.SettlementRef]; used {
			return nil, fmt.Errorf("mint %s: settlement %s: %w", token.Address, p.SettlementRef, domain.ErrSettlementReused)
		}
		s.settled[p.SettlementRef] = struct{}{}
	}

	token.TotalSupply++
	token.TreasuryRemaining--
	token.UpdatedAt = p.Now

	account := s.touchAccountLocked(p.Account, p.Now)

	key := balanceKey(account.Handle, token.Address)
	bal, ok := s.balances[key]
	if !ok {
		bal = &domain.Balance{Handle: account.Handle, TokenAddress: token.Address}
		s.balances[key] = bal
	}
	bal.Balance++
	bal.TotalAcquired++
	bal.TotalSpent += p.PricePaid
	bal.AvgCost = bal.TotalSpent / bal.TotalAcquired
	bal.UpdatedAt = p.Now

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
	s.records[token.Address] = append(s.records[token.Address], rec)

	return &domain.MintResult{
		Account:    *account,
		Token:      *token,
		NewBalance: bal.Balance,
		UnitPrice:  unitPrice,
		Record:     rec,
	}, nil
}

func (s *MemoryStorage) ensureTokenLocked(tmpl *domain.Token) *domain.Token {
	if t, ok := s.tokens[tmpl.Address]; ok {
		return t
	}
	t := *tmpl
	s.tokens[t.Address] = &t
	return &t
}

func (s *MemoryStorage) touchAccountLocked(a *domain.Account, now time.Time) *domain.Account {
	if existing, ok := s.accounts[a.Handle]; ok {
		existing.LastSeenAt = now
		if existing.DisplayName == "" && a.DisplayName != "" {
			existing.DisplayName = a.DisplayName
		}
		return existing
	}
	acct := *a
	acct.CreatedAt = now
	acct.LastSeenAt = now
	s.accounts[acct.Handle] = &acct
	return &acct
}

// -----------------------------------------------------------------------------
// Token Repository
// -----------------------------------------------------------------------------

type TokenRepo struct {
	store *MemoryStorage
}

func (r *TokenRepo) Ensure(ctx context.Context, token *domain.Token) (*domain.Token, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t := *r.store.ensureTokenLocked(token)
	return &t, nil
}

func (r *TokenRepo) GetByAddress(ctx context.Context, address string) (*domain.Token, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	t, ok := r.store.tokens[address]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// -----------------------------------------------------------------------------
// Account Repository
// -----------------------------------------------------------------------------

type AccountRepo struct {
	store *MemoryStorage
}

func (r *AccountRepo) Touch(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	now := account.LastSeenAt
	if now.IsZero() {
		now = time.Now()
	}
	a := *r.store.touchAccountLocked(account, now)
	return &a, nil
}

// -----------------------------------------------------------------------------
// Balance Repository
// -----------------------------------------------------------------------------

type BalanceRepo struct {
	store *MemoryStorage
}

func (r *BalanceRepo) Get(ctx context.Context, handle, tokenAddress string) (*domain.Balance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	b, ok := r.store.balances[balanceKey(handle, tokenAddress)]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *BalanceRepo) ListOwned(ctx context.Context, handle string) ([]domain.OwnedToken, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var owned []domain.OwnedToken
	for _, b := range r.store.balances {
		if b.Handle != handle || b.Balance <= 0 {
			continue
		}
		t, ok := r.store.tokens[b.TokenAddress]
		if !ok {
			continue
		}
		owned = append(owned, domain.OwnedToken{Balance: *b, Token: *t})
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].Token.Address < owned[j].Token.Address
	})
	return owned, nil
}

// -----------------------------------------------------------------------------
// Transaction Record Repository
// -----------------------------------------------------------------------------

type RecordRepo struct {
	store *MemoryStorage
}

// ListByToken returns the newest records first.
func (r *RecordRepo) ListByToken(ctx context.Context, tokenAddress string, limit int) ([]domain.TxRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	recs := r.store.records[tokenAddress]
	out := make([]domain.TxRecord, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, recs[i])
	}
	return out, nil
}
