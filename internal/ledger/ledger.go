// Package ledger owns the lifecycle of path-addressed content tokens: lazy
// creation, minting from the treasury and ownership queries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/path402/internal/core/address"
	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/core/pricing"
	"github.com/vietddude/path402/internal/infra/storage"
	"github.com/vietddude/path402/internal/metrics"
)

// Ledger is the content token ledger service.
type Ledger struct {
	store    storage.LedgerStore
	codec    address.Codec
	defaults domain.TokenDefaults
	now      func() time.Time
	log      *slog.Logger
}

// New creates a ledger over store. Tokens created lazily take defaults.
func New(store storage.LedgerStore, codec address.Codec, defaults domain.TokenDefaults) *Ledger {
	if !defaults.PricingModel.Valid() {
		defaults.PricingModel = domain.PricingSqrtDecay
	}
	return &Ledger{
		store:    store,
		codec:    codec,
		defaults: defaults,
		now:      time.Now,
		log:      slog.Default().With("component", "ledger"),
	}
}

// Codec returns the path/address codec in use.
func (l *Ledger) Codec() address.Codec {
	return l.codec
}

// AddressForPath derives the resource address for path.
func (l *Ledger) AddressForPath(path string) (string, error) {
	return l.codec.AddressForPath(path)
}

// PathForAddress derives the path for a resource address.
func (l *Ledger) PathForAddress(addr string) (string, error) {
	return l.codec.PathForAddress(addr)
}

func (l *Ledger) template(addr, title string) *domain.Token {
	return domain.NewToken(addr, title, l.defaults, l.now().UTC())
}

// GetOrCreateToken returns the token for path, creating it with default
// pricing and zero supply when absent. Absence is never an error.
func (l *Ledger) GetOrCreateToken(ctx context.Context, path, title string) (*domain.Token, error) {
	addr, err := l.codec.AddressForPath(path)
	if err != nil {
		return nil, err
	}
	existing, err := l.store.Tokens().GetByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return l.store.Tokens().Ensure(ctx, l.template(addr, title))
}

// GetOrCreateAccount returns the holder account, creating it when absent.
// Every call bumps last_seen_at.
func (l *Ledger) GetOrCreateAccount(ctx context.Context, handle, displayName string) (*domain.Account, error) {
	h := domain.NormalizeHandle(handle)
	if h == "" {
		return nil, fmt.Errorf("empty holder handle")
	}
	return l.store.Accounts().Touch(ctx, &domain.Account{
		Handle:      h,
		DisplayName: displayName,
		LastSeenAt:  l.now().UTC(),
	})
}

// OwnsToken reports whether handle holds at least one unit of path's token.
// Lookup failures deny access.
func (l *Ledger) OwnsToken(ctx context.Context, handle, path string) bool {
	addr, err := l.codec.Resolve(path)
	if err != nil {
		return false
	}
	bal, err := l.store.Balances().Get(ctx, domain.NormalizeHandle(handle), addr)
	if err != nil {
		l.log.Warn("Ownership lookup failed", "handle", handle, "address", addr, "error", err)
		return false
	}
	return bal != nil && bal.Balance > 0
}

// Quote is the display-time price of the next unit. It is advisory; the
// charge is re-derived inside Mint.
type Quote struct {
	Address  string              `json:"address"`
	Model    domain.PricingModel `json:"model"`
	Price    int64               `json:"price"`
	Supply   int64               `json:"supply"`
	Treasury int64               `json:"treasury"`
}

// Quote returns the current price of path's token.
func (l *Ledger) Quote(ctx context.Context, path string) (*Quote, error) {
	t, err := l.GetOrCreateToken(ctx, path, "")
	if err != nil {
		return nil, err
	}
	return &Quote{
		Address:  t.Address,
		Model:    t.PricingModel,
		Price:    pricing.Price(pricing.FromToken(t)),
		Supply:   t.TotalSupply,
		Treasury: t.TreasuryRemaining,
	}, nil
}

// Schedule returns the price disclosure table for path's token.
func (l *Ledger) Schedule(ctx context.Context, path string) ([]pricing.Checkpoint, error) {
	t, err := l.GetOrCreateToken(ctx, path, "")
	if err != nil {
		return nil, err
	}
	return pricing.Schedule(pricing.FromToken(t)), nil
}

// MintRequest describes one paid unit.
type MintRequest struct {
	Holder        string
	DisplayName   string
	Path          string
	Title         string
	PricePaid     int64
	SettlementRef string
}

// Mint issues one unit of path's token to the holder. The unit price is
// derived from the treasury inside the store's atomic step; a payment below
// it fails with ErrStaleQuote and the caller should re-quote.
func (l *Ledger) Mint(ctx context.Context, req MintRequest) (*domain.MintResult, error) {
	handle := domain.NormalizeHandle(req.Holder)
	if handle == "" {
		return nil, fmt.Errorf("empty holder handle")
	}
	addr, err := l.codec.Resolve(req.Path)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	res, err := l.store.Mint(ctx, storage.MintParams{
		Token:         l.template(addr, req.Title),
		Account:       &domain.Account{Handle: handle, DisplayName: req.DisplayName},
		PricePaid:     req.PricePaid,
		SettlementRef: req.SettlementRef,
		Price: func(t *domain.Token) int64 {
			return pricing.Price(pricing.FromToken(t))
		},
		RecordID: uuid.NewString(),
		Now:      now,
	})
	if err != nil {
		metrics.MintErrorsTotal.WithLabelValues(mintErrorReason(err)).Inc()
		return nil, fmt.Errorf("failed to mint %s for %s: %w", addr, handle, err)
	}

	metrics.MintsTotal.WithLabelValues(string(res.Token.PricingModel)).Inc()
	l.log.Info("Minted content token",
		"address", addr,
		"holder", handle,
		"price", res.UnitPrice,
		"supply", res.Token.TotalSupply,
		"balance", res.NewBalance,
	)
	return res, nil
}

func mintErrorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientTreasury):
		return "insufficient_treasury"
	case errors.Is(err, domain.ErrStaleQuote):
		return "stale_quote"
	case errors.Is(err, domain.ErrSettlementReused):
		return "settlement_reused"
	default:
		return "store"
	}
}

// ListOwned returns the holder's positive balances joined with tokens.
func (l *Ledger) ListOwned(ctx context.Context, handle string) ([]domain.OwnedToken, error) {
	return l.store.Balances().ListOwned(ctx, domain.NormalizeHandle(handle))
}

// History returns the newest ledger records for path's token.
func (l *Ledger) History(ctx context.Context, path string, limit int) ([]domain.TxRecord, error) {
	addr, err := l.codec.Resolve(path)
	if err != nil {
		return nil, err
	}
	return l.store.Records().ListByToken(ctx, addr, limit)
}
