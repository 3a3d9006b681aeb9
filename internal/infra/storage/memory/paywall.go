package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/path402/internal/core/domain"
)

// PaywallStore keeps paywall requests, receipts and access tokens in process.
// Receipts are append-only and survive sweeps.
type PaywallStore struct {
	requests  map[string]*domain.PaymentRequest
	receipts  []*domain.Receipt
	byReceipt map[string]*domain.Receipt
	redeemed  map[string]string // request id -> access token
	settled   map[string]string // settlement ref -> request id
	tokens    map[string]*domain.AccessToken
	mu        sync.RWMutex
}

func NewPaywallStore() *PaywallStore {
	return &PaywallStore{
		requests:  make(map[string]*domain.PaymentRequest),
		byReceipt: make(map[string]*domain.Receipt),
		redeemed:  make(map[string]string),
		settled:   make(map[string]string),
		tokens:    make(map[string]*domain.AccessToken),
	}
}

func (s *PaywallStore) SaveRequest(ctx context.Context, req *domain.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *PaywallStore) GetRequest(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (s *PaywallStore) FulfillRequest(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok || req.Status != domain.RequestPending {
		return false, nil
	}
	req.Status = domain.RequestFulfilled
	return true, nil
}

func (s *PaywallStore) AppendReceipt(ctx context.Context, receipt *domain.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *receipt
	s.receipts = append(s.receipts, &cp)
	s.byReceipt[cp.ID] = &cp
	return nil
}

func (s *PaywallStore) GetReceipt(ctx context.Context, id string) (*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byReceipt[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

// ListReceipts returns receipts paid in [start, end]. Zero bounds are open.
func (s *PaywallStore) ListReceipts(ctx context.Context, start, end time.Time) ([]*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Receipt
	for _, r := range s.receipts {
		if !start.IsZero() && r.PaidAt.Before(start) {
			continue
		}
		if !end.IsZero() && r.PaidAt.After(end) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *PaywallStore) ClaimRedemption(ctx context.Context, requestID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.redeemed[requestID]; taken {
		return false, nil
	}
	s.redeemed[requestID] = token
	return true, nil
}

func (s *PaywallStore) ReleaseRedemption(ctx context.Context, requestID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.redeemed[requestID] == token {
		delete(s.redeemed, requestID)
	}
	return nil
}

func (s *PaywallStore) ClaimSettlement(ctx context.Context, ref, requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.settled[ref]; taken {
		return false, nil
	}
	s.settled[ref] = requestID
	return true, nil
}

func (s *PaywallStore) ReleaseSettlement(ctx context.Context, ref, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled[ref] == requestID {
		delete(s.settled, ref)
	}
	return nil
}

func (s *PaywallStore) SaveToken(ctx context.Context, token *domain.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	s.tokens[token.Token] = &cp
	return nil
}

func (s *PaywallStore) GetToken(ctx context.Context, token string) (*domain.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[token]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *PaywallStore) ConsumeUse(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok || t.Revoked {
		return false, nil
	}
	if t.UsageLimit > 0 && t.UsageCount >= t.UsageLimit {
		return false, nil
	}
	t.UsageCount++
	return true, nil
}

func (s *PaywallStore) RevokeToken(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (s *PaywallStore) Sweep(ctx context.Context, now time.Time) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var requests, tokens int
	for id, req := range s.requests {
		if req.Expired(now) {
			delete(s.requests, id)
			requests++
		}
	}
	for key, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, key)
			tokens++
		}
	}
	return requests, tokens, nil
}
