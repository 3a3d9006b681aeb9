package paywall

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/infra/storage"
	"github.com/vietddude/path402/internal/metrics"
)

// ProofChecker validates settlement evidence before a receipt is minted.
// A false result with nil error rejects the proof; an error is a transport
// failure and is returned to the caller.
type ProofChecker interface {
	CheckProof(ctx context.Context, req *domain.PaymentRequest, method domain.PaymentMethod, proof domain.PaymentProof) (bool, error)
}

// PaymentHook is called exactly once for each new receipt.
type PaymentHook func(ctx context.Context, receipt *domain.Receipt)

// Manager runs the 402 payment flow: request, receipt, access token.
type Manager struct {
	store     storage.PaywallStore
	cfg       Config
	methods   []domain.PaymentMethod
	checker   ProofChecker
	onPayment PaymentHook
	now       func() time.Time

	mu     sync.RWMutex
	prices map[string]domain.PricingConfig
}

// Option configures a Manager.
type Option func(*Manager)

// WithProofChecker verifies proofs before receipts are issued.
func WithProofChecker(c ProofChecker) Option {
	return func(m *Manager) { m.checker = c }
}

// WithPaymentHook registers a side effect run once per receipt.
func WithPaymentHook(h PaymentHook) Option {
	return func(m *Manager) { m.onPayment = h }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager and registers the configured price table.
func NewManager(store storage.PaywallStore, cfg Config, opts ...Option) (*Manager, error) {
	cfg.applyDefaults()
	m := &Manager{
		store:   store,
		cfg:     cfg,
		methods: DefaultMethods,
		now:     time.Now,
		prices:  make(map[string]domain.PricingConfig),
	}
	if len(cfg.DefaultMethods) > 0 {
		m.methods = toMethods(cfg.DefaultMethods)
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, rule := range cfg.Prices {
		pc, err := rule.PricingConfig()
		if err != nil {
			return nil, err
		}
		m.SetResourcePrice(rule.Pattern, pc)
	}
	return m, nil
}

// SetResourcePrice registers pricing for a resource or a '*' glob pattern.
func (m *Manager) SetResourcePrice(pattern string, pc domain.PricingConfig) {
	if pc.Currency == "" {
		pc.Currency = m.cfg.DefaultCurrency
	}
	if len(pc.Methods) == 0 {
		pc.Methods = m.methods
	}
	if pc.Model == "" {
		pc.Model = domain.PriceModelFixed
	}

	m.mu.Lock()
	m.prices[pattern] = pc
	m.mu.Unlock()
}

// ResourcePrice resolves pricing for resource. An exact entry wins, then the
// longest matching pattern, ties going to the lexicographically smaller one.
func (m *Manager) ResourcePrice(resource string) (string, domain.PricingConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if pc, ok := m.prices[resource]; ok {
		return resource, pc, true
	}

	var best string
	found := false
	for pattern := range m.prices {
		if !strings.Contains(pattern, "*") || !globMatch(pattern, resource) {
			continue
		}
		if !found || len(pattern) > len(best) || (len(pattern) == len(best) && pattern < best) {
			best, found = pattern, true
		}
	}
	if !found {
		return "", domain.PricingConfig{}, false
	}
	return best, m.prices[best], true
}

// Patterns lists registered patterns in sorted order.
func (m *Manager) Patterns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.prices))
	for p := range m.prices {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Details returns the configured settlement address for resource. It
// satisfies DetailsFunc.
func (m *Manager) Details(string) domain.PaymentDetails {
	return domain.PaymentDetails{Address: m.cfg.Address}
}

// CreateRequest opens a payment request for resource. It returns
// domain.ErrNoPricing when the resource has no configured price.
func (m *Manager) CreateRequest(ctx context.Context, resource string, details domain.PaymentDetails) (*domain.PaymentRequest, error) {
	pattern, pc, ok := m.ResourcePrice(resource)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoPricing, resource)
	}

	now := m.now()
	description := details.Description
	if description == "" {
		description = pc.Description
	}
	req := &domain.PaymentRequest{
		ID:          "req_" + uuid.NewString(),
		Resource:    resource,
		Pattern:     pattern,
		Methods:     pc.Methods,
		Amount:      pc.Amount,
		Currency:    pc.Currency,
		Address:     details.Address,
		Invoice:     details.Invoice,
		Description: description,
		Status:      domain.RequestPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.cfg.RequestExpiry),
	}
	if err := m.store.SaveRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to save payment request: %w", err)
	}
	return req, nil
}

// VerifyPayment settles requestID with proof. It fails closed: a missing,
// expired or already fulfilled request, an unaccepted method, an empty proof
// or a rejected proof all return nil, nil. Errors are store or transport
// failures.
func (m *Manager) VerifyPayment(ctx context.Context, requestID string, method domain.PaymentMethod, proof domain.PaymentProof) (*domain.Receipt, error) {
	req, err := m.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment request: %w", err)
	}
	now := m.now()
	switch {
	case req == nil:
		return nil, nil
	case req.Status != domain.RequestPending, req.Expired(now):
		return nil, nil
	case !req.Accepts(method), proof.Empty():
		return nil, nil
	}

	if m.checker != nil {
		ok, err := m.checker.CheckProof(ctx, req, method, proof)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}

	var ref string
	if proof.TxID != "" {
		ref = string(method) + ":" + proof.TxID
		claimed, err := m.store.ClaimSettlement(ctx, ref, req.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim settlement: %w", err)
		}
		if !claimed {
			slog.Warn("Payment proof already used", "request", req.ID, "txid", proof.TxID)
			return nil, nil
		}
	}

	fulfilled, err := m.store.FulfillRequest(ctx, requestID)
	if err != nil || !fulfilled {
		m.releaseSettlement(ctx, ref, req.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to fulfill payment request: %w", err)
		}
		return nil, nil
	}

	receipt := &domain.Receipt{
		ID:        "rcpt_" + uuid.NewString(),
		RequestID: req.ID,
		Resource:  req.Resource,
		Pattern:   req.Pattern,
		Method:    method,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Proof:     proof,
		PaidAt:    now,
	}
	if _, pc, ok := m.pricingFor(req.Pattern, req.Resource); ok && pc.Model == domain.PriceModelTimeBased {
		d := pc.Duration
		if d <= 0 {
			d = m.cfg.RequestExpiry
		}
		until := now.Add(d)
		receipt.ValidUntil = &until
	}

	if err := m.store.AppendReceipt(ctx, receipt); err != nil {
		return nil, fmt.Errorf("failed to append receipt: %w", err)
	}
	metrics.PaywallReceipts.WithLabelValues(string(method)).Inc()
	slog.Info("Payment verified",
		"request", req.ID,
		"receipt", receipt.ID,
		"resource", req.Resource,
		"method", method,
		"amount", receipt.Amount.String(),
	)

	if m.onPayment != nil {
		m.onPayment(ctx, receipt)
	}
	return receipt, nil
}

// IssueAccessToken mints the access token for a stored receipt. Each request
// can be redeemed once; later calls return domain.ErrAlreadyRedeemed.
func (m *Manager) IssueAccessToken(ctx context.Context, receipt *domain.Receipt) (*domain.AccessToken, error) {
	if receipt == nil {
		return nil, fmt.Errorf("%w: receipt", domain.ErrNotFound)
	}
	stored, err := m.store.GetReceipt(ctx, receipt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: receipt %s", domain.ErrNotFound, receipt.ID)
	}

	now := m.now()
	value, err := newToken()
	if err != nil {
		return nil, err
	}
	token := &domain.AccessToken{
		Token:     value,
		ReceiptID: stored.ID,
		RequestID: stored.RequestID,
		Resource:  stored.Resource,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.cfg.TokenExpiry),
	}
	if stored.ValidUntil != nil {
		token.ExpiresAt = *stored.ValidUntil
	}
	if pattern, pc, ok := m.pricingFor(stored.Pattern, stored.Resource); ok {
		token.UsageLimit = pc.RequestLimit
		if pc.Model == domain.PriceModelSubscription {
			token.Pattern = pattern
		}
	}

	claimed, err := m.store.ClaimRedemption(ctx, stored.RequestID, value)
	if err != nil {
		return nil, fmt.Errorf("failed to claim redemption: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: request %s", domain.ErrAlreadyRedeemed, stored.RequestID)
	}
	if err := m.store.SaveToken(ctx, token); err != nil {
		if rerr := m.store.ReleaseRedemption(ctx, stored.RequestID, value); rerr != nil {
			slog.Error("Failed to release redemption", "request", stored.RequestID, "error", rerr)
		}
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}
	return token, nil
}

// ValidateToken reports whether token grants resource. A successful check
// consumes one use, so validation is not idempotent.
func (m *Manager) ValidateToken(ctx context.Context, token, resource string) bool {
	ok, result := m.validate(ctx, token, resource)
	metrics.PaywallValidations.WithLabelValues(result).Inc()
	return ok
}

func (m *Manager) validate(ctx context.Context, token, resource string) (bool, string) {
	t, err := m.store.GetToken(ctx, token)
	if err != nil {
		slog.Error("Failed to load access token", "error", err)
		return false, "error"
	}
	switch {
	case t == nil:
		return false, "unknown"
	case t.Revoked:
		return false, "revoked"
	case t.Expired(m.now()):
		return false, "expired"
	case !covers(t, resource):
		return false, "wrong_resource"
	}

	consumed, err := m.store.ConsumeUse(ctx, token)
	if err != nil {
		slog.Error("Failed to consume access token", "error", err)
		return false, "error"
	}
	if !consumed {
		return false, "exhausted"
	}
	return true, "ok"
}

// RedeemReceipt grants resource once against a receipt id, for callers that
// present the receipt instead of an access token.
func (m *Manager) RedeemReceipt(ctx context.Context, receiptID, resource string) (bool, error) {
	r, err := m.store.GetReceipt(ctx, receiptID)
	if err != nil {
		return false, fmt.Errorf("failed to get receipt: %w", err)
	}
	if r == nil || r.Resource != resource {
		return false, nil
	}
	if r.ValidUntil != nil && !m.now().Before(*r.ValidUntil) {
		return false, nil
	}
	return m.store.ClaimRedemption(ctx, r.RequestID, "receipt:"+r.ID)
}

// RevokeToken invalidates token. It returns false if the token is unknown.
func (m *Manager) RevokeToken(ctx context.Context, token string) (bool, error) {
	return m.store.RevokeToken(ctx, token)
}

// Cleanup removes expired requests and tokens. It is safe to run at any time.
func (m *Manager) Cleanup(ctx context.Context) (int, int, error) {
	requests, tokens, err := m.store.Sweep(ctx, m.now())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sweep paywall store: %w", err)
	}
	metrics.PaywallSwept.WithLabelValues("request").Add(float64(requests))
	metrics.PaywallSwept.WithLabelValues("token").Add(float64(tokens))
	return requests, tokens, nil
}

// pricingFor prefers the pattern a request was priced under and falls back to
// resolving resource against the current table.
func (m *Manager) pricingFor(pattern, resource string) (string, domain.PricingConfig, bool) {
	m.mu.RLock()
	pc, ok := m.prices[pattern]
	m.mu.RUnlock()
	if ok {
		return pattern, pc, true
	}
	return m.ResourcePrice(resource)
}

func (m *Manager) releaseSettlement(ctx context.Context, ref, requestID string) {
	if ref == "" {
		return
	}
	if err := m.store.ReleaseSettlement(ctx, ref, requestID); err != nil {
		slog.Error("Failed to release settlement", "request", requestID, "error", err)
	}
}

// covers reports whether t grants resource. Subscription tokens cover their
// whole pattern; others cover only the resource they were bought for.
func covers(t *domain.AccessToken, resource string) bool {
	if t.Resource == resource {
		return true
	}
	if strings.Contains(t.Resource, "*") && globMatch(t.Resource, resource) {
		return true
	}
	return t.Pattern != "" && globMatch(t.Pattern, resource)
}

// globMatch matches s against pattern where '*' matches any run of characters,
// including '/'.
func globMatch(pattern, s string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(s, part)
		if i < 0 {
			return false
		}
		s = s[i+len(part):]
	}
	return strings.HasSuffix(s, last)
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
