package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceModel describes how a paywalled resource is charged.
type PriceModel string

const (
	PriceModelFixed        PriceModel = "fixed"
	PriceModelPerRequest   PriceModel = "per-request"
	PriceModelTimeBased    PriceModel = "time-based"
	PriceModelStreaming    PriceModel = "streaming"
	PriceModelSubscription PriceModel = "subscription"
)

// Valid reports whether m is a known price model.
func (m PriceModel) Valid() bool {
	switch m {
	case PriceModelFixed, PriceModelPerRequest, PriceModelTimeBased, PriceModelStreaming, PriceModelSubscription:
		return true
	}
	return false
}

// PaymentMethod is a settlement rail a request accepts.
type PaymentMethod string

const (
	MethodBSV       PaymentMethod = "bsv"
	MethodLightning PaymentMethod = "lightning"
	MethodHandCash  PaymentMethod = "handcash"
	MethodPaymail   PaymentMethod = "paymail"
	MethodStripe    PaymentMethod = "stripe"
)

// PricingConfig is registered per resource or resource pattern.
type PricingConfig struct {
	Model        PriceModel      `json:"model"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Duration     time.Duration   `json:"duration,omitempty"`      // time-based access window
	RequestLimit int             `json:"request_limit,omitempty"` // 0 = unlimited
	Methods      []PaymentMethod `json:"methods,omitempty"`
	Description  string          `json:"description,omitempty"`
}

// PaymentDetails carries settlement instructions for a challenge.
type PaymentDetails struct {
	Address     string `json:"address,omitempty"`
	Invoice     string `json:"invoice,omitempty"`
	Description string `json:"description,omitempty"`
}

// RequestStatus is the lifecycle state of a payment request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestFulfilled RequestStatus = "fulfilled"
	RequestExpired   RequestStatus = "expired"
)

// PaymentRequest is an outstanding demand for payment on a resource.
type PaymentRequest struct {
	ID          string          `json:"id"`
	Resource    string          `json:"resource"`
	Pattern     string          `json:"pattern"`
	Methods     []PaymentMethod `json:"methods"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Address     string          `json:"address,omitempty"`
	Invoice     string          `json:"invoice,omitempty"`
	Description string          `json:"description,omitempty"`
	Status      RequestStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Expired reports whether the request is past its expiry at now.
func (r *PaymentRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Accepts reports whether method is one of the request's accepted methods.
func (r *PaymentRequest) Accepts(method PaymentMethod) bool {
	for _, m := range r.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// PaymentProof is the settlement evidence submitted by a payer.
type PaymentProof struct {
	TxID      string `json:"tx_id,omitempty"`
	Signature string `json:"signature,omitempty"`
	Message   string `json:"message,omitempty"`
	Payer     string `json:"payer,omitempty"`
}

// Empty reports whether the proof lacks both a transaction reference and a signature.
func (p PaymentProof) Empty() bool {
	return p.TxID == "" && p.Signature == ""
}

// Receipt records a verified payment against a request.
type Receipt struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"request_id"`
	Resource   string          `json:"resource"`
	Pattern    string          `json:"pattern,omitempty"`
	Method     PaymentMethod   `json:"method"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Proof      PaymentProof    `json:"proof"`
	PaidAt     time.Time       `json:"paid_at"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
}

// PayerID identifies the payer for unique-payer accounting.
func (r *Receipt) PayerID() string {
	if r.Proof.Payer != "" {
		return r.Proof.Payer
	}
	if r.Proof.TxID != "" {
		return r.Proof.TxID
	}
	return r.Proof.Signature
}

// AccessToken grants use of a resource after payment.
type AccessToken struct {
	Token      string    `json:"token"`
	ReceiptID  string    `json:"receipt_id"`
	RequestID  string    `json:"request_id"`
	Resource   string    `json:"resource"`
	Pattern    string    `json:"pattern"`
	UsageLimit int       `json:"usage_limit"` // 0 = unlimited
	UsageCount int       `json:"usage_count"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
}

// Expired reports whether the token is past its expiry at now.
func (t *AccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
