package paywall

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/path402/internal/core/domain"
)

// Payment challenge headers.
const (
	HeaderRequired    = "X-Payment-Required"
	HeaderMethods     = "X-Payment-Methods"
	HeaderAmount      = "X-Payment-Amount"
	HeaderCurrency    = "X-Payment-Currency"
	HeaderRequestID   = "X-Payment-Request-Id"
	HeaderExpires     = "X-Payment-Expires"
	HeaderDescription = "X-Payment-Description"
	HeaderAddress     = "X-Payment-Address"
	HeaderInvoice     = "X-Payment-Invoice"
	HeaderResource    = "X-Payment-Resource"
)

// Authorization schemes.
const (
	SchemeToken   = "X402-Token"
	SchemeReceipt = "X402-Receipt"
	SchemeBearer  = "Bearer"
)

// Challenge is a 402 Payment Required response.
type Challenge struct {
	Status  int                    `json:"-"`
	Headers http.Header            `json:"-"`
	Body    *domain.PaymentRequest `json:"body"`
}

// BuildChallengeResponse opens a payment request for resource and renders it
// as a 402 response.
func (m *Manager) BuildChallengeResponse(ctx context.Context, resource string, details domain.PaymentDetails) (*Challenge, error) {
	req, err := m.CreateRequest(ctx, resource, details)
	if err != nil {
		return nil, err
	}

	methods := make([]string, len(req.Methods))
	for i, method := range req.Methods {
		methods[i] = string(method)
	}

	h := make(http.Header)
	h.Set(HeaderRequired, "true")
	h.Set(HeaderMethods, strings.Join(methods, ","))
	h.Set(HeaderAmount, req.Amount.String())
	h.Set(HeaderCurrency, req.Currency)
	h.Set(HeaderRequestID, req.ID)
	h.Set(HeaderExpires, req.ExpiresAt.UTC().Format(time.RFC3339))
	if req.Description != "" {
		h.Set(HeaderDescription, req.Description)
	}
	if req.Address != "" {
		h.Set(HeaderAddress, req.Address)
	}
	if req.Invoice != "" {
		h.Set(HeaderInvoice, req.Invoice)
	}

	return &Challenge{Status: http.StatusPaymentRequired, Headers: h, Body: req}, nil
}

// Write sends the challenge as a JSON response.
func (c *Challenge) Write(w http.ResponseWriter) {
	for k, v := range c.Headers {
		w.Header()[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(c.Status)
	_ = json.NewEncoder(w).Encode(c.Body)
}

// Credential is a parsed Authorization header.
type Credential struct {
	Scheme string
	Value  string
}

// ParseAuthorization splits an Authorization header into a known scheme and
// its value.
func ParseAuthorization(header string) (Credential, bool) {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return Credential{}, false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return Credential{}, false
	}
	for _, known := range []string{SchemeToken, SchemeReceipt, SchemeBearer} {
		if strings.EqualFold(scheme, known) {
			return Credential{Scheme: known, Value: value}, true
		}
	}
	return Credential{}, false
}
