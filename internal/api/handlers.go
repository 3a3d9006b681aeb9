package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/ledger"
	"github.com/vietddude/path402/internal/paywall"
	"github.com/vietddude/path402/internal/verify/ownership"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// ledgerCurrency is the unit ledger prices are quoted in.
	ledgerCurrency = "SAT"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, "invalid_address", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrNoPricing):
		writeError(w, http.StatusNotFound, "no_pricing", err.Error())
	case errors.Is(err, domain.ErrStaleQuote):
		writeError(w, http.StatusConflict, "stale_quote", err.Error())
	case errors.Is(err, domain.ErrInsufficientTreasury):
		writeError(w, http.StatusConflict, "insufficient_treasury", err.Error())
	case errors.Is(err, domain.ErrAlreadyRedeemed):
		writeError(w, http.StatusConflict, "already_redeemed", err.Error())
	case errors.Is(err, domain.ErrExpired):
		writeError(w, http.StatusGone, "expired", err.Error())
	case errors.Is(err, domain.ErrInvalidProof):
		writeError(w, http.StatusUnprocessableEntity, "invalid_proof", err.Error())
	case errors.Is(err, domain.ErrTransport):
		writeError(w, http.StatusServiceUnavailable, "transport", err.Error())
	default:
		s.log.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.svc.Monitor.CheckHealth(r.Context())
	status := http.StatusOK
	if report.SystemStatus == StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Monitor.CheckHealth(r.Context()))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.svc.Ledger.Quote(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	rows, err := s.svc.Ledger.Schedule(r.Context(), path)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "schedule": rows})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	records, err := s.svc.Ledger.History(r.Context(), r.URL.Query().Get("path"), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

type mintBody struct {
	Handle        string `json:"handle"`
	DisplayName   string `json:"display_name"`
	Path          string `json:"path"`
	Title         string `json:"title"`
	PricePaid     int64  `json:"price_paid"`
	SettlementRef string `json:"settlement_ref"`
}

type mintResponse struct {
	*domain.MintResult
	Capability string `json:"capability,omitempty"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var body mintBody
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if domain.NormalizeHandle(body.Handle) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "handle is required")
		return
	}
	if body.PricePaid <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "price_paid must be positive")
		return
	}

	if s.svc.Settlement != nil {
		if body.SettlementRef == "" {
			writeError(w, http.StatusPaymentRequired, "settlement_required", "settlement_ref is required")
			return
		}
		if _, err := s.svc.Settlement.FetchRawTransaction(r.Context(), body.SettlementRef); err != nil {
			if errors.Is(err, domain.ErrTransport) {
				s.writeDomainError(w, err)
				return
			}
			writeError(w, http.StatusPaymentRequired, "settlement_not_found", err.Error())
			return
		}
	}

	res, err := s.svc.Ledger.Mint(r.Context(), ledger.MintRequest{
		Holder:        body.Handle,
		DisplayName:   body.DisplayName,
		Path:          body.Path,
		Title:         body.Title,
		PricePaid:     body.PricePaid,
		SettlementRef: body.SettlementRef,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := mintResponse{MintResult: res}
	if s.svc.Capability != nil {
		// The purchase is already committed; a signing failure only costs the caller a re-issue.
		token, _, err := s.svc.Capability.Issue(r.Context(), body.Handle)
		if err != nil {
			s.log.Error("Failed to issue capability after mint", "handle", body.Handle, "error", err)
		}
		resp.Capability = token
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleHolderTokens(w http.ResponseWriter, r *http.Request) {
	owned, err := s.svc.Ledger.ListOwned(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if owned == nil {
		owned = []domain.OwnedToken{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": owned})
}

func (s *Server) handleIssueCapability(w http.ResponseWriter, r *http.Request) {
	if s.svc.Capability == nil {
		writeError(w, http.StatusNotImplemented, "disabled", "capability tokens are not configured")
		return
	}
	var body struct {
		Handle string `json:"handle"`
	}
	if err := readJSON(w, r, &body); err != nil || domain.NormalizeHandle(body.Handle) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "handle is required")
		return
	}
	token, claims, err := s.svc.Capability.Issue(r.Context(), body.Handle)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":       token,
		"handle":      claims.Handle,
		"owned_paths": claims.OwnedPaths,
		"expires_at":  time.Unix(claims.ExpiresAt, 0).UTC(),
	})
}

// accessChallenge is the 402 body for a ledger resource.
type accessChallenge struct {
	*ledger.Quote
	RequestID string    `json:"request_id"`
	ExpiresAt time.Time `json:"expires_at"`
	PayTo     string    `json:"pay_to,omitempty"`
}

// handleAccess grants access to holders of path's token. Everyone else gets
// a 402 carrying the current quote.
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	quote, err := s.svc.Ledger.Quote(r.Context(), path)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if s.svc.Capability != nil {
		if cred, ok := paywall.ParseAuthorization(r.Header.Get("Authorization")); ok && cred.Scheme == paywall.SchemeBearer {
			v := s.svc.Capability.Verify(cred.Value, quote.Address)
			if v.Valid && v.OwnsResource {
				writeJSON(w, http.StatusOK, map[string]any{
					"granted": true,
					"handle":  v.Handle,
					"address": quote.Address,
				})
				return
			}
		}
	}

	challenge := accessChallenge{
		Quote:     quote,
		RequestID: uuid.NewString(),
		ExpiresAt: time.Now().UTC().Add(s.quoteExpiry).Truncate(time.Second),
		PayTo:     s.detailsFor(quote.Address).Address,
	}

	h := w.Header()
	h.Set(paywall.HeaderRequired, "true")
	h.Set(paywall.HeaderMethods, string(domain.MethodBSV))
	h.Set(paywall.HeaderAmount, strconv.FormatInt(quote.Price, 10))
	h.Set(paywall.HeaderCurrency, ledgerCurrency)
	h.Set(paywall.HeaderRequestID, challenge.RequestID)
	h.Set(paywall.HeaderExpires, challenge.ExpiresAt.Format(time.RFC3339))
	h.Set(paywall.HeaderResource, quote.Address)
	if challenge.PayTo != "" {
		h.Set(paywall.HeaderAddress, challenge.PayTo)
	}
	writeJSON(w, http.StatusPaymentRequired, challenge)
}

func (s *Server) handleVerifyDomain(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ownership == nil {
		writeError(w, http.StatusNotImplemented, "disabled", "domain verification is not configured")
		return
	}
	var body struct {
		Domain  string `json:"domain"`
		Handle  string `json:"handle"`
		Address string `json:"address"`
	}
	if err := readJSON(w, r, &body); err != nil || body.Domain == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "domain is required")
		return
	}

	res := s.svc.Ownership.Verify(r.Context(), ownership.Claim{
		Domain:  body.Domain,
		Handle:  body.Handle,
		Address: body.Address,
	})
	status := http.StatusOK
	switch {
	case res.OK:
	case res.Transient():
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) paywallEnabled(w http.ResponseWriter) bool {
	if s.svc.Paywall == nil {
		writeError(w, http.StatusNotImplemented, "disabled", "paywall is not configured")
		return false
	}
	return true
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	if !s.paywallEnabled(w) {
		return
	}
	var body struct {
		Resource    string `json:"resource"`
		Address     string `json:"address"`
		Invoice     string `json:"invoice"`
		Description string `json:"description"`
	}
	if err := readJSON(w, r, &body); err != nil || body.Resource == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "resource is required")
		return
	}

	details := s.detailsFor(body.Resource)
	if body.Address != "" {
		details.Address = body.Address
	}
	if body.Invoice != "" {
		details.Invoice = body.Invoice
	}
	if body.Description != "" {
		details.Description = body.Description
	}

	challenge, err := s.svc.Paywall.BuildChallengeResponse(r.Context(), body.Resource, details)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	challenge.Write(w)
}

type paymentBody struct {
	Method    domain.PaymentMethod `json:"method"`
	TxID      string               `json:"tx_id"`
	Signature string               `json:"signature"`
	Message   string               `json:"message"`
	Payer     string               `json:"payer"`
}

func (s *Server) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	if !s.paywallEnabled(w) {
		return
	}
	var body paymentBody
	if err := readJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	receipt, err := s.svc.Paywall.VerifyPayment(r.Context(), chi.URLParam(r, "id"), body.Method, domain.PaymentProof{
		TxID:      body.TxID,
		Signature: body.Signature,
		Message:   body.Message,
		Payer:     body.Payer,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if receipt == nil {
		writeError(w, http.StatusPaymentRequired, "payment_not_verified", "payment could not be verified")
		return
	}

	token, err := s.svc.Paywall.IssueAccessToken(r.Context(), receipt)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipt": receipt, "access_token": token})
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	if !s.paywallEnabled(w) {
		return
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := readJSON(w, r, &body); err != nil || body.Token == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "token is required")
		return
	}
	revoked, err := s.svc.Paywall.RevokeToken(r.Context(), body.Token)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.paywallEnabled(w) {
		return
	}
	var start, end time.Time
	for name, dst := range map[string]*time.Time{"start": &start, "end": &end} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", name+" must be RFC3339")
			return
		}
		*dst = t
	}

	stats, err := s.svc.Paywall.RevenueStats(r.Context(), start, end)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
