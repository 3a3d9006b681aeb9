package proof

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/metrics"
)

const defaultFetchTimeout = 10 * time.Second

// TxLookup fetches raw transactions from a ledger indexer.
type TxLookup interface {
	FetchRawTransaction(ctx context.Context, txID string) ([]byte, error)
}

// ConfirmationLookup is implemented by lookups that can report depth.
type ConfirmationLookup interface {
	Confirmations(ctx context.Context, txID string) (int64, error)
}

// Config controls on-chain proof checks.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	Network          string        `yaml:"network"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	MinConfirmations int64         `yaml:"min_confirmations"`
	Markers          []string      `yaml:"markers"`
}

// Reason explains the outcome of a proof check.
type Reason string

const (
	ReasonOK             Reason = "ok"
	ReasonNotFound       Reason = "not_found"
	ReasonNoPayload      Reason = "no_payload"
	ReasonBadJSON        Reason = "bad_json"
	ReasonWrongProtocol  Reason = "wrong_protocol"
	ReasonDomainMismatch Reason = "domain_mismatch"
	ReasonIssuerMismatch Reason = "issuer_mismatch"
	ReasonBadSignature   Reason = "bad_signature"
	ReasonUnconfirmed    Reason = "unconfirmed"
	ReasonTransport      Reason = "transport"
)

// Claim is what a caller asserts an on-chain attestation proves.
type Claim struct {
	Domain        string
	IssuerAddress string
	TxID          string
	Signature     string
	Message       string
}

// Outcome is the result of checking a claim.
type Outcome struct {
	Valid  bool
	Reason Reason
	Err    error
}

// Transient reports whether retrying later could change the outcome.
func (o Outcome) Transient() bool {
	return o.Reason == ReasonTransport || o.Reason == ReasonUnconfirmed
}

// Verifier checks on-chain domain attestations.
type Verifier struct {
	lookup    TxLookup
	extractor *Extractor
	cfg       Config
}

// NewVerifier creates a verifier over lookup.
func NewVerifier(lookup TxLookup, cfg Config) *Verifier {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Verifier{
		lookup:    lookup,
		extractor: NewExtractor(cfg.Markers...),
		cfg:       cfg,
	}
}

// FetchRawTransaction fetches txID under the configured timeout. Missing
// transactions yield domain.ErrNotFound; timeouts yield domain.ErrTransport.
func (v *Verifier) FetchRawTransaction(ctx context.Context, txID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.FetchTimeout)
	defer cancel()

	raw, err := v.lookup.FetchRawTransaction(ctx, txID)
	if err == nil {
		return raw, nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTransport), errors.Is(err, domain.ErrInvalidProof):
		return nil, err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: lookup of %s timed out", domain.ErrTransport, txID)
	default:
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
}

// ExtractPayload finds the protocol payload in raw.
func (v *Verifier) ExtractPayload(raw []byte) (*Payload, bool) {
	return v.extractor.ExtractPayload(raw)
}

// Check runs every step of on-chain verification and reports why it failed.
func (v *Verifier) Check(ctx context.Context, c Claim) Outcome {
	o := v.check(ctx, c)
	metrics.ProofChecks.WithLabelValues(string(o.Reason)).Inc()
	if o.Reason == ReasonTransport {
		slog.Warn("Proof lookup failed", "txid", c.TxID, "error", o.Err)
	} else if !o.Valid {
		slog.Debug("Proof rejected", "txid", c.TxID, "domain", c.Domain, "reason", o.Reason)
	}
	return o
}

func (v *Verifier) check(ctx context.Context, c Claim) Outcome {
	raw, err := v.FetchRawTransaction(ctx, c.TxID)
	if err != nil {
		if errors.Is(err, domain.ErrTransport) {
			return Outcome{Reason: ReasonTransport, Err: err}
		}
		return Outcome{Reason: ReasonNotFound}
	}

	payload, ok := v.ExtractPayload(raw)
	if !ok {
		return Outcome{Reason: ReasonNoPayload}
	}

	env, err := DecodeEnvelope(payload.Data)
	if err != nil {
		if errors.Is(err, ErrUnknownProtocol) {
			return Outcome{Reason: ReasonWrongProtocol}
		}
		return Outcome{Reason: ReasonBadJSON}
	}
	if !env.IsDomainVerify() {
		return Outcome{Reason: ReasonWrongProtocol}
	}
	if !strings.EqualFold(env.Domain, c.Domain) {
		return Outcome{Reason: ReasonDomainMismatch}
	}
	if env.IssuerAddress != c.IssuerAddress {
		return Outcome{Reason: ReasonIssuerMismatch}
	}

	signature, message := c.Signature, c.Message
	if signature == "" {
		signature = env.Signature
	} else if env.Signature != "" && env.Signature != signature {
		return Outcome{Reason: ReasonBadSignature}
	}
	if message == "" {
		message = env.Message
	} else if env.Message != "" && env.Message != message {
		return Outcome{Reason: ReasonBadSignature}
	}
	if signature == "" || message == "" {
		return Outcome{Reason: ReasonBadSignature}
	}
	// The signed text must name the attested domain so a signature cannot be
	// replayed under another domain's payload.
	if !strings.Contains(strings.ToLower(message), strings.ToLower(env.Domain)) {
		return Outcome{Reason: ReasonDomainMismatch}
	}
	if !VerifyMessageSignature(message, signature, c.IssuerAddress) {
		return Outcome{Reason: ReasonBadSignature}
	}

	if v.cfg.MinConfirmations > 0 {
		if cl, ok := v.lookup.(ConfirmationLookup); ok {
			n, err := cl.Confirmations(ctx, c.TxID)
			if err != nil {
				return Outcome{Reason: ReasonTransport, Err: err}
			}
			if n < v.cfg.MinConfirmations {
				return Outcome{Reason: ReasonUnconfirmed}
			}
		}
	}

	return Outcome{Valid: true, Reason: ReasonOK}
}

// VerifyPaymentOnChain reports whether txID carries a valid domain-verify
// attestation for domainName signed by issuerAddress. Data mismatches return
// false with a nil error; only transport failures return an error.
func (v *Verifier) VerifyPaymentOnChain(ctx context.Context, domainName, issuerAddress, txID, signature, message string) (bool, error) {
	o := v.Check(ctx, Claim{
		Domain:        domainName,
		IssuerAddress: issuerAddress,
		TxID:          txID,
		Signature:     signature,
		Message:       message,
	})
	if o.Reason == ReasonTransport {
		return false, o.Err
	}
	return o.Valid, nil
}
