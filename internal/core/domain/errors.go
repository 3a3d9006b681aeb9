package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a request, receipt, token or transaction is absent.
	ErrNotFound = errors.New("not found")

	// ErrExpired is returned when a request or access token is past its validity window.
	ErrExpired = errors.New("expired")

	// ErrInvalidProof is returned for signature mismatches, malformed payloads and claim mismatches.
	ErrInvalidProof = errors.New("invalid proof")

	// ErrTransport is returned when DNS, HTTP or the ledger lookup fails or times out.
	// Callers may retry it; it must never be treated as a grant.
	ErrTransport = errors.New("transport failure")

	// ErrInsufficientTreasury is returned when a mint hits a depleted token.
	ErrInsufficientTreasury = errors.New("insufficient treasury")

	// ErrNoPricing is returned when no price is configured for a resource.
	ErrNoPricing = errors.New("no pricing configured for resource")

	// ErrStaleQuote is returned when the price paid is below the price at charge time.
	ErrStaleQuote = errors.New("price changed since quote")

	// ErrAlreadyRedeemed is returned when a receipt's request already produced an access token.
	ErrAlreadyRedeemed = errors.New("receipt already redeemed")

	// ErrSettlementReused is returned when a settlement reference or payment
	// txid has already backed an earlier mint or receipt.
	ErrSettlementReused = fmt.Errorf("%w: settlement already used", ErrInvalidProof)

	// ErrInvalidAddress is returned for malformed paths and resource addresses.
	ErrInvalidAddress = errors.New("invalid resource address")
)
