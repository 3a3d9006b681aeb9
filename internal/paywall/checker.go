package paywall

import (
	"context"
	"errors"

	"github.com/vietddude/path402/internal/core/domain"
)

// RawTxFetcher fetches a raw transaction by id. *proof.Verifier satisfies it.
type RawTxFetcher interface {
	FetchRawTransaction(ctx context.Context, txID string) ([]byte, error)
}

// TxProofChecker requires on-chain settlement proofs to reference a
// transaction the ledger indexer knows about. Other methods pass through.
type TxProofChecker struct {
	fetcher RawTxFetcher
}

// NewTxProofChecker creates a checker over fetcher.
func NewTxProofChecker(fetcher RawTxFetcher) *TxProofChecker {
	return &TxProofChecker{fetcher: fetcher}
}

// CheckProof implements ProofChecker.
func (c *TxProofChecker) CheckProof(ctx context.Context, _ *domain.PaymentRequest, method domain.PaymentMethod, proof domain.PaymentProof) (bool, error) {
	if method != domain.MethodBSV || proof.TxID == "" {
		return true, nil
	}
	_, err := c.fetcher.FetchRawTransaction(ctx, proof.TxID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrTransport):
		return false, err
	default:
		return false, nil
	}
}
