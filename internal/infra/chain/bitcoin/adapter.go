package bitcoin

import (
	"context"
	"encoding/hex"
	"fmt"
	logger "log/slog"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/infra/rpc/provider"
)

var txIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Adapter looks up BSV transactions through a WhatsOnChain-compatible REST API
// rooted at /v1/bsv/{network}.
type Adapter struct {
	client provider.Provider
	log    *logger.Logger
}

// NewAdapter creates a transaction lookup over client.
func NewAdapter(client provider.Provider) *Adapter {
	return &Adapter{
		client: client,
		log:    logger.Default().With("component", "bitcoin", "provider", client.GetName()),
	}
}

// FetchRawTransaction returns the serialized transaction for txID.
func (a *Adapter) FetchRawTransaction(ctx context.Context, txID string) ([]byte, error) {
	if !txIDPattern.MatchString(txID) {
		return nil, fmt.Errorf("malformed txid %q: %w", txID, domain.ErrInvalidProof)
	}

	body, err := a.client.Get(ctx, "/tx/"+strings.ToLower(txID)+"/hex")
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(strings.TrimSpace(strings.Trim(string(body), `"`)))
	if err != nil {
		return nil, fmt.Errorf("decode raw tx %s: %w", txID, domain.ErrInvalidProof)
	}
	a.log.Debug("Fetched raw transaction", "txid", txID, "bytes", len(raw))
	return raw, nil
}

// Confirmations returns the confirmation count of txID. Unconfirmed
// transactions report zero.
func (a *Adapter) Confirmations(ctx context.Context, txID string) (int64, error) {
	if !txIDPattern.MatchString(txID) {
		return 0, fmt.Errorf("malformed txid %q: %w", txID, domain.ErrInvalidProof)
	}
	body, err := a.client.Get(ctx, "/tx/hash/"+strings.ToLower(txID))
	if err != nil {
		return 0, err
	}
	if !gjson.ValidBytes(body) {
		return 0, fmt.Errorf("invalid tx json for %s: %w", txID, domain.ErrTransport)
	}
	return gjson.GetBytes(body, "confirmations").Int(), nil
}
