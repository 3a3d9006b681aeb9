package paywall

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/path402/internal/core/domain"
)

// Period is the time window a report covers.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RevenueStats aggregates receipts over a period.
type RevenueStats struct {
	TotalRevenue     decimal.Decimal                          `json:"total_revenue"`
	TransactionCount int                                      `json:"transaction_count"`
	UniquePayers     int                                      `json:"unique_payers"`
	ByMethod         map[domain.PaymentMethod]decimal.Decimal `json:"by_method"`
	ByResource       map[string]decimal.Decimal               `json:"by_resource"`
	Period           Period                                   `json:"period"`
}

// RevenueStats sums receipts paid in [start, end]. A zero end means now.
func (m *Manager) RevenueStats(ctx context.Context, start, end time.Time) (*RevenueStats, error) {
	if end.IsZero() {
		end = m.now()
	}
	receipts, err := m.store.ListReceipts(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}

	stats := &RevenueStats{
		TotalRevenue: decimal.Zero,
		ByMethod:     make(map[domain.PaymentMethod]decimal.Decimal),
		ByResource:   make(map[string]decimal.Decimal),
		Period:       Period{Start: start, End: end},
	}
	payers := make(map[string]struct{})
	for _, r := range receipts {
		stats.TotalRevenue = stats.TotalRevenue.Add(r.Amount)
		stats.TransactionCount++
		stats.ByMethod[r.Method] = stats.ByMethod[r.Method].Add(r.Amount)
		stats.ByResource[r.Resource] = stats.ByResource[r.Resource].Add(r.Amount)
		if id := r.PayerID(); id != "" {
			payers[id] = struct{}{}
		}
	}
	stats.UniquePayers = len(payers)
	return stats, nil
}
