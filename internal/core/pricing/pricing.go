// Package pricing computes content-token unit prices from treasury state.
//
// All functions are pure. Prices are integer satoshis, always rounded up and never below one.
package pricing

import (
	"fmt"
	"math"

	"github.com/vietddude/path402/internal/core/domain"
)

// Params describes a token's curve at a given treasury level.
type Params struct {
	Model           domain.PricingModel
	BasePrice       int64
	Treasury        int64 // units remaining
	InitialTreasury int64 // used by linear_decay and Schedule
	DecayFactor     float64
}

// FromToken builds Params from a token's current state.
func FromToken(t *domain.Token) Params {
	return Params{
		Model:           t.PricingModel,
		BasePrice:       t.BasePrice,
		Treasury:        t.TreasuryRemaining,
		InitialTreasury: t.InitialTreasury,
		DecayFactor:     t.DecayFactor,
	}
}

// At returns a copy of p with the treasury set to treasury.
func (p Params) At(treasury int64) Params {
	p.Treasury = treasury
	return p
}

// Price returns the unit price for the next purchase.
func Price(p Params) int64 {
	base := float64(max(p.BasePrice, 1))
	treasury := float64(max(p.Treasury, 0))

	var raw float64
	switch p.Model {
	case domain.PricingSqrtDecay:
		// float64 addition keeps treasury+1 from overflowing at MaxInt64.
		raw = base / math.Sqrt(treasury+1)
	case domain.PricingLinearDecay:
		sold := 0.0
		if p.InitialTreasury > 0 {
			sold = 1 - treasury/float64(p.InitialTreasury)
		}
		raw = base * (1 + sold*p.DecayFactor)
	default:
		raw = base
	}

	return clamp(math.Ceil(raw))
}

func clamp(v float64) int64 {
	if math.IsNaN(v) || v < 1 {
		return 1
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// MaxSimulatedUnits bounds TotalCost so a single call cannot allocate unbounded memory.
const MaxSimulatedUnits = 1_000_000

// Cost is the result of simulating a multi-unit purchase.
type Cost struct {
	Total    int64   `json:"total"`
	AvgPrice int64   `json:"avg_price"`
	PerUnit  []int64 `json:"per_unit"`
}

// TotalCost simulates amount sequential unit purchases, decrementing the
// treasury by one between each, and sums the per-unit prices.
func TotalCost(p Params, amount int64) (Cost, error) {
	if amount <= 0 {
		return Cost{}, fmt.Errorf("amount must be positive, got %d", amount)
	}
	if amount > MaxSimulatedUnits {
		return Cost{}, fmt.Errorf("amount %d exceeds simulation limit %d", amount, MaxSimulatedUnits)
	}
	if p.Model != domain.PricingFixed && amount > p.Treasury {
		return Cost{}, fmt.Errorf("buying %d with %d remaining: %w", amount, p.Treasury, domain.ErrInsufficientTreasury)
	}

	cost := Cost{PerUnit: make([]int64, 0, amount)}
	treasury := p.Treasury
	for i := int64(0); i < amount; i++ {
		unit := Price(p.At(treasury))
		cost.PerUnit = append(cost.PerUnit, unit)
		cost.Total = addSat(cost.Total, unit)
		if treasury > 0 {
			treasury--
		}
	}
	cost.AvgPrice = ceilDiv(cost.Total, amount)
	return cost, nil
}

// Spend is the result of buying as many units as a budget allows.
type Spend struct {
	Count     int64 `json:"count"`
	TotalCost int64 `json:"total_cost"`
	AvgPrice  int64 `json:"avg_price"`
	Remainder int64 `json:"remainder"`
}

// TokensForSpend greedily buys whole units while the running total stays
// within budget. It stops at the first unit that would exceed the budget or
// when the treasury is empty.
func TokensForSpend(p Params, budget int64) Spend {
	var s Spend
	treasury := p.Treasury
	for treasury > 0 {
		unit := Price(p.At(treasury))
		if s.TotalCost > budget-unit {
			break
		}
		s.TotalCost += unit
		s.Count++
		treasury--
	}
	if s.Count > 0 {
		s.AvgPrice = ceilDiv(s.TotalCost, s.Count)
	}
	s.Remainder = max(budget-s.TotalCost, 0)
	return s
}

func addSat(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}
