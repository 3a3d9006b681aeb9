package domain

import (
	"time"
)

// PricingModel selects the bonding curve used to price a token.
type PricingModel string

const (
	PricingFixed       PricingModel = "fixed"
	PricingSqrtDecay   PricingModel = "sqrt_decay"
	PricingLinearDecay PricingModel = "linear_decay"
)

// Valid reports whether m is a known pricing model.
func (m PricingModel) Valid() bool {
	switch m {
	case PricingFixed, PricingSqrtDecay, PricingLinearDecay:
		return true
	}
	return false
}

// Token is the per-resource content token. One row per resource address.
type Token struct {
	Address           string       `json:"address"            db:"address"`
	Name              string       `json:"name"               db:"name"`
	PricingModel      PricingModel `json:"pricing_model"      db:"pricing_model"`
	BasePrice         int64        `json:"base_price"         db:"base_price"`
	DecayFactor       float64      `json:"decay_factor"       db:"decay_factor"`
	TotalSupply       int64        `json:"total_supply"       db:"total_supply"`
	TreasuryRemaining int64        `json:"treasury_remaining" db:"treasury_remaining"`
	InitialTreasury   int64        `json:"initial_treasury"   db:"initial_treasury"`
	MaxSupply         *int64       `json:"max_supply"         db:"max_supply"`
	IssuerHandle      string       `json:"issuer_handle"      db:"issuer_handle"`
	IssuerShareBps    int          `json:"issuer_share_bps"   db:"issuer_share_bps"`
	PlatformShareBps  int          `json:"platform_share_bps" db:"platform_share_bps"`
	Active            bool         `json:"active"             db:"active"`
	Verified          bool         `json:"verified"           db:"verified"`
	CreatedAt         time.Time    `json:"created_at"         db:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"         db:"updated_at"`
}

// TokenDefaults are applied when a token is created lazily.
type TokenDefaults struct {
	PricingModel     PricingModel `yaml:"pricing_model"`
	BasePrice        int64        `yaml:"base_price"`
	DecayFactor      float64      `yaml:"decay_factor"`
	Treasury         int64        `yaml:"treasury"`
	IssuerShareBps   int          `yaml:"issuer_share_bps"`
	PlatformShareBps int          `yaml:"platform_share_bps"`
}

// NewToken builds a fresh token for address from defaults.
func NewToken(address, name string, d TokenDefaults, now time.Time) *Token {
	if name == "" {
		name = address
	}
	return &Token{
		Address:           address,
		Name:              name,
		PricingModel:      d.PricingModel,
		BasePrice:         d.BasePrice,
		DecayFactor:       d.DecayFactor,
		TreasuryRemaining: d.Treasury,
		InitialTreasury:   d.Treasury,
		IssuerShareBps:    d.IssuerShareBps,
		PlatformShareBps:  d.PlatformShareBps,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
