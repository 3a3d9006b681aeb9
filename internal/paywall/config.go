package paywall

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/path402/internal/core/domain"
)

const (
	DefaultRequestExpiry = time.Hour
	DefaultTokenExpiry   = 24 * time.Hour
	DefaultCurrency      = "USD"
)

// DefaultMethods are accepted when a price does not list its own.
var DefaultMethods = []domain.PaymentMethod{domain.MethodBSV, domain.MethodHandCash}

// Config controls request and token lifetimes and the static price table.
type Config struct {
	RequestExpiry   time.Duration `yaml:"request_expiry"`
	TokenExpiry     time.Duration `yaml:"token_expiry"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	DefaultMethods  []string      `yaml:"default_methods"`
	DefaultCurrency string        `yaml:"default_currency"`
	Address         string        `yaml:"address"` // settlement address advertised in challenges
	Prices          []PriceRule   `yaml:"prices"`
}

// PriceRule is a price table entry as written in configuration.
type PriceRule struct {
	Pattern      string        `yaml:"pattern"`
	Model        string        `yaml:"model"`
	Amount       string        `yaml:"amount"`
	Currency     string        `yaml:"currency"`
	Duration     time.Duration `yaml:"duration"`
	RequestLimit int           `yaml:"request_limit"`
	Methods      []string      `yaml:"methods"`
	Description  string        `yaml:"description"`
}

// PricingConfig converts the rule into a domain pricing config.
func (r PriceRule) PricingConfig() (domain.PricingConfig, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return domain.PricingConfig{}, fmt.Errorf("invalid amount %q for %s: %w", r.Amount, r.Pattern, err)
	}
	if amount.IsNegative() {
		return domain.PricingConfig{}, fmt.Errorf("negative amount for %s", r.Pattern)
	}
	model := domain.PriceModel(r.Model)
	if model == "" {
		model = domain.PriceModelFixed
	}
	if !model.Valid() {
		return domain.PricingConfig{}, fmt.Errorf("unknown price model %q for %s", r.Model, r.Pattern)
	}
	return domain.PricingConfig{
		Model:        model,
		Amount:       amount,
		Currency:     r.Currency,
		Duration:     r.Duration,
		RequestLimit: r.RequestLimit,
		Methods:      toMethods(r.Methods),
		Description:  r.Description,
	}, nil
}

func toMethods(in []string) []domain.PaymentMethod {
	out := make([]domain.PaymentMethod, 0, len(in))
	for _, m := range in {
		out = append(out, domain.PaymentMethod(m))
	}
	return out
}

func (c *Config) applyDefaults() {
	if c.RequestExpiry <= 0 {
		c.RequestExpiry = DefaultRequestExpiry
	}
	if c.TokenExpiry <= 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = DefaultCurrency
	}
}
