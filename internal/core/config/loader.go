package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/path402/internal/capability"
	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/paywall"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (cfg *AppConfig) ApplyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Ledger.Authority == "" {
		cfg.Ledger.Authority = "localhost"
	}
	d := &cfg.Ledger.Defaults
	if d.PricingModel == "" {
		d.PricingModel = domain.PricingSqrtDecay
	}
	if d.BasePrice == 0 {
		d.BasePrice = 223_610
	}
	if d.Treasury == 0 {
		d.Treasury = 1_000_000
	}
	if d.DecayFactor == 0 {
		d.DecayFactor = 1
	}
	if d.IssuerShareBps == 0 && d.PlatformShareBps == 0 {
		d.IssuerShareBps = 7000
		d.PlatformShareBps = 3000
	}
	if cfg.Database.MintRetries == 0 {
		cfg.Database.MintRetries = 5
	}

	if cfg.Capability.Issuer == "" {
		cfg.Capability.Issuer = "path402"
	}
	if cfg.Capability.TTL == 0 {
		cfg.Capability.TTL = capability.DefaultTTL
	}

	if cfg.Proof.Endpoint == "" {
		cfg.Proof.Endpoint = "https://api.whatsonchain.com"
	}
	if cfg.Proof.Network == "" {
		cfg.Proof.Network = "main"
	}
	if cfg.Proof.FetchTimeout == 0 {
		cfg.Proof.FetchTimeout = 10 * time.Second
	}

	if cfg.Ownership.Protocol == "" {
		cfg.Ownership.Protocol = "path402"
	}
	if cfg.Ownership.Enforce == nil {
		enforce := true
		cfg.Ownership.Enforce = &enforce
	}
	if cfg.Ownership.DNSTimeout == 0 {
		cfg.Ownership.DNSTimeout = 5 * time.Second
	}
	if cfg.Ownership.HTTPTimeout == 0 {
		cfg.Ownership.HTTPTimeout = 10 * time.Second
	}
	if cfg.Ownership.CacheTTL == 0 {
		cfg.Ownership.CacheTTL = 10 * time.Minute
	}

	if cfg.Paywall.RequestExpiry == 0 {
		cfg.Paywall.RequestExpiry = paywall.DefaultRequestExpiry
	}
	if cfg.Paywall.TokenExpiry == 0 {
		cfg.Paywall.TokenExpiry = paywall.DefaultTokenExpiry
	}
	if cfg.Paywall.SweepInterval == 0 {
		cfg.Paywall.SweepInterval = time.Minute
	}
	if cfg.Paywall.DefaultCurrency == "" {
		cfg.Paywall.DefaultCurrency = paywall.DefaultCurrency
	}
}

// Validate rejects configurations the service cannot run with.
func (cfg *AppConfig) Validate() error {
	if !cfg.Ledger.Defaults.PricingModel.Valid() {
		return fmt.Errorf("invalid ledger.defaults.pricing_model %q", cfg.Ledger.Defaults.PricingModel)
	}
	if cfg.Ledger.Defaults.BasePrice < 0 || cfg.Ledger.Defaults.Treasury < 0 {
		return fmt.Errorf("ledger defaults must not be negative")
	}
	if cfg.Ledger.Defaults.IssuerShareBps+cfg.Ledger.Defaults.PlatformShareBps > 10_000 {
		return fmt.Errorf("ledger revenue shares exceed 10000 bps")
	}
	for _, rule := range cfg.Paywall.Prices {
		if _, err := rule.PricingConfig(); err != nil {
			return fmt.Errorf("invalid paywall price: %w", err)
		}
	}
	return nil
}
