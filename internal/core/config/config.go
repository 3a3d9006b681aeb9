package config

import (
	"time"

	"github.com/vietddude/path402/internal/core/domain"
	redisclient "github.com/vietddude/path402/internal/infra/redis"
	"github.com/vietddude/path402/internal/infra/storage/postgres"
	"github.com/vietddude/path402/internal/paywall"
	"github.com/vietddude/path402/internal/verify/ownership"
	"github.com/vietddude/path402/internal/verify/proof"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Database   postgres.Config    `yaml:"database"` // empty url = in-memory ledger
	Redis      redisclient.Config `yaml:"redis"`    // empty url = in-process paywall state
	Ledger     LedgerConfig       `yaml:"ledger"`
	Capability CapabilityConfig   `yaml:"capability"`
	Proof      proof.Config       `yaml:"proof"`
	Ownership  ownership.Config   `yaml:"ownership"`
	Paywall    paywall.Config     `yaml:"paywall"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ContentDir      string        `yaml:"content_dir"` // served behind the paywall when set
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// LedgerConfig holds content token settings.
type LedgerConfig struct {
	Authority         string               `yaml:"authority"` // e.g. example.com
	Defaults          domain.TokenDefaults `yaml:"defaults"`
	RequireSettlement bool                 `yaml:"require_settlement"` // mints must cite a known txid
}

// CapabilityConfig holds capability token signing settings.
type CapabilityConfig struct {
	Secret string        `yaml:"secret"`
	Issuer string        `yaml:"issuer"`
	TTL    time.Duration `yaml:"ttl"`
}
