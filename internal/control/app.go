package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/path402/internal/api"
	"github.com/vietddude/path402/internal/capability"
	"github.com/vietddude/path402/internal/core/address"
	"github.com/vietddude/path402/internal/core/config"
	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/core/worker"
	"github.com/vietddude/path402/internal/infra/chain/bitcoin"
	redisclient "github.com/vietddude/path402/internal/infra/redis"
	"github.com/vietddude/path402/internal/infra/rpc/provider"
	"github.com/vietddude/path402/internal/infra/storage"
	"github.com/vietddude/path402/internal/infra/storage/memory"
	"github.com/vietddude/path402/internal/infra/storage/postgres"
	"github.com/vietddude/path402/internal/ledger"
	"github.com/vietddude/path402/internal/paywall"
	"github.com/vietddude/path402/internal/verify/ownership"
	"github.com/vietddude/path402/internal/verify/proof"
)

// App is the main application struct that manages the service lifecycle.
type App struct {
	cfg         *config.AppConfig
	ledger      *ledger.Ledger
	lookup      *provider.HTTPProvider
	proofs      *proof.Verifier
	owners      *ownership.Verifier
	paywall     *paywall.Manager
	sweeper     *worker.Sweeper
	server      *api.Server
	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger
}

// NewApp creates a new App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	log := slog.Default().With("component", "control")
	a := &App{cfg: cfg, log: log}

	// 1. Ledger storage
	var ledgerStore storage.LedgerStore
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		a.db = db
		ledgerStore = postgres.NewStore(db, cfg.Database.MintRetries)
		log.Info("Using PostgreSQL ledger storage")
	} else {
		ledgerStore = memory.NewMemoryStorage()
		log.Info("Using Memory ledger storage")
	}

	codec := address.NewCodec(cfg.Ledger.Authority)
	a.ledger = ledger.New(ledgerStore, codec, cfg.Ledger.Defaults)

	// 2. Capability tokens
	issuer, err := NewCapabilityIssuer(cfg, a.ledger, codec)
	if err != nil {
		a.closeStores()
		return nil, err
	}

	// 3. Proof and ownership verification
	a.lookup = NewLookupProvider(cfg.Proof)
	a.proofs = proof.NewVerifier(bitcoin.NewAdapter(a.lookup), cfg.Proof)
	a.owners, err = NewOwnershipVerifier(ctx, cfg.Ownership, a.proofs)
	if err != nil {
		a.closeStores()
		return nil, err
	}

	// 4. Paywall state
	var paywallStore storage.PaywallStore
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			a.closeStores()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = client
		paywallStore = redisclient.NewPaywallStore(client)
		log.Info("Using Redis paywall storage")
	} else {
		paywallStore = memory.NewPaywallStore()
		log.Info("Using Memory paywall storage")
	}

	a.paywall, err = paywall.NewManager(paywallStore, cfg.Paywall,
		paywall.WithProofChecker(paywall.NewTxProofChecker(a.proofs)),
		paywall.WithPaymentHook(a.onPayment),
	)
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("failed to init paywall: %w", err)
	}
	a.sweeper = worker.NewSweeper(a.paywall, cfg.Paywall.SweepInterval)

	// 5. HTTP surface
	svc := api.Services{
		Ledger:     a.ledger,
		Capability: issuer,
		Ownership:  a.owners,
		Paywall:    a.paywall,
		Details:    a.paywall.Details,
		Monitor:    api.NewMonitor(10*time.Second, a.healthChecks()...),
	}
	if cfg.Ledger.RequireSettlement {
		svc.Settlement = a.proofs
	}
	if cfg.Server.ContentDir != "" {
		svc.Content = http.StripPrefix("/v1/paywall/content", http.FileServer(http.Dir(cfg.Server.ContentDir)))
	}
	a.server = api.NewServer(svc, api.Config{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		QuoteExpiry:  cfg.Paywall.RequestExpiry,
	})

	return a, nil
}

// NewCapabilityIssuer builds the capability issuer from configuration. The
// signing key is derived from the configured secret.
func NewCapabilityIssuer(cfg *config.AppConfig, owned capability.OwnedLister, codec address.Codec) (*capability.Issuer, error) {
	if cfg.Capability.Secret == "" {
		return nil, errors.New("capability.secret is required")
	}
	keys, err := capability.NewDerivedKey([]byte(cfg.Capability.Secret))
	if err != nil {
		return nil, fmt.Errorf("failed to derive capability key: %w", err)
	}
	return capability.NewIssuer(owned, keys, codec, cfg.Capability.Issuer, cfg.Capability.TTL), nil
}

// NewLookupProvider creates the REST client for a WhatsOnChain-compatible
// transaction lookup.
func NewLookupProvider(cfg proof.Config) *provider.HTTPProvider {
	endpoint := strings.TrimRight(cfg.Endpoint, "/") + "/v1/bsv/" + cfg.Network
	return provider.NewHTTPProvider("whatsonchain", endpoint, cfg.FetchTimeout)
}

// NewProofVerifier wires the on-chain verifier to the configured lookup.
func NewProofVerifier(cfg proof.Config) *proof.Verifier {
	return proof.NewVerifier(bitcoin.NewAdapter(NewLookupProvider(cfg)), cfg)
}

// NewOwnershipVerifier wires the domain ownership verifier with the system
// resolver and a decision cache.
func NewOwnershipVerifier(ctx context.Context, cfg ownership.Config, chain ownership.OnChainChecker) (*ownership.Verifier, error) {
	opts := []ownership.Option{
		ownership.WithHTTPClient(&http.Client{
			// Well-known documents are served directly; redirects are not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}),
	}
	if cfg.CacheTTL > 0 {
		cache, err := ownership.NewCache(ctx, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to init ownership cache: %w", err)
		}
		opts = append(opts, ownership.WithCache(cache))
	}
	return ownership.NewVerifier(net.DefaultResolver, chain, cfg, opts...), nil
}

// Ledger returns the content token ledger.
func (a *App) Ledger() *ledger.Ledger {
	return a.ledger
}

// Start starts the API server and background workers.
func (a *App) Start(ctx context.Context) error {
	if err := a.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("API server failed", "error", err)
		}
	}()
	return nil
}

// Stop drains the API server and releases connections.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping path402...")

	a.sweeper.Stop()
	err := a.server.Stop(ctx)
	_ = a.lookup.Close()
	a.closeStores()
	return err
}

func (a *App) closeStores() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}

func (a *App) onPayment(_ context.Context, r *domain.Receipt) {
	a.log.Info("Payment received",
		"receipt", r.ID,
		"request", r.RequestID,
		"resource", r.Resource,
		"method", r.Method,
		"amount", r.Amount.String(),
		"currency", r.Currency,
	)
}

func (a *App) healthChecks() []api.Check {
	checks := []api.Check{{
		Name: "tx_lookup",
		Probe: func(context.Context) error {
			h := a.lookup.GetHealth()
			if !h.Available {
				return fmt.Errorf("provider unavailable, error rate %.2f", h.ErrorRate)
			}
			if wait := time.Until(h.RetryAfter); wait > 0 {
				return fmt.Errorf("provider throttled for %s", wait.Round(time.Second))
			}
			return nil
		},
	}}
	if a.db != nil {
		checks = append(checks, api.Check{Name: "postgres", Critical: true, Probe: a.db.Health})
	}
	if a.redisClient != nil {
		checks = append(checks, api.Check{Name: "redis", Critical: true, Probe: a.redisClient.Health})
	}
	return checks
}
