package control

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/path402/internal/core/address"
	"github.com/vietddude/path402/internal/core/config"
	"github.com/vietddude/path402/internal/paywall"
)

func testConfig() *config.AppConfig {
	cfg := &config.AppConfig{}
	cfg.Server.Port = 0
	cfg.Ledger.Authority = "example.com"
	cfg.Capability.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Paywall.Prices = []paywall.PriceRule{{Pattern: "/premium/*", Model: "fixed", Amount: "1"}}
	cfg.ApplyDefaults()
	return cfg
}

func TestApp_Lifecycle(t *testing.T) {
	cfg := testConfig()

	app, err := NewApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if app.db != nil || app.redisClient != nil {
		t.Fatal("expected in-memory stores without database and redis urls")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	q, err := app.Ledger().Quote(ctx, "/blog/post")
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if q.Address != "$example.com/blog/post" {
		t.Errorf("unexpected address %q", q.Address)
	}
	if _, _, ok := app.paywall.ResourcePrice("/premium/report"); !ok {
		t.Error("configured price rule not registered")
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestApp_RequiresCapabilitySecret(t *testing.T) {
	cfg := testConfig()
	cfg.Capability.Secret = ""

	if _, err := NewApp(context.Background(), cfg); err == nil {
		t.Fatal("expected error without capability secret")
	}
}

func TestApp_RejectsBadPriceRule(t *testing.T) {
	cfg := testConfig()
	cfg.Paywall.Prices = []paywall.PriceRule{{Pattern: "/x", Model: "fixed", Amount: "lots"}}

	if _, err := NewApp(context.Background(), cfg); err == nil {
		t.Fatal("expected error for invalid price amount")
	}
}

func TestNewCapabilityIssuer_RoundTrip(t *testing.T) {
	cfg := testConfig()
	codec := address.NewCodec(cfg.Ledger.Authority)

	app, err := NewApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	issuer, err := NewCapabilityIssuer(cfg, app.Ledger(), codec)
	if err != nil {
		t.Fatalf("NewCapabilityIssuer failed: %v", err)
	}

	token, claims, err := issuer.Issue(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if claims.Issuer != cfg.Capability.Issuer {
		t.Errorf("expected issuer %q, got %q", cfg.Capability.Issuer, claims.Issuer)
	}
	if v := issuer.Verify(token, "/blog/post"); !v.Valid || v.OwnsResource {
		t.Errorf("unexpected verification %+v", v)
	}
}

func TestNewLookupProvider_Endpoint(t *testing.T) {
	cfg := testConfig()
	cfg.Proof.Endpoint = "https://api.whatsonchain.com/"

	p := NewLookupProvider(cfg.Proof)
	if p.GetName() != "whatsonchain" {
		t.Errorf("unexpected provider name %q", p.GetName())
	}
	if !p.GetHealth().Available {
		t.Error("fresh provider should report available")
	}
}
