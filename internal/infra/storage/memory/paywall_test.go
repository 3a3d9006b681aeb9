package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/path402/internal/core/domain"
)

func TestPaywallStore_FulfillOnce(t *testing.T) {
	s := NewPaywallStore()
	ctx := context.Background()
	now := time.Now()

	if err := s.SaveRequest(ctx, &domain.PaymentRequest{ID: "r1", Status: domain.RequestPending, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("SaveRequest failed: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.FulfillRequest(ctx, "r1")
			if err != nil {
				t.Errorf("FulfillRequest failed: %v", err)
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one fulfillment, got %d", wins)
	}
	if ok, _ := s.FulfillRequest(ctx, "missing"); ok {
		t.Error("missing request must not fulfill")
	}
}

func TestPaywallStore_ConsumeUseRespectsLimit(t *testing.T) {
	s := NewPaywallStore()
	ctx := context.Background()

	_ = s.SaveToken(ctx, &domain.AccessToken{Token: "t1", UsageLimit: 2, ExpiresAt: time.Now().Add(time.Hour)})

	for i := 0; i < 2; i++ {
		if ok, _ := s.ConsumeUse(ctx, "t1"); !ok {
			t.Fatalf("use %d should succeed", i+1)
		}
	}
	if ok, _ := s.ConsumeUse(ctx, "t1"); ok {
		t.Error("third use should exceed the limit")
	}

	stored, _ := s.GetToken(ctx, "t1")
	if stored.UsageCount != 2 {
		t.Errorf("expected usage count 2, got %d", stored.UsageCount)
	}

	// Returned tokens are copies.
	stored.UsageCount = 0
	again, _ := s.GetToken(ctx, "t1")
	if again.UsageCount != 2 {
		t.Error("mutating a returned token leaked into the store")
	}
}

func TestPaywallStore_RevokeAndClaim(t *testing.T) {
	s := NewPaywallStore()
	ctx := context.Background()

	_ = s.SaveToken(ctx, &domain.AccessToken{Token: "t1", ExpiresAt: time.Now().Add(time.Hour)})
	if ok, _ := s.RevokeToken(ctx, "t1"); !ok {
		t.Fatal("revoke should find the token")
	}
	if ok, _ := s.ConsumeUse(ctx, "t1"); ok {
		t.Error("revoked token must not be usable")
	}
	if ok, _ := s.RevokeToken(ctx, "nope"); ok {
		t.Error("revoking an unknown token should report false")
	}

	if ok, _ := s.ClaimRedemption(ctx, "r1", "t1"); !ok {
		t.Fatal("first claim should succeed")
	}
	if ok, _ := s.ClaimRedemption(ctx, "r1", "t2"); ok {
		t.Error("second claim should fail")
	}
	_ = s.ReleaseRedemption(ctx, "r1", "t2")
	if ok, _ := s.ClaimRedemption(ctx, "r1", "t3"); ok {
		t.Error("a non-holder must not release the claim")
	}
	_ = s.ReleaseRedemption(ctx, "r1", "t1")
	if ok, _ := s.ClaimRedemption(ctx, "r1", "t3"); !ok {
		t.Error("claim should be free after the holder releases it")
	}
}

func TestPaywallStore_ClaimSettlement(t *testing.T) {
	s := NewPaywallStore()
	ctx := context.Background()

	if ok, _ := s.ClaimSettlement(ctx, "bsv:tx1", "r1"); !ok {
		t.Fatal("first settlement claim should succeed")
	}
	if ok, _ := s.ClaimSettlement(ctx, "bsv:tx1", "r2"); ok {
		t.Error("a settlement ref must back one request")
	}
	if ok, _ := s.ClaimSettlement(ctx, "handcash:tx1", "r2"); !ok {
		t.Error("refs are scoped by method")
	}
	_ = s.ReleaseSettlement(ctx, "bsv:tx1", "r1")
	if ok, _ := s.ClaimSettlement(ctx, "bsv:tx1", "r2"); !ok {
		t.Error("released ref should be claimable")
	}
}

func TestPaywallStore_SweepKeepsReceipts(t *testing.T) {
	s := NewPaywallStore()
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.SaveRequest(ctx, &domain.PaymentRequest{ID: "old", ExpiresAt: now.Add(-time.Minute)})
	_ = s.SaveRequest(ctx, &domain.PaymentRequest{ID: "new", ExpiresAt: now.Add(time.Minute)})
	_ = s.SaveToken(ctx, &domain.AccessToken{Token: "old", ExpiresAt: now})
	_ = s.AppendReceipt(ctx, &domain.Receipt{ID: "rc", RequestID: "old", PaidAt: now.Add(-time.Hour)})

	requests, tokens, err := s.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if requests != 1 || tokens != 1 {
		t.Errorf("expected 1 request and 1 token swept, got %d and %d", requests, tokens)
	}

	requests, tokens, _ = s.Sweep(ctx, now)
	if requests != 0 || tokens != 0 {
		t.Error("sweep should be idempotent")
	}

	if r, _ := s.GetRequest(ctx, "new"); r == nil {
		t.Error("unexpired request was swept")
	}
	if rc, _ := s.GetReceipt(ctx, "rc"); rc == nil {
		t.Error("receipts must survive sweeps")
	}
	list, _ := s.ListReceipts(ctx, now.Add(-2*time.Hour), now)
	if len(list) != 1 {
		t.Errorf("expected 1 receipt in range, got %d", len(list))
	}
}
