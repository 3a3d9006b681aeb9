package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/path402/internal/core/domain"
)

// PTTL replies for a missing key and a key without expiry.
const (
	keyMissing = time.Duration(-2)
	noExpiry   = time.Duration(-1)
)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PaywallStore keeps paywall state in Redis so several instances share it.
// Requests and tokens carry a TTL ending at their expiry, so Redis performs
// the sweep; receipts and redemptions are kept.
type PaywallStore struct {
	c   *Client
	now func() time.Time
}

func NewPaywallStore(c *Client) *PaywallStore {
	return &PaywallStore{c: c, now: time.Now}
}

func (s *PaywallStore) ttlUntil(t time.Time) time.Duration {
	ttl := t.Sub(s.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl
}

func (s *PaywallStore) SaveRequest(ctx context.Context, req *domain.PaymentRequest) error {
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if err := s.c.rdb.Set(ctx, s.c.requestKey(req.ID), b, s.ttlUntil(req.ExpiresAt)).Err(); err != nil {
		return fmt.Errorf("set request failed: %w", err)
	}
	return nil
}

func (s *PaywallStore) GetRequest(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	var req domain.PaymentRequest
	found, err := s.getJSON(ctx, s.c.requestKey(id), &req)
	if err != nil || !found {
		return nil, err
	}
	n, err := s.c.rdb.Exists(ctx, s.c.fulfilledKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("exists failed: %w", err)
	}
	if n > 0 {
		req.Status = domain.RequestFulfilled
	}
	return &req, nil
}

// FulfillRequest sets a marker with SETNX so exactly one caller wins.
func (s *PaywallStore) FulfillRequest(ctx context.Context, id string) (bool, error) {
	ttl, err := s.c.rdb.PTTL(ctx, s.c.requestKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("pttl failed: %w", err)
	}
	if ttl == keyMissing {
		return false, nil
	}
	if ttl == noExpiry {
		ttl = 0
	}
	ok, err := s.c.rdb.SetNX(ctx, s.c.fulfilledKey(id), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

func (s *PaywallStore) AppendReceipt(ctx context.Context, receipt *domain.Receipt) error {
	b, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	_, err = s.c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.c.receiptKey(receipt.ID), b, 0)
		pipe.ZAdd(ctx, s.c.receiptIndexKey(), redis.Z{
			Score:  float64(receipt.PaidAt.UnixMilli()),
			Member: receipt.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("append receipt failed: %w", err)
	}
	return nil
}

func (s *PaywallStore) GetReceipt(ctx context.Context, id string) (*domain.Receipt, error) {
	var r domain.Receipt
	found, err := s.getJSON(ctx, s.c.receiptKey(id), &r)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

// ListReceipts returns receipts paid in [start, end]. Zero bounds are open.
func (s *PaywallStore) ListReceipts(ctx context.Context, start, end time.Time) ([]*domain.Receipt, error) {
	lo, hi := "-inf", "+inf"
	if !start.IsZero() {
		lo = strconv.FormatInt(start.UnixMilli(), 10)
	}
	if !end.IsZero() {
		hi = strconv.FormatInt(end.UnixMilli(), 10)
	}
	ids, err := s.c.rdb.ZRangeByScore(ctx, s.c.receiptIndexKey(), &redis.ZRangeBy{Min: lo, Max: hi}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.c.receiptKey(id)
	}
	vals, err := s.c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget failed: %w", err)
	}

	out := make([]*domain.Receipt, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r domain.Receipt
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, fmt.Errorf("unmarshal receipt: %w", err)
		}
		out = append(out, &r)
	}
	return out, nil
}

func (s *PaywallStore) ClaimRedemption(ctx context.Context, requestID, token string) (bool, error) {
	ok, err := s.c.rdb.SetNX(ctx, s.c.redeemedKey(requestID), token, 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

func (s *PaywallStore) ReleaseRedemption(ctx context.Context, requestID, token string) error {
	if err := releaseScript.Run(ctx, s.c.rdb, []string{s.c.redeemedKey(requestID)}, token).Err(); err != nil {
		return fmt.Errorf("release redemption failed: %w", err)
	}
	return nil
}

// ClaimSettlement is a SETNX on the reference; claims never expire so a
// payment cannot back a second request later.
func (s *PaywallStore) ClaimSettlement(ctx context.Context, ref, requestID string) (bool, error) {
	ok, err := s.c.rdb.SetNX(ctx, s.c.settlementKey(ref), requestID, 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

func (s *PaywallStore) ReleaseSettlement(ctx context.Context, ref, requestID string) error {
	if err := releaseScript.Run(ctx, s.c.rdb, []string{s.c.settlementKey(ref)}, requestID).Err(); err != nil {
		return fmt.Errorf("release settlement failed: %w", err)
	}
	return nil
}

func (s *PaywallStore) SaveToken(ctx context.Context, token *domain.AccessToken) error {
	b, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	ttl := s.ttlUntil(token.ExpiresAt)
	_, err = s.c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.c.tokenKey(token.Token), b, ttl)
		pipe.Set(ctx, s.c.usageKey(token.Token), token.UsageCount, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save token failed: %w", err)
	}
	return nil
}

func (s *PaywallStore) GetToken(ctx context.Context, token string) (*domain.AccessToken, error) {
	var t domain.AccessToken
	found, err := s.getJSON(ctx, s.c.tokenKey(token), &t)
	if err != nil || !found {
		return nil, err
	}

	used, err := s.c.rdb.Get(ctx, s.c.usageKey(token)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get usage failed: %w", err)
	}
	t.UsageCount = used

	revoked, err := s.c.rdb.Exists(ctx, s.c.revokedKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("exists failed: %w", err)
	}
	t.Revoked = t.Revoked || revoked > 0
	return &t, nil
}

// ConsumeUse increments the usage counter and rolls back if it passes the limit.
func (s *PaywallStore) ConsumeUse(ctx context.Context, token string) (bool, error) {
	t, err := s.GetToken(ctx, token)
	if err != nil || t == nil || t.Revoked {
		return false, err
	}

	n, err := s.c.rdb.Incr(ctx, s.c.usageKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("incr failed: %w", err)
	}
	if t.UsageLimit > 0 && n > int64(t.UsageLimit) {
		if err := s.c.rdb.Decr(ctx, s.c.usageKey(token)).Err(); err != nil {
			return false, fmt.Errorf("decr failed: %w", err)
		}
		return false, nil
	}
	return true, nil
}

func (s *PaywallStore) RevokeToken(ctx context.Context, token string) (bool, error) {
	ttl, err := s.c.rdb.PTTL(ctx, s.c.tokenKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("pttl failed: %w", err)
	}
	if ttl == keyMissing {
		return false, nil
	}
	if ttl == noExpiry {
		ttl = 0
	}
	if err := s.c.rdb.Set(ctx, s.c.revokedKey(token), "1", ttl).Err(); err != nil {
		return false, fmt.Errorf("set revoked failed: %w", err)
	}
	return true, nil
}

// Sweep is a no-op: expired requests and tokens leave Redis through their TTL.
func (s *PaywallStore) Sweep(ctx context.Context, now time.Time) (int, int, error) {
	return 0, 0, nil
}

func (s *PaywallStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	b, err := s.c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get failed: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}
