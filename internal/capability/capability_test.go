package capability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/path402/internal/core/address"
	"github.com/vietddude/path402/internal/core/domain"
)

type fakeLister struct {
	owned map[string][]string
	err   error
	calls int
}

func (f *fakeLister) ListOwned(ctx context.Context, handle string) ([]domain.OwnedToken, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.OwnedToken
	for _, addr := range f.owned[handle] {
		out = append(out, domain.OwnedToken{
			Balance: domain.Balance{Handle: handle, TokenAddress: addr, Balance: 1},
			Token:   domain.Token{Address: addr},
		})
	}
	return out, nil
}

func newTestIssuer(t *testing.T, lister OwnedLister) (*Issuer, *time.Time) {
	t.Helper()
	key, err := NewDerivedKey([]byte("0123456789abcdef-test-secret"))
	require.NoError(t, err)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := NewIssuer(lister, key, address.NewCodec("example.com"), "path402", 0)
	iss.now = func() time.Time { return clock }
	return iss, &clock
}

func TestIssuer_IssueAndVerify(t *testing.T) {
	lister := &fakeLister{owned: map[string][]string{
		"alice": {"$example.com/blog/a", "$example.com/blog/b"},
	}}
	iss, _ := newTestIssuer(t, lister)

	token, claims, err := iss.Issue(context.Background(), "@Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Handle)
	assert.Equal(t, ClaimsVersion, claims.Version)
	assert.Equal(t, int64(DefaultTTL/time.Second), claims.ExpiresAt-claims.IssuedAt)
	assert.NotContains(t, token, "=", "token must be unpadded base64url")
	assert.Len(t, strings.Split(token, "."), 3)

	lister.calls = 0
	v := iss.Verify(token, "$example.com/blog/a")
	assert.True(t, v.Valid)
	assert.True(t, v.OwnsResource)
	assert.Equal(t, "alice", v.Handle)

	v = iss.Verify(token, "/blog/b")
	assert.True(t, v.Valid)
	assert.True(t, v.OwnsResource, "path form resolves to the same address")

	v = iss.Verify(token, "/blog/c")
	assert.True(t, v.Valid)
	assert.False(t, v.OwnsResource)

	assert.Zero(t, lister.calls, "verification must not consult the ledger")
}

func TestIssuer_Expiry(t *testing.T) {
	iss, clock := newTestIssuer(t, &fakeLister{owned: map[string][]string{"alice": {"$example.com/x"}}})

	token, claims, err := iss.Issue(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, iss.Verify(token, "/x").Valid)

	expired := time.Unix(claims.ExpiresAt, 0).Add(time.Second)
	*clock = expired
	v := iss.Verify(token, "/x")
	assert.False(t, v.Valid)
	assert.False(t, v.OwnsResource)
	assert.Empty(t, v.Handle)
}

func TestVerifier_RejectsTamperedAndForeignTokens(t *testing.T) {
	iss, _ := newTestIssuer(t, &fakeLister{owned: map[string][]string{"alice": {"$example.com/x"}}})
	token, _, err := iss.Issue(context.Background(), "alice")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	assert.False(t, iss.Verify(tampered, "/x").Valid)

	other := NewVerifier(StaticKey("a-completely-different-key"), address.NewCodec("example.com"), "path402")
	other.now = iss.now
	assert.False(t, other.Verify(token, "/x").Valid)

	assert.False(t, iss.Verify("not-a-token", "/x").Valid)
	assert.False(t, iss.Verify("", "/x").Valid)
}

func TestVerifier_RejectsNoneAlgorithm(t *testing.T) {
	iss, clock := newTestIssuer(t, &fakeLister{})
	claims := &Claims{
		Version:    ClaimsVersion,
		Handle:     "mallory",
		OwnedPaths: []string{"$example.com/x"},
		IssuedAt:   clock.Unix(),
		ExpiresAt:  clock.Add(time.Hour).Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "path402",
			ExpiresAt: jwt.NewNumericDate(clock.Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.False(t, iss.Verify(unsigned, "/x").Valid)
}

func TestVerifier_InnerExpiryChecked(t *testing.T) {
	iss, clock := newTestIssuer(t, &fakeLister{})
	key, err := iss.keys.SigningKey()
	require.NoError(t, err)

	claims := &Claims{
		Version:   ClaimsVersion,
		Handle:    "alice",
		IssuedAt:  clock.Add(-2 * time.Hour).Unix(),
		ExpiresAt: clock.Add(-time.Hour).Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "path402",
			ExpiresAt: jwt.NewNumericDate(clock.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)

	_, err = iss.Parse(token)
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestIssuer_Errors(t *testing.T) {
	iss, _ := newTestIssuer(t, &fakeLister{err: errors.New("db down")})
	_, _, err := iss.Issue(context.Background(), "alice")
	assert.Error(t, err)

	_, _, err = iss.Issue(context.Background(), "")
	assert.Error(t, err)

	_, err = NewDerivedKey([]byte("short"))
	assert.Error(t, err)
}
