// Package capability issues and verifies signed, expiring tokens that list the
// resource addresses a holder owns. Verification is pure computation so it can
// run at the edge without a ledger lookup.
package capability

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vietddude/path402/internal/core/address"
	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/metrics"
)

// ClaimsVersion is the current claims schema version.
const ClaimsVersion = 1

// DefaultTTL is the validity window of an issued token.
const DefaultTTL = 24 * time.Hour

// Claims is the signed payload. ExpiresAt duplicates the registered exp
// claim so the window is checked twice.
type Claims struct {
	Version    int      `json:"v"`
	Handle     string   `json:"handle"`
	OwnedPaths []string `json:"ownedPaths"`
	IssuedAt   int64    `json:"issuedAt"`
	ExpiresAt  int64    `json:"expiresAt"`
	jwt.RegisteredClaims
}

// Verification is the outcome of checking a token against a resource.
type Verification struct {
	Valid        bool   `json:"valid"`
	Handle       string `json:"handle,omitempty"`
	OwnsResource bool   `json:"owns_resource"`
	Reason       string `json:"reason,omitempty"`
}

// OwnedLister lists the tokens a holder owns.
type OwnedLister interface {
	ListOwned(ctx context.Context, handle string) ([]domain.OwnedToken, error)
}

// Verifier checks capability tokens.
type Verifier struct {
	keys   KeyProvider
	codec  address.Codec
	issuer string
	now    func() time.Time
}

// NewVerifier creates a verifier. codec resolves path-style resources.
func NewVerifier(keys KeyProvider, codec address.Codec, issuer string) *Verifier {
	return &Verifier{keys: keys, codec: codec, issuer: issuer, now: time.Now}
}

// Verify decodes token and reports whether it is valid and covers resource,
// which may be an address or a path. It performs no I/O.
func (v *Verifier) Verify(token, resource string) Verification {
	claims, err := v.Parse(token)
	if err != nil {
		metrics.CapabilityVerifications.WithLabelValues("invalid").Inc()
		return Verification{Reason: err.Error()}
	}

	res := Verification{Valid: true, Handle: claims.Handle}
	if addr, err := v.codec.Resolve(resource); err == nil {
		res.OwnsResource = slices.Contains(claims.OwnedPaths, addr)
	}
	if res.OwnsResource {
		metrics.CapabilityVerifications.WithLabelValues("granted").Inc()
	} else {
		metrics.CapabilityVerifications.WithLabelValues("not_owned").Inc()
	}
	return res
}

// Parse validates the signature, algorithm and both expiry claims.
func (v *Verifier) Parse(token string) (*Claims, error) {
	key, err := v.keys.SigningKey()
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidProof, err)
	}

	if claims.Version != ClaimsVersion {
		return nil, fmt.Errorf("%w: unsupported claims version %d", domain.ErrInvalidProof, claims.Version)
	}
	if claims.Handle == "" {
		return nil, fmt.Errorf("%w: missing handle", domain.ErrInvalidProof)
	}
	if v.now().Unix() >= claims.ExpiresAt {
		return nil, fmt.Errorf("%w: token", domain.ErrExpired)
	}
	return &claims, nil
}

// Issuer mints capability tokens from the ledger's view of a holder.
type Issuer struct {
	*Verifier
	owned OwnedLister
	ttl   time.Duration
	log   *slog.Logger
}

// NewIssuer creates an issuer. A zero ttl means DefaultTTL.
func NewIssuer(owned OwnedLister, keys KeyProvider, codec address.Codec, issuer string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		Verifier: NewVerifier(keys, codec, issuer),
		owned:    owned,
		ttl:      ttl,
		log:      slog.Default().With("component", "capability"),
	}
}

// Issue signs a token listing every address handle currently owns. Purchases
// made after issuance are invisible until the caller re-issues.
func (i *Issuer) Issue(ctx context.Context, handle string) (string, *Claims, error) {
	h := domain.NormalizeHandle(handle)
	if h == "" {
		return "", nil, fmt.Errorf("empty holder handle")
	}

	owned, err := i.owned.ListOwned(ctx, h)
	if err != nil {
		return "", nil, fmt.Errorf("failed to list owned tokens: %w", err)
	}
	addrs := make([]string, 0, len(owned))
	for _, o := range owned {
		addrs = append(addrs, o.Token.Address)
	}

	// Whole seconds keep the duplicated window identical to the JWT claims.
	now := i.now().Truncate(time.Second)
	exp := now.Add(i.ttl)
	claims := &Claims{
		Version:    ClaimsVersion,
		Handle:     h,
		OwnedPaths: addrs,
		IssuedAt:   now.Unix(),
		ExpiresAt:  exp.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   h,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	key, err := i.keys.SigningKey()
	if err != nil {
		return "", nil, err
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign capability token: %w", err)
	}

	metrics.CapabilityIssued.Inc()
	i.log.Debug("Issued capability token", "handle", h, "resources", len(addrs), "expires_at", exp)
	return signed, claims, nil
}
