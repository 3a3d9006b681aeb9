package ownership

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/metrics"
	"github.com/vietddude/path402/internal/verify/proof"
)

const (
	defaultProtocol    = "path402"
	defaultDNSTimeout  = 5 * time.Second
	defaultHTTPTimeout = 10 * time.Second
	maxDocumentBytes   = 64 << 10
)

// Resolver looks up DNS TXT records. *net.Resolver satisfies it.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// OnChainChecker verifies a published attestation. *proof.Verifier satisfies it.
type OnChainChecker interface {
	Check(ctx context.Context, c proof.Claim) proof.Outcome
}

// Config controls domain ownership checks.
type Config struct {
	Protocol    string        `yaml:"protocol"`
	Enforce     *bool         `yaml:"enforce"`
	DNSTimeout  time.Duration `yaml:"dns_timeout"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// Enforced reports whether all three channels must agree. Unset means true.
func (c Config) Enforced() bool {
	return c.Enforce == nil || *c.Enforce
}

// Claim asserts that Handle controls Domain and settles to Address.
type Claim struct {
	Domain  string `json:"domain"`
	Handle  string `json:"handle"`
	Address string `json:"address"`
}

// FailureKind classifies why a channel did not confirm a claim.
type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailureNotFound     FailureKind = "not_found"
	FailureMismatch     FailureKind = "mismatch"
	FailureTransport    FailureKind = "transport"
	FailureInvalidProof FailureKind = "invalid_proof"
)

// ChannelResult is one channel's verdict.
type ChannelResult struct {
	OK           bool         `json:"ok"`
	Failure      FailureKind  `json:"failure,omitempty"`
	HandleMatch  string       `json:"handle_match,omitempty"`
	AddressMatch string       `json:"address_match,omitempty"`
	Proof        *Triple      `json:"proof,omitempty"`
	Reason       proof.Reason `json:"reason,omitempty"`
	Detail       string       `json:"detail,omitempty"`
}

// Result is the breakdown of an ownership decision.
type Result struct {
	OK        bool          `json:"ok"`
	Enforced  bool          `json:"enforced"`
	Cached    bool          `json:"cached,omitempty"`
	Claim     Claim         `json:"claim"`
	DNS       ChannelResult `json:"dns"`
	HTTP      ChannelResult `json:"http"`
	OnChain   ChannelResult `json:"onchain"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Transient reports whether any channel failed for a reason worth retrying.
func (r Result) Transient() bool {
	return r.DNS.Failure == FailureTransport ||
		r.HTTP.Failure == FailureTransport ||
		r.OnChain.Failure == FailureTransport
}

// Verifier decides domain ownership from DNS, HTTPS and on-chain evidence.
type Verifier struct {
	resolver     Resolver
	chain        OnChainChecker
	client       *http.Client
	cache        *bigcache.BigCache
	wellKnownURL func(domainName, protocol string) string
	cfg          Config
	now          func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient replaces the client used for well-known documents.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.client = c }
}

// WithWellKnownURL overrides how the discovery document URL is built.
func WithWellKnownURL(fn func(domainName, protocol string) string) Option {
	return func(v *Verifier) { v.wellKnownURL = fn }
}

// WithCache caches successful decisions.
func WithCache(c *bigcache.BigCache) Option {
	return func(v *Verifier) { v.cache = c }
}

// NewVerifier creates an ownership verifier.
func NewVerifier(resolver Resolver, chain OnChainChecker, cfg Config, opts ...Option) *Verifier {
	if cfg.Protocol == "" {
		cfg.Protocol = defaultProtocol
	}
	if cfg.DNSTimeout <= 0 {
		cfg.DNSTimeout = defaultDNSTimeout
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	v := &Verifier{
		resolver: resolver,
		chain:    chain,
		client:   &http.Client{},
		cfg:      cfg,
		now:      time.Now,
		wellKnownURL: func(domainName, protocol string) string {
			return "https://" + domainName + "/.well-known/" + protocol + ".json"
		},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// NewCache creates the decision cache used with WithCache.
func NewCache(ctx context.Context, ttl time.Duration) (*bigcache.BigCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Verbose = false
	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ownership cache: %w", err)
	}
	return cache, nil
}

// Verify checks a claim over all three channels. With enforcement disabled it
// accepts the claim without any network I/O.
func (v *Verifier) Verify(ctx context.Context, c Claim) Result {
	c = normalizeClaim(c)
	res := Result{Claim: c, Enforced: v.cfg.Enforced(), CheckedAt: v.now()}

	if !res.Enforced {
		slog.Warn("Domain ownership enforcement disabled, accepting claim",
			"domain", c.Domain, "handle", c.Handle)
		res.OK = true
		return res
	}

	if cached, ok := v.lookupCache(c); ok {
		return cached
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.DNS = v.checkDNS(gctx, c)
		return nil
	})
	g.Go(func() error {
		res.HTTP = v.checkHTTP(gctx, c)
		return nil
	})
	_ = g.Wait()

	res.OnChain = v.checkOnChain(ctx, c, res.DNS.Proof, res.HTTP.Proof)
	res.OK = res.DNS.OK && res.HTTP.OK && res.OnChain.OK

	record("dns", res.DNS)
	record("http", res.HTTP)
	record("onchain", res.OnChain)

	slog.Info("Domain ownership checked",
		"domain", c.Domain,
		"handle", c.Handle,
		"ok", res.OK,
		"dns", res.DNS.OK,
		"http", res.HTTP.OK,
		"onchain", res.OnChain.OK,
	)

	if res.OK {
		v.storeCache(res)
	}
	return res
}

func (v *Verifier) checkDNS(ctx context.Context, c Claim) ChannelResult {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.DNSTimeout)
	defer cancel()

	name := "_" + v.cfg.Protocol + "." + c.Domain
	records, err := v.resolver.LookupTXT(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return ChannelResult{Failure: FailureNotFound, Detail: name}
		}
		return ChannelResult{Failure: FailureTransport, Detail: err.Error()}
	}
	if len(records) == 0 {
		return ChannelResult{Failure: FailureNotFound, Detail: name}
	}

	out := ChannelResult{Proof: tripleFromTXT(records)}
	out.HandleMatch, _ = matchTXT(records, c.Handle, handleField)
	out.AddressMatch, _ = matchTXT(records, c.Address, addressField)
	return settle(out)
}

func (v *Verifier) checkHTTP(ctx context.Context, c Claim) ChannelResult {
	ctx, cancel := context.WithTimeout(ctx, v.cfg.HTTPTimeout)
	defer cancel()

	url := v.wellKnownURL(c.Domain, v.cfg.Protocol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ChannelResult{Failure: FailureInvalidProof, Detail: err.Error()}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return ChannelResult{Failure: FailureTransport, Detail: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return ChannelResult{Failure: FailureTransport, Detail: resp.Status}
	default:
		return ChannelResult{Failure: FailureNotFound, Detail: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return ChannelResult{Failure: FailureTransport, Detail: err.Error()}
	}
	if !gjson.ValidBytes(body) {
		return ChannelResult{Failure: FailureInvalidProof, Detail: "document is not valid JSON"}
	}

	doc := gjson.ParseBytes(body)
	out := ChannelResult{Proof: tripleFromJSON(doc)}
	out.HandleMatch, _ = matchJSON(doc, handleExtractors, c.Handle, handleField)
	out.AddressMatch, _ = matchJSON(doc, addressExtractors, c.Address, addressField)
	return settle(out)
}

// checkOnChain verifies the first published triple, preferring DNS.
func (v *Verifier) checkOnChain(ctx context.Context, c Claim, candidates ...*Triple) ChannelResult {
	var t *Triple
	for _, cand := range candidates {
		if cand.usable() {
			t = cand
			break
		}
	}
	if t == nil {
		return ChannelResult{Failure: FailureNotFound, Detail: "no attestation published"}
	}
	if v.chain == nil {
		return ChannelResult{Failure: FailureTransport, Proof: t, Detail: "no on-chain checker configured"}
	}

	o := v.chain.Check(ctx, proof.Claim{
		Domain:        c.Domain,
		IssuerAddress: c.Address,
		TxID:          t.TxID,
		Signature:     t.Signature,
		Message:       t.Message,
	})
	out := ChannelResult{OK: o.Valid, Proof: t, Reason: o.Reason}
	if o.Valid {
		return out
	}
	switch {
	case o.Transient():
		out.Failure = FailureTransport
	case o.Reason == proof.ReasonNotFound:
		out.Failure = FailureNotFound
	case o.Reason == proof.ReasonDomainMismatch, o.Reason == proof.ReasonIssuerMismatch:
		out.Failure = FailureMismatch
	default:
		out.Failure = FailureInvalidProof
	}
	if o.Err != nil {
		out.Detail = o.Err.Error()
	}
	return out
}

func settle(out ChannelResult) ChannelResult {
	out.OK = out.HandleMatch != "" && out.AddressMatch != ""
	if !out.OK {
		out.Failure = FailureMismatch
	}
	return out
}

func record(channel string, r ChannelResult) {
	result := "ok"
	if !r.OK {
		result = string(r.Failure)
	}
	metrics.DomainVerifications.WithLabelValues(channel, result).Inc()
}

func normalizeClaim(c Claim) Claim {
	c.Domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(c.Domain)), ".")
	c.Handle = domain.NormalizeHandle(c.Handle)
	c.Address = strings.TrimSpace(c.Address)
	return c
}

func cacheKey(c Claim) string {
	return c.Domain + "|" + c.Handle + "|" + c.Address
}

func (v *Verifier) lookupCache(c Claim) (Result, bool) {
	if v.cache == nil {
		return Result{}, false
	}
	b, err := v.cache.Get(cacheKey(c))
	if err != nil {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(b, &res); err != nil {
		return Result{}, false
	}
	res.Cached = true
	return res, true
}

func (v *Verifier) storeCache(res Result) {
	if v.cache == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := v.cache.Set(cacheKey(res.Claim), b); err != nil {
		slog.Warn("Failed to cache ownership result", "domain", res.Claim.Domain, "error", err)
	}
}
