package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/path402/internal/capability"
	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/ledger"
	"github.com/vietddude/path402/internal/metrics"
	"github.com/vietddude/path402/internal/paywall"
	"github.com/vietddude/path402/internal/verify/ownership"
)

// OwnershipVerifier checks a domain ownership claim.
type OwnershipVerifier interface {
	Verify(ctx context.Context, c ownership.Claim) ownership.Result
}

// SettlementFetcher confirms a mint's settlement reference exists on chain.
type SettlementFetcher interface {
	FetchRawTransaction(ctx context.Context, txID string) ([]byte, error)
}

// Services are the components the API exposes. Ownership, Paywall and
// Settlement are optional; their routes answer 501 when unset.
type Services struct {
	Ledger     *ledger.Ledger
	Capability *capability.Issuer
	Ownership  OwnershipVerifier
	Paywall    *paywall.Manager
	Settlement SettlementFetcher
	Monitor    *Monitor

	// Details supplies settlement instructions for paywall challenges.
	Details paywall.DetailsFunc
	// Content serves paid resources once the paywall admits a request.
	Content http.Handler
}

// Config holds HTTP server settings.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// QuoteExpiry bounds how long a 402 ledger quote is advertised as valid.
	QuoteExpiry time.Duration
}

// Server provides the HTTP API.
type Server struct {
	svc         Services
	quoteExpiry time.Duration
	server      *http.Server
	log         *slog.Logger
}

// NewServer creates a new API server.
func NewServer(svc Services, cfg Config) *Server {
	if svc.Monitor == nil {
		svc.Monitor = NewMonitor(10 * time.Second)
	}
	if cfg.QuoteExpiry <= 0 {
		cfg.QuoteExpiry = paywall.DefaultRequestExpiry
	}
	s := &Server{
		svc:         svc,
		quoteExpiry: cfg.QuoteExpiry,
		log:         slog.Default().With("component", "api"),
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, instrument)
	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleDetailed)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Get("/tokens/quote", s.handleQuote)
		api.Get("/tokens/schedule", s.handleSchedule)
		api.Get("/tokens/history", s.handleHistory)
		api.Post("/tokens/mint", s.handleMint)
		api.Get("/holders/{handle}/tokens", s.handleHolderTokens)

		api.Post("/capability", s.handleIssueCapability)
		api.Get("/access", s.handleAccess)

		api.Post("/domains/verify", s.handleVerifyDomain)

		api.Post("/paywall/requests", s.handleCreateRequest)
		api.Post("/paywall/requests/{id}/payments", s.handleSubmitPayment)
		api.Post("/paywall/tokens/revoke", s.handleRevokeToken)
		api.Get("/paywall/stats", s.handleStats)
		if s.svc.Paywall != nil && s.svc.Content != nil {
			guard := s.svc.Paywall.Guard(contentResource, s.svc.Details)
			api.Handle("/paywall/content/*", guard(s.svc.Content))
		}
	})
	return r
}

// instrument records request latency by matched route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.APIRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}

// contentResource strips the route prefix so paywall patterns match the
// resource path itself.
func contentResource(r *http.Request) string {
	if p := chi.URLParam(r, "*"); p != "" {
		return "/" + strings.TrimLeft(p, "/")
	}
	return strings.TrimPrefix(r.URL.Path, "/v1/paywall/content")
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("API listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// detailsFor returns the configured settlement details for resource.
func (s *Server) detailsFor(resource string) domain.PaymentDetails {
	if s.svc.Details == nil {
		return domain.PaymentDetails{}
	}
	return s.svc.Details(resource)
}
