package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/metrics"
)

// maxBodySize caps a single response. Large data-carrier transactions fit well within it.
const maxBodySize = 32 << 20

// HTTPProvider implements Provider for REST APIs over HTTP. Every call is
// bounded by the client timeout; timeouts and network errors surface as
// domain.ErrTransport and a 404 as domain.ErrNotFound.
type HTTPProvider struct {
	name       string
	endpoint   string
	httpClient *http.Client

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int
}

// NewHTTPProvider creates a new HTTP-based REST provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		name:     name,
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
	}
}

// Get fetches endpoint+path and returns the body of a 200 response.
func (p *HTTPProvider) Get(ctx context.Context, path string) ([]byte, error) {
	if wait := p.throttledFor(); wait > 0 {
		return nil, fmt.Errorf("%w: provider %s throttled for %s", domain.ErrTransport, p.name, wait)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrTransport, p.name, path, classify(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransport, classify(err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		latency := time.Since(start)
		metrics.ProofFetchLatency.WithLabelValues(p.name).Observe(latency.Seconds())
		p.recordSuccess(latency)
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		// The endpoint answered; absence is not a provider failure.
		p.recordSuccess(time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", p.name, path, domain.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		p.recordThrottle(resp.Header.Get("Retry-After"))
		p.recordFailure()
		return nil, fmt.Errorf("%w: rate limited (429)", domain.ErrTransport)
	default:
		p.recordFailure()
		return nil, fmt.Errorf("%w: http %d: %s", domain.ErrTransport, resp.StatusCode, truncate(body, 200))
	}
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("timeout: %w", err)
	}
	return err
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// GetName returns the provider's name.
func (p *HTTPProvider) GetName() string {
	return p.name
}

// GetHealth returns the provider's health status.
func (p *HTTPProvider) GetHealth() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *HTTPProvider) throttledFor() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Until(p.health.RetryAfter)
}

func (p *HTTPProvider) recordThrottle(retryAfter string) {
	wait := 5 * time.Second
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		wait = time.Duration(secs) * time.Second
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.health.RetryAfter = time.Now().Add(wait)
}

func (p *HTTPProvider) recordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successCount++
	p.requestCount++
	p.totalLatency += latency
	p.health.LastSuccessAt = time.Now()
	p.health.Available = true

	if p.requestCount > 0 {
		p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	}
	if p.successCount > 0 {
		p.health.Latency = p.totalLatency / time.Duration(p.successCount)
	}
}

func (p *HTTPProvider) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.requestCount++
	p.health.LastFailureAt = time.Now()

	if p.requestCount > 0 {
		p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	}

	if p.health.ErrorRate > 0.5 {
		p.health.Available = false
	}
}
