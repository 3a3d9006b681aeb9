package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/path402/internal/core/domain"
)

func TestHTTPProvider_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected method GET, got %s", r.Method)
		}
		switch r.URL.Path {
		case "/tx/abc/hex":
			_, _ = w.Write([]byte("0100"))
		case "/tx/missing/hex":
			http.Error(w, "not found", http.StatusNotFound)
		case "/tx/busy/hex":
			w.Header().Set("Retry-After", "1")
			http.Error(w, "slow down", http.StatusTooManyRequests)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	p := NewHTTPProvider("mock", server.URL+"/", 5*time.Second)

	body, err := p.Get(context.Background(), "/tx/abc/hex")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "0100" {
		t.Errorf("expected body 0100, got %q", body)
	}

	if _, err := p.Get(context.Background(), "/tx/missing/hex"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if !p.GetHealth().Available {
		t.Error("a 404 should not mark the provider unhealthy")
	}

	if _, err := p.Get(context.Background(), "/tx/other/hex"); !errors.Is(err, domain.ErrTransport) {
		t.Errorf("expected ErrTransport for 500, got %v", err)
	}

	if _, err := p.Get(context.Background(), "/tx/busy/hex"); !errors.Is(err, domain.ErrTransport) {
		t.Errorf("expected ErrTransport for 429, got %v", err)
	}
	// Throttled: the next call fails fast without reaching the server.
	if _, err := p.Get(context.Background(), "/tx/abc/hex"); !errors.Is(err, domain.ErrTransport) {
		t.Errorf("expected throttled ErrTransport, got %v", err)
	}
}

func TestHTTPProvider_TimeoutIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	p := NewHTTPProvider("slow", server.URL, 50*time.Millisecond)
	_, err := p.Get(context.Background(), "/tx/abc/hex")
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if errors.Is(err, domain.ErrNotFound) {
		t.Fatal("timeout must not look like not found")
	}
}
