package bitcoin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/path402/internal/core/domain"
	"github.com/vietddude/path402/internal/infra/rpc/provider"
)

const knownTx = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAdapter(provider.NewHTTPProvider("mock", server.URL+"/v1/bsv/main", 2*time.Second))
}

func TestAdapter_FetchRawTransaction(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/bsv/main/tx/" + knownTx + "/hex":
			_, _ = w.Write([]byte("0100000000\n"))
		default:
			http.NotFound(w, r)
		}
	})

	raw, err := adapter.FetchRawTransaction(context.Background(), strings.ToUpper(knownTx))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(raw) != 5 || raw[0] != 0x01 {
		t.Errorf("unexpected raw bytes: %x", raw)
	}

	missing := strings.Repeat("0", 64)
	if _, err := adapter.FetchRawTransaction(context.Background(), missing); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := adapter.FetchRawTransaction(context.Background(), "nothex"); !errors.Is(err, domain.ErrInvalidProof) {
		t.Errorf("expected ErrInvalidProof for malformed txid, got %v", err)
	}
}

func TestAdapter_Confirmations(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/bsv/main/tx/hash/"+knownTx {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"txid":"` + knownTx + `","confirmations":7}`))
	})

	n, err := adapter.Confirmations(context.Background(), knownTx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7 confirmations, got %d", n)
	}
}
