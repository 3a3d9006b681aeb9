package paywall

import (
	"log/slog"
	"net/http"

	"github.com/vietddude/path402/internal/core/domain"
)

// DetailsFunc supplies settlement instructions for a resource.
type DetailsFunc func(resource string) domain.PaymentDetails

// ResourceFunc maps a request to the resource it accesses.
type ResourceFunc func(r *http.Request) string

// Guard returns middleware that admits requests carrying a valid access token
// or unredeemed receipt, serves unpriced resources freely and answers
// everything else with a 402 challenge.
func (m *Manager) Guard(resourceOf ResourceFunc, details DetailsFunc) func(http.Handler) http.Handler {
	if resourceOf == nil {
		resourceOf = func(r *http.Request) string { return r.URL.Path }
	}
	if details == nil {
		details = func(string) domain.PaymentDetails { return domain.PaymentDetails{} }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resource := resourceOf(r)

			if cred, ok := ParseAuthorization(r.Header.Get("Authorization")); ok {
				switch cred.Scheme {
				case SchemeToken:
					if m.ValidateToken(r.Context(), cred.Value, resource) {
						next.ServeHTTP(w, r)
						return
					}
				case SchemeReceipt:
					granted, err := m.RedeemReceipt(r.Context(), cred.Value, resource)
					if err != nil {
						slog.Error("Failed to redeem receipt", "resource", resource, "error", err)
					}
					if granted {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			if _, _, priced := m.ResourcePrice(resource); !priced {
				next.ServeHTTP(w, r)
				return
			}

			challenge, err := m.BuildChallengeResponse(r.Context(), resource, details(resource))
			if err != nil {
				slog.Error("Failed to build payment challenge", "resource", resource, "error", err)
				http.Error(w, "payment challenge unavailable", http.StatusInternalServerError)
				return
			}
			challenge.Write(w)
		})
	}
}
