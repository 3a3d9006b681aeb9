package domain

import (
	"strings"
	"time"
)

// Account is a holder identity on the ledger.
type Account struct {
	Handle      string    `json:"handle"       db:"handle"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
	LastSeenAt  time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// Balance is a holder's position in one token.
type Balance struct {
	Handle        string    `json:"handle"         db:"handle"`
	TokenAddress  string    `json:"token_address"  db:"token_address"`
	Balance       int64     `json:"balance"        db:"balance"`
	TotalAcquired int64     `json:"total_acquired" db:"total_acquired"`
	TotalSpent    int64     `json:"total_spent"    db:"total_spent"`
	AvgCost       int64     `json:"avg_cost"       db:"avg_cost"`
	UpdatedAt     time.Time `json:"updated_at"     db:"updated_at"`
}

// OwnedToken is a balance joined with its token.
type OwnedToken struct {
	Balance Balance `json:"balance"`
	Token   Token   `json:"token"`
}

// NormalizeHandle lowercases a holder handle and strips a leading $ or @.
func NormalizeHandle(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimLeft(h, "$@")
	return strings.ToLower(h)
}
