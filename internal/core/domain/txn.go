package domain

import "time"

// TxType is the kind of ledger mutation recorded.
type TxType string

const (
	TxTypeMint     TxType = "mint"
	TxTypeTransfer TxType = "transfer"
	TxTypeServe    TxType = "serve"
	TxTypeStake    TxType = "stake"
)

// TxRecord is an append-only ledger entry. Mints carry no source holder.
type TxRecord struct {
	ID            string    `json:"id"             db:"id"`
	Type          TxType    `json:"type"           db:"tx_type"`
	TokenAddress  string    `json:"token_address"  db:"token_address"`
	FromHandle    string    `json:"from_handle"    db:"from_handle"`
	ToHandle      string    `json:"to_handle"      db:"to_handle"`
	Amount        int64     `json:"amount"         db:"amount"`
	UnitPrice     int64     `json:"unit_price"     db:"unit_price"`
	TotalPrice    int64     `json:"total_price"    db:"total_price"`
	SettlementRef string    `json:"settlement_ref" db:"settlement_ref"`
	CreatedAt     time.Time `json:"created_at"     db:"created_at"`
}

// MintResult is returned by a successful mint.
type MintResult struct {
	Account    Account  `json:"account"`
	Token      Token    `json:"token"`
	NewBalance int64    `json:"new_balance"`
	UnitPrice  int64    `json:"unit_price"`
	Record     TxRecord `json:"record"`
}
