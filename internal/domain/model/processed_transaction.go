package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcessedTransaction is the durable dedup ledger record. At most one row
// exists per (chain, txHash); rows are never mutated or deleted.
type ProcessedTransaction struct {
	Key         string          `db:"key"` // "{chain}-{txHash}"
	Chain       Chain           `db:"chain"`
	TxHash      string          `db:"tx_hash"`
	UserID      string          `db:"user_id"`
	Token       string          `db:"token"`
	Amount      decimal.Decimal `db:"amount"`
	ProcessedAt time.Time       `db:"processed_at"`
}
