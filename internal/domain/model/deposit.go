package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTransaction is a chain-specific record as returned by an explorer API.
// It is ephemeral: fetched, classified, and discarded within one scan cycle.
type RawTransaction struct {
	Chain         Chain
	Hash          string
	From          string
	To            string
	Value         string // raw integer in the chain's smallest unit
	Input         string // calldata for EVM contract calls, "0x" or empty otherwise
	BlockTime     *time.Time
	Confirmations int64
}

// Deposit is a classified inbound transfer to a user-owned address. It exists
// only in memory until it is either discarded or turned into ledger and
// balance writes.
type Deposit struct {
	Chain       Chain
	TxHash      string
	FromAddress string
	ToAddress   string
	Token       string
	Amount      decimal.Decimal
	UserID      string
}

// LedgerKey returns the dedup ledger key for this deposit.
func (d Deposit) LedgerKey() string {
	return LedgerKey(d.Chain, d.TxHash)
}

// LedgerKey builds the "{chain}-{txHash}" dedup key shared by the ledger
// table, the redis hot cache, and the per-transaction locks.
func LedgerKey(chain Chain, txHash string) string {
	return string(chain) + "-" + txHash
}
