package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit            TransactionType = "deposit"
	TransactionTypeReferralCommission TransactionType = "referral_commission"
	TransactionTypeReferralBonus      TransactionType = "referral_bonus"
)

// Transaction is an append-only audit record of a balance-affecting event.
// Balance snapshots are taken around the write so that the trail stays
// trustworthy without relying on blind increments.
type Transaction struct {
	ID            uuid.UUID       `db:"id"`
	UserID        string          `db:"user_id"`
	Type          TransactionType `db:"type"`
	Chain         Chain           `db:"chain"`
	TxHash        string          `db:"tx_hash"`
	Token         string          `db:"token"`
	Amount        decimal.Decimal `db:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after"`
	// RelatedUserID links a commission to the depositor that originated it.
	RelatedUserID *string `db:"related_user_id"`
	CreatedAt     time.Time `db:"created_at"`
}
