package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletAddressSet maps each chain to the user's single deposit address on
// that chain. Immutable after creation; a wallet reset produces a new set.
type WalletAddressSet map[Chain]string

// User is the slice of the user entity this service reads and mutates:
// identity, referral linkage, deposit addresses, and per-token balances.
type User struct {
	ID         string           `db:"id"`
	Email      string           `db:"email"`
	ReferrerID *string          `db:"referrer_id"`
	Wallets    WalletAddressSet `db:"-"`
	Balances   map[string]decimal.Decimal
	CreatedAt  time.Time `db:"created_at"`
}

// Balance returns the user's balance for a token, zero if never held.
func (u *User) Balance(token string) decimal.Decimal {
	if u.Balances == nil {
		return decimal.Zero
	}
	if amt, ok := u.Balances[token]; ok {
		return amt
	}
	return decimal.Zero
}
