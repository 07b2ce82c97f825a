package store

import (
	"context"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/shopspring/decimal"
)

// UserRepository provides access to user entities, their wallet address sets,
// and their per-token balances.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	// ListWithWallets returns all users that own at least one active deposit
	// address, with wallets and balances populated.
	ListWithWallets(ctx context.Context) ([]model.User, error)
	GetBalance(ctx context.Context, userID, token string) (decimal.Decimal, error)
	// SetBalance replaces the balance for one token with a full value.
	// Creditors use read-modify-write through this, not Increment, so the
	// audit trail's before/after snapshots stay verifiable.
	SetBalance(ctx context.Context, userID, token string, amount decimal.Decimal) error
	// Increment is the store's atomic numeric primitive, available for paths
	// that do not need post-write verification.
	Increment(ctx context.Context, userID, token string, delta decimal.Decimal) error
}

// LedgerRepository is the durable dedup ledger: append-only, at most one row
// per (chain, txHash).
type LedgerRepository interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Insert writes the record if the key is absent. Returns false with a
	// nil error when the key already exists (first-writer-wins).
	Insert(ctx context.Context, rec *model.ProcessedTransaction) (bool, error)
}

// TransactionRepository appends audit records. Records are never mutated.
type TransactionRepository interface {
	Append(ctx context.Context, t *model.Transaction) error
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
}

// TokenRepository provides read access to registry entries kept in the store.
type TokenRepository interface {
	FindToken(ctx context.Context, chain model.Chain, contractAddress string) (*model.Token, error)
	Upsert(ctx context.Context, t *model.Token) error
}

// NotificationRepository creates user-facing notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
}

// ScanCycleRepository persists reconciliation cycle outcomes for operators.
type ScanCycleRepository interface {
	Save(ctx context.Context, c *model.ScanCycle) error
	ListRecent(ctx context.Context, limit int) ([]model.ScanCycle, error)
}
