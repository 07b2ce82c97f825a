package chain

import (
	"context"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
)

// Adapter abstracts chain-specific explorer access so the scheduler operates
// chain-agnostically.
type Adapter interface {
	// Chain returns the chain this adapter serves.
	Chain() model.Chain

	// FetchTransactions returns the transaction history for one address,
	// newest-first. An address with no history is an empty, non-error
	// result; upstream failures are returned as errors and the caller
	// decides the fail-open policy for the cycle.
	FetchTransactions(ctx context.Context, address string) ([]model.RawTransaction, error)
}
