package postgres

import (
	"context"
	"fmt"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
)

type LedgerRepo struct {
	db *DB
}

func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

func (r *LedgerRepo) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM processed_transactions WHERE key = $1)
	`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ledger exists %s: %w", key, err)
	}
	return exists, nil
}

// Insert writes the ledger record unless the key is already present.
// ON CONFLICT DO NOTHING makes the first writer win; a duplicate insert is
// success with inserted=false, not an error.
func (r *LedgerRepo) Insert(ctx context.Context, rec *model.ProcessedTransaction) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_transactions (key, chain, tx_hash, user_id, token, amount, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (key) DO NOTHING
	`, rec.Key, rec.Chain, rec.TxHash, rec.UserID, rec.Token, rec.Amount)
	if err != nil {
		return false, fmt.Errorf("ledger insert %s: %w", rec.Key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ledger insert %s: rows affected: %w", rec.Key, err)
	}
	return n > 0, nil
}
