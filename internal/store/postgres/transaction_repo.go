package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kodax/deposit-reconciler/internal/domain/model"
)

type TransactionRepo struct {
	db *DB
}

func NewTransactionRepo(db *DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// Append writes one audit record. The table is append-only; there is no
// update or delete path.
func (r *TransactionRepo) Append(ctx context.Context, t *model.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions
			(id, user_id, type, chain, tx_hash, token, amount, balance_before, balance_after, related_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
	`, t.ID, t.UserID, t.Type, t.Chain, t.TxHash, t.Token, t.Amount, t.BalanceBefore, t.BalanceAfter, t.RelatedUserID)
	if err != nil {
		return fmt.Errorf("append transaction %s: %w", t.ID, err)
	}
	return nil
}

func (r *TransactionRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, chain, tx_hash, token, amount, balance_before, balance_after, related_user_id, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Type, &t.Chain, &t.TxHash, &t.Token,
			&t.Amount, &t.BalanceBefore, &t.BalanceAfter, &t.RelatedUserID, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
