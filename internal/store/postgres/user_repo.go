package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/shopspring/decimal"
)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var u model.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, referrer_id, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.ReferrerID, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}

	if err := r.loadWallets(ctx, &u); err != nil {
		return nil, err
	}
	if err := r.loadBalances(ctx, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListWithWallets enumerates users that own at least one active deposit
// address, wallets and balances populated.
func (r *UserRepo) ListWithWallets(ctx context.Context) ([]model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT u.id, u.email, u.referrer_id, u.created_at
		FROM users u
		JOIN wallet_addresses w ON w.user_id = u.id AND w.is_active
		ORDER BY u.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list users with wallets: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.ReferrerID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range users {
		if err := r.loadWallets(ctx, &users[i]); err != nil {
			return nil, err
		}
		if err := r.loadBalances(ctx, &users[i]); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (r *UserRepo) GetBalance(ctx context.Context, userID, token string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var amount decimal.Decimal
	err := r.db.QueryRowContext(ctx, `
		SELECT amount FROM balances WHERE user_id = $1 AND token = $2
	`, userID, token).Scan(&amount)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("get balance %s/%s: %w", userID, token, err)
	}
	return amount, nil
}

// SetBalance writes a full replacement value for one token.
func (r *UserRepo) SetBalance(ctx context.Context, userID, token string, amount decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO balances (user_id, token, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, token) DO UPDATE SET
			amount = EXCLUDED.amount,
			updated_at = now()
	`, userID, token, amount)
	if err != nil {
		return fmt.Errorf("set balance %s/%s: %w", userID, token, err)
	}
	return nil
}

// Increment adjusts a balance atomically. Kept for paths that do not need
// the read-modify-write verification step.
func (r *UserRepo) Increment(ctx context.Context, userID, token string, delta decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO balances (user_id, token, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, token) DO UPDATE SET
			amount = balances.amount + EXCLUDED.amount,
			updated_at = now()
	`, userID, token, delta)
	if err != nil {
		return fmt.Errorf("increment balance %s/%s: %w", userID, token, err)
	}
	return nil
}

func (r *UserRepo) loadWallets(ctx context.Context, u *model.User) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chain, address
		FROM wallet_addresses
		WHERE user_id = $1 AND is_active
	`, u.ID)
	if err != nil {
		return fmt.Errorf("load wallets for %s: %w", u.ID, err)
	}
	defer rows.Close()

	u.Wallets = make(model.WalletAddressSet)
	for rows.Next() {
		var chain, address string
		if err := rows.Scan(&chain, &address); err != nil {
			return fmt.Errorf("scan wallet: %w", err)
		}
		u.Wallets[model.Chain(chain)] = address
	}
	return rows.Err()
}

func (r *UserRepo) loadBalances(ctx context.Context, u *model.User) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT token, amount FROM balances WHERE user_id = $1
	`, u.ID)
	if err != nil {
		return fmt.Errorf("load balances for %s: %w", u.ID, err)
	}
	defer rows.Close()

	u.Balances = make(map[string]decimal.Decimal)
	for rows.Next() {
		var token string
		var amount decimal.Decimal
		if err := rows.Scan(&token, &amount); err != nil {
			return fmt.Errorf("scan balance: %w", err)
		}
		u.Balances[token] = amount
	}
	return rows.Err()
}
