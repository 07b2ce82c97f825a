package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
)

type TokenRepo struct {
	db *DB
}

func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

func (r *TokenRepo) FindToken(ctx context.Context, chain model.Chain, contractAddress string) (*model.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var t model.Token
	err := r.db.QueryRowContext(ctx, `
		SELECT chain, contract_address, symbol, decimals, created_at, updated_at
		FROM tokens
		WHERE chain = $1 AND contract_address = $2
	`, chain, strings.ToLower(contractAddress)).Scan(
		&t.Chain, &t.ContractAddress, &t.Symbol, &t.Decimals, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find token %s/%s: %w", chain, contractAddress, err)
	}
	return &t, nil
}

func (r *TokenRepo) Upsert(ctx context.Context, t *model.Token) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (chain, contract_address, symbol, decimals)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain, contract_address) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			updated_at = now()
	`, t.Chain, strings.ToLower(t.ContractAddress), t.Symbol, t.Decimals)
	if err != nil {
		return fmt.Errorf("upsert token %s/%s: %w", t.Chain, t.ContractAddress, err)
	}
	return nil
}
