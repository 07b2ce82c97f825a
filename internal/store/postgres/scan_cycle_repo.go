package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kodax/deposit-reconciler/internal/domain/model"
)

type ScanCycleRepo struct {
	db *DB
}

func NewScanCycleRepo(db *DB) *ScanCycleRepo {
	return &ScanCycleRepo{db: db}
}

func (r *ScanCycleRepo) Save(ctx context.Context, c *model.ScanCycle) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}

	chainErrors, err := json.Marshal(c.ChainErrors)
	if err != nil {
		return fmt.Errorf("marshal chain errors: %w", err)
	}
	if c.ChainErrors == nil {
		chainErrors = []byte("[]")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scan_cycles
			(id, trigger, dry_run, users_scanned, tx_seen, deposits_found,
			 deposits_credited, deposits_skipped, commissions_paid, chain_errors,
			 started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, c.ID, c.Trigger, c.DryRun, c.UsersScanned, c.TxSeen, c.DepositsFound,
		c.DepositsCredited, c.DepositsSkipped, c.CommissionsPaid, chainErrors,
		c.StartedAt, c.FinishedAt)
	if err != nil {
		return fmt.Errorf("save scan cycle %s: %w", c.ID, err)
	}
	return nil
}

func (r *ScanCycleRepo) ListRecent(ctx context.Context, limit int) ([]model.ScanCycle, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trigger, dry_run, users_scanned, tx_seen, deposits_found,
			   deposits_credited, deposits_skipped, commissions_paid, chain_errors,
			   started_at, finished_at
		FROM scan_cycles
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scan cycles: %w", err)
	}
	defer rows.Close()

	var out []model.ScanCycle
	for rows.Next() {
		var c model.ScanCycle
		var chainErrors []byte
		if err := rows.Scan(
			&c.ID, &c.Trigger, &c.DryRun, &c.UsersScanned, &c.TxSeen, &c.DepositsFound,
			&c.DepositsCredited, &c.DepositsSkipped, &c.CommissionsPaid, &chainErrors,
			&c.StartedAt, &c.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cycle row: %w", err)
		}
		if len(chainErrors) > 0 {
			if err := json.Unmarshal(chainErrors, &c.ChainErrors); err != nil {
				return nil, fmt.Errorf("unmarshal chain errors: %w", err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
