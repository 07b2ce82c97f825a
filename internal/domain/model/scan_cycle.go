package model

import (
	"time"

	"github.com/google/uuid"
)

type ScanTrigger string

const (
	ScanTriggerTimer  ScanTrigger = "timer"
	ScanTriggerManual ScanTrigger = "manual"
)

// ChainError records a per-chain failure inside an otherwise completed cycle.
type ChainError struct {
	Chain   Chain  `json:"chain"`
	Address string `json:"address,omitempty"`
	Error   string `json:"error"`
}

// ScanCycle is the persisted outcome of one reconciliation pass. A cycle with
// partial per-chain failures still completes; the failures ride along in
// ChainErrors instead of aborting the other chains' results.
type ScanCycle struct {
	ID               uuid.UUID    `db:"id" json:"id"`
	Trigger          ScanTrigger  `db:"trigger" json:"trigger"`
	DryRun           bool         `db:"dry_run" json:"dry_run"`
	UsersScanned     int          `db:"users_scanned" json:"users_scanned"`
	TxSeen           int          `db:"tx_seen" json:"tx_seen"`
	DepositsFound    int          `db:"deposits_found" json:"deposits_found"`
	DepositsCredited int          `db:"deposits_credited" json:"deposits_credited"`
	DepositsSkipped  int          `db:"deposits_skipped" json:"deposits_skipped"`
	CommissionsPaid  int          `db:"commissions_paid" json:"commissions_paid"`
	ChainErrors      []ChainError `db:"-" json:"chain_errors,omitempty"`
	StartedAt        time.Time    `db:"started_at" json:"started_at"`
	FinishedAt       time.Time    `db:"finished_at" json:"finished_at"`
}
