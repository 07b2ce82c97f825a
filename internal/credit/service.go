package credit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kodax/deposit-reconciler/internal/alert"
	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/kodax/deposit-reconciler/internal/ledger"
	"github.com/kodax/deposit-reconciler/internal/metrics"
	"github.com/kodax/deposit-reconciler/internal/store"
	"github.com/shopspring/decimal"
)

// Outcome is the result of a credit attempt.
type Outcome string

const (
	OutcomeCredited Outcome = "credited"
	OutcomeSkipped  Outcome = "skipped" // already processed, a normal result
	OutcomeFailed   Outcome = "failed"
)

// verifyEpsilon bounds the tolerated divergence between the written balance
// and the verifying re-read. Amounts are exact decimals, so anything above
// this means a concurrent writer clobbered the value.
var verifyEpsilon = decimal.New(1, -9)

// Service applies a validated deposit to a user's balance exactly once and
// leaves an audit trail around the write.
type Service struct {
	users   store.UserRepository
	txns    store.TransactionRepository
	ledger  *ledger.Ledger
	alerter alert.Alerter
	logger  *slog.Logger
}

func NewService(
	users store.UserRepository,
	txns store.TransactionRepository,
	led *ledger.Ledger,
	alerter alert.Alerter,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:   users,
		txns:    txns,
		ledger:  led,
		alerter: alerter,
		logger:  logger.With("component", "credit"),
	}
}

// Credit runs the crediting sequence for one deposit. Each step is a
// precondition for the next:
//
//	re-check ledger → read balance → compute → append audit → write balance
//	→ mark ledger → verify re-read
//
// The audit record is written before the balance so a failure between the
// two leaves a forensic trail instead of silent money movement. A failure
// after the audit write is an inconsistency for manual reconciliation; there
// is no automatic rollback.
func (s *Service) Credit(ctx context.Context, userID string, dep model.Deposit) (Outcome, error) {
	// Defense in depth: the scheduler checks before calling, but this
	// service is callable on its own.
	processed, err := s.ledger.IsProcessed(ctx, dep.Chain, dep.TxHash)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("ledger check: %w", err)
	}
	if processed {
		metrics.DepositsSkipped.WithLabelValues(string(dep.Chain)).Inc()
		return OutcomeSkipped, nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("find user %s: %w", userID, err)
	}
	if user == nil {
		return OutcomeFailed, fmt.Errorf("user %s not found", userID)
	}

	current, err := s.users.GetBalance(ctx, userID, dep.Token)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("read balance: %w", err)
	}
	newBalance := current.Add(dep.Amount)

	if err := s.txns.Append(ctx, &model.Transaction{
		UserID:        userID,
		Type:          model.TransactionTypeDeposit,
		Chain:         dep.Chain,
		TxHash:        dep.TxHash,
		Token:         dep.Token,
		Amount:        dep.Amount,
		BalanceBefore: current,
		BalanceAfter:  newBalance,
	}); err != nil {
		return OutcomeFailed, fmt.Errorf("append audit record: %w", err)
	}

	// From here on the audit record exists; any failure is an
	// inconsistency to surface, not a clean abort.
	if err := s.users.SetBalance(ctx, userID, dep.Token, newBalance); err != nil {
		s.reportInconsistency(ctx, dep, userID, "balance write failed after audit record", err)
		return OutcomeFailed, fmt.Errorf("write balance: %w", err)
	}

	if err := s.ledger.MarkProcessed(ctx, dep.Chain, dep.TxHash, ledger.Metadata{
		UserID: userID,
		Token:  dep.Token,
		Amount: dep.Amount,
	}); err != nil {
		// The credit landed but the mark did not: the one at-least-once
		// window in the design. Next cycle may replay this deposit.
		s.reportInconsistency(ctx, dep, userID, "ledger mark failed after credit", err)
		return OutcomeFailed, fmt.Errorf("mark ledger: %w", err)
	}

	s.verify(ctx, userID, dep, newBalance)

	metrics.DepositsCredited.WithLabelValues(string(dep.Chain), dep.Token).Inc()
	s.logger.Info("deposit credited",
		"user_id", userID,
		"chain", dep.Chain,
		"tx_hash", dep.TxHash,
		"token", dep.Token,
		"amount", dep.Amount,
		"balance_after", newBalance,
	)
	return OutcomeCredited, nil
}

// verify re-reads the balance and compares against the expected value. A
// divergence beyond epsilon means a concurrent writer interleaved on the
// same user/token; logged as a warning, never fatal.
func (s *Service) verify(ctx context.Context, userID string, dep model.Deposit, expected decimal.Decimal) {
	actual, err := s.users.GetBalance(ctx, userID, dep.Token)
	if err != nil {
		s.logger.Warn("verification read failed",
			"user_id", userID, "token", dep.Token, "error", err)
		return
	}
	if actual.Sub(expected).Abs().GreaterThan(verifyEpsilon) {
		metrics.CreditInconsistencies.Inc()
		s.logger.Warn("balance verification mismatch",
			"user_id", userID,
			"token", dep.Token,
			"expected", expected,
			"actual", actual,
			"chain", dep.Chain,
			"tx_hash", dep.TxHash,
		)
	}
}

func (s *Service) reportInconsistency(ctx context.Context, dep model.Deposit, userID, title string, cause error) {
	metrics.CreditInconsistencies.Inc()
	if s.alerter == nil {
		return
	}
	_ = s.alerter.Send(ctx, alert.Alert{
		Type:    alert.AlertTypeCreditInconsistency,
		Chain:   string(dep.Chain),
		Title:   title,
		Message: cause.Error(),
		Fields: map[string]string{
			"user_id": userID,
			"tx_hash": dep.TxHash,
			"token":   dep.Token,
			"amount":  dep.Amount.String(),
		},
	})
}
