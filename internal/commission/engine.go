package commission

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/kodax/deposit-reconciler/internal/metrics"
	"github.com/kodax/deposit-reconciler/internal/store"
	"github.com/shopspring/decimal"
)

// Result is the best-effort outcome of a commission attempt, kept distinct
// from the deposit's own result so callers can tell "deposit credited,
// commission failed" from "deposit failed".
type Result struct {
	Paid       bool
	ReferrerID string
	Amount     decimal.Decimal
	Err        error
}

// Engine pays referral commissions. It runs only after the deposit is
// durably credited and ledger-marked; a commission failure never blocks or
// reverses the deposit, and failed commissions are not retried.
type Engine struct {
	users         store.UserRepository
	txns          store.TransactionRepository
	notifications store.NotificationRepository
	rate          decimal.Decimal
	logger        *slog.Logger
}

func NewEngine(
	users store.UserRepository,
	txns store.TransactionRepository,
	notifications store.NotificationRepository,
	rate decimal.Decimal,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		users:         users,
		txns:          txns,
		notifications: notifications,
		rate:          rate,
		logger:        logger.With("component", "commission"),
	}
}

// Pay credits the depositor's referrer with rate × amount in the deposit's
// token. A depositor without a referrer is a no-op, not an error.
func (e *Engine) Pay(ctx context.Context, depositorID string, dep model.Deposit) Result {
	depositor, err := e.users.FindByID(ctx, depositorID)
	if err != nil {
		return e.failed(dep, fmt.Errorf("find depositor %s: %w", depositorID, err))
	}
	if depositor == nil || depositor.ReferrerID == nil || *depositor.ReferrerID == "" {
		return Result{}
	}
	referrerID := *depositor.ReferrerID

	referrer, err := e.users.FindByID(ctx, referrerID)
	if err != nil {
		return e.failed(dep, fmt.Errorf("find referrer %s: %w", referrerID, err))
	}
	if referrer == nil {
		return e.failed(dep, fmt.Errorf("referrer %s not found", referrerID))
	}

	amount := dep.Amount.Mul(e.rate)
	if !amount.IsPositive() {
		return Result{}
	}

	before, err := e.users.GetBalance(ctx, referrerID, dep.Token)
	if err != nil {
		return e.failed(dep, fmt.Errorf("read referrer balance: %w", err))
	}
	after := before.Add(amount)

	if err := e.txns.Append(ctx, &model.Transaction{
		UserID:        referrerID,
		Type:          model.TransactionTypeReferralCommission,
		Chain:         dep.Chain,
		TxHash:        dep.TxHash,
		Token:         dep.Token,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		RelatedUserID: &depositorID,
	}); err != nil {
		return e.failed(dep, fmt.Errorf("append commission audit record: %w", err))
	}

	if err := e.users.SetBalance(ctx, referrerID, dep.Token, after); err != nil {
		return e.failed(dep, fmt.Errorf("write referrer balance: %w", err))
	}

	e.notify(ctx, referrerID, dep, amount)

	metrics.CommissionsPaid.WithLabelValues(dep.Token).Inc()
	e.logger.Info("commission paid",
		"referrer_id", referrerID,
		"depositor_id", depositorID,
		"token", dep.Token,
		"deposit_amount", dep.Amount,
		"commission", amount,
	)
	return Result{Paid: true, ReferrerID: referrerID, Amount: amount}
}

// notify creates the referrer's notification, fire-and-forget.
func (e *Engine) notify(ctx context.Context, referrerID string, dep model.Deposit, amount decimal.Decimal) {
	if e.notifications == nil {
		return
	}
	err := e.notifications.Create(ctx, &model.Notification{
		UserID:  referrerID,
		Type:    model.NotificationTypeCommission,
		Title:   "Referral commission received",
		Message: fmt.Sprintf("You earned %s %s from a referral deposit of %s %s", amount, dep.Token, dep.Amount, dep.Token),
	})
	if err != nil {
		e.logger.Warn("commission notification failed",
			"referrer_id", referrerID, "error", err)
	}
}

func (e *Engine) failed(dep model.Deposit, err error) Result {
	metrics.CommissionsFailed.Inc()
	e.logger.Warn("commission failed",
		"chain", dep.Chain, "tx_hash", dep.TxHash, "error", err)
	return Result{Err: err}
}
