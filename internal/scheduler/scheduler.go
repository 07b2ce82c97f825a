package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kodax/deposit-reconciler/internal/alert"
	"github.com/kodax/deposit-reconciler/internal/chain"
	"github.com/kodax/deposit-reconciler/internal/commission"
	"github.com/kodax/deposit-reconciler/internal/credit"
	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/kodax/deposit-reconciler/internal/metrics"
	"github.com/kodax/deposit-reconciler/internal/retry"
	"github.com/kodax/deposit-reconciler/internal/store"
	"github.com/kodax/deposit-reconciler/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Classifier decides whether a raw transaction is a deposit to an address.
type Classifier interface {
	Classify(ctx context.Context, raw model.RawTransaction, targetAddress string) *model.Deposit
}

// Ledger is the dedup surface the scheduler needs: the processed check and
// the per-transaction lock that serializes check→credit→mark.
type Ledger interface {
	IsProcessed(ctx context.Context, chain model.Chain, txHash string) (bool, error)
	Lock(chain model.Chain, txHash string) func()
}

// Crediter applies one deposit to a user balance.
type Crediter interface {
	Credit(ctx context.Context, userID string, dep model.Deposit) (credit.Outcome, error)
}

// CommissionPayer pays the referral side effect, best-effort.
type CommissionPayer interface {
	Pay(ctx context.Context, depositorID string, dep model.Deposit) commission.Result
}

// Options controls an on-demand scan.
type Options struct {
	// DryRun classifies and dedup-checks but skips crediting and
	// commissions, reporting what would be credited.
	DryRun bool
}

// Report is the outcome of one cycle, plus the would-be deposits of a dry
// run.
type Report struct {
	Cycle          model.ScanCycle
	DryRunDeposits []model.Deposit
}

// Config bundles scheduler tuning.
type Config struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Workers      int
}

// Scheduler drives the reconciliation pipeline. Cycle state is owned by the
// instance, never global, so schedulers in tests do not share hidden state.
type Scheduler struct {
	cfg      Config
	users    store.UserRepository
	adapters map[model.Chain]chain.Adapter
	class    Classifier
	ledger   Ledger
	credits  Crediter
	comms    CommissionPayer
	cycles   store.ScanCycleRepository
	alerter  alert.Alerter
	logger   *slog.Logger

	mu       sync.Mutex
	scanning bool
}

func New(
	cfg Config,
	users store.UserRepository,
	adapters map[model.Chain]chain.Adapter,
	class Classifier,
	led Ledger,
	credits Crediter,
	comms CommissionPayer,
	cycles store.ScanCycleRepository,
	alerter alert.Alerter,
	logger *slog.Logger,
) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Scheduler{
		cfg:      cfg,
		users:    users,
		adapters: adapters,
		class:    class,
		ledger:   led,
		credits:  credits,
		comms:    comms,
		cycles:   cycles,
		alerter:  alerter,
		logger:   logger.With("component", "scheduler"),
	}
}

// Run drives timer-triggered cycles until ctx is cancelled. A tick that
// fires while a cycle is still scanning is dropped, not queued, to bound
// resource usage against slow upstream explorers.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		s.cfg.Interval = 5 * time.Minute
	}

	s.logger.Info("scheduler started", "interval", s.cfg.Interval, "workers", s.cfg.Workers)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.scan(ctx, model.ScanTriggerTimer, "", Options{}); err != nil {
				s.logger.Warn("timer cycle failed", "error", err)
			}
		}
	}
}

// ScanAll runs one on-demand cycle over every user.
func (s *Scheduler) ScanAll(ctx context.Context, opts Options) (*Report, error) {
	return s.scan(ctx, model.ScanTriggerManual, "", opts)
}

// ScanUser runs one on-demand cycle for a single user.
func (s *Scheduler) ScanUser(ctx context.Context, userID string, opts Options) (*Report, error) {
	return s.scan(ctx, model.ScanTriggerManual, userID, opts)
}

// ErrCycleInProgress is returned when a scan is requested while one runs.
var ErrCycleInProgress = fmt.Errorf("reconciliation cycle already in progress")

func (s *Scheduler) scan(ctx context.Context, trigger model.ScanTrigger, userID string, opts Options) (*Report, error) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		metrics.CyclesSkipped.Inc()
		s.logger.Warn("cycle skipped, previous cycle still scanning", "trigger", trigger)
		return nil, ErrCycleInProgress
	}
	s.scanning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	metrics.CyclesStarted.WithLabelValues(string(trigger)).Inc()
	start := time.Now()

	tracer := tracing.Tracer("reconciler/scheduler")
	ctx, span := tracer.Start(ctx, "reconcile.cycle")
	span.SetAttributes(
		attribute.String("trigger", string(trigger)),
		attribute.Bool("dry_run", opts.DryRun),
	)
	defer span.End()

	users, err := s.loadUsers(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Cycle: model.ScanCycle{
			Trigger:   trigger,
			DryRun:    opts.DryRun,
			StartedAt: start,
		},
	}
	report.Cycle.UsersScanned = len(users)

	var reportMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i := range users {
		user := users[i]
		for ch, address := range user.Wallets {
			adapter, ok := s.adapters[ch]
			if !ok {
				continue
			}
			g.Go(func() error {
				s.scanAddress(gctx, adapter, user, address, opts, report, &reportMu)
				return nil
			})
		}
	}

	// Workers never return errors; per-chain failures are attached to the
	// report so one dead chain cannot abort the others.
	_ = g.Wait()

	report.Cycle.FinishedAt = time.Now()
	metrics.CycleDuration.Observe(report.Cycle.FinishedAt.Sub(start).Seconds())

	if s.cycles != nil {
		if err := s.cycles.Save(ctx, &report.Cycle); err != nil {
			s.logger.Warn("failed to persist cycle outcome", "error", err)
		}
	}

	s.logger.Info("cycle completed",
		"trigger", trigger,
		"dry_run", opts.DryRun,
		"users", report.Cycle.UsersScanned,
		"tx_seen", report.Cycle.TxSeen,
		"deposits_found", report.Cycle.DepositsFound,
		"credited", report.Cycle.DepositsCredited,
		"skipped", report.Cycle.DepositsSkipped,
		"commissions", report.Cycle.CommissionsPaid,
		"chain_errors", len(report.Cycle.ChainErrors),
		"elapsed", report.Cycle.FinishedAt.Sub(start).String(),
	)
	return report, nil
}

func (s *Scheduler) loadUsers(ctx context.Context, userID string) ([]model.User, error) {
	if userID != "" {
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("find user %s: %w", userID, err)
		}
		if user == nil {
			return nil, fmt.Errorf("user %s not found", userID)
		}
		return []model.User{*user}, nil
	}
	users, err := s.users.ListWithWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// scanAddress fetches one (chain, address) history and runs every candidate
// transaction through classify→check→credit→commission. Fetch failures are
// fail-open: logged, attached to the report, retried next cycle.
func (s *Scheduler) scanAddress(
	ctx context.Context,
	adapter chain.Adapter,
	user model.User,
	address string,
	opts Options,
	report *Report,
	reportMu *sync.Mutex,
) {
	ch := adapter.Chain()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	fetchStart := time.Now()
	txs, err := adapter.FetchTransactions(fetchCtx, address)
	cancel()
	metrics.FetchLatency.WithLabelValues(string(ch)).Observe(time.Since(fetchStart).Seconds())

	if err != nil {
		decision := retry.Classify(err)
		metrics.FetchesTotal.WithLabelValues(string(ch), "error").Inc()
		metrics.FetchErrors.WithLabelValues(string(ch), string(decision.Class)).Inc()
		s.logger.Warn("fetch failed",
			"chain", ch, "address", address, "class", decision.Class, "error", err)
		if s.alerter != nil && !decision.IsTransient() {
			_ = s.alerter.Send(ctx, alert.Alert{
				Type:    alert.AlertTypeChainDown,
				Chain:   string(ch),
				Title:   "explorer fetch failing with terminal error",
				Message: err.Error(),
			})
		}
		reportMu.Lock()
		report.Cycle.ChainErrors = append(report.Cycle.ChainErrors, model.ChainError{
			Chain:   ch,
			Address: address,
			Error:   err.Error(),
		})
		reportMu.Unlock()
		return
	}
	metrics.FetchesTotal.WithLabelValues(string(ch), "ok").Inc()

	reportMu.Lock()
	report.Cycle.TxSeen += len(txs)
	reportMu.Unlock()

	for _, raw := range txs {
		dep := s.class.Classify(ctx, raw, address)
		if dep == nil {
			continue
		}
		dep.UserID = user.ID
		s.processDeposit(ctx, *dep, opts, report, reportMu)
	}
}

// processDeposit runs the serialized check→credit→mark sequence for one
// deposit, then the commission side effect outside the lock.
func (s *Scheduler) processDeposit(
	ctx context.Context,
	dep model.Deposit,
	opts Options,
	report *Report,
	reportMu *sync.Mutex,
) {
	reportMu.Lock()
	report.Cycle.DepositsFound++
	reportMu.Unlock()

	unlock := s.ledger.Lock(dep.Chain, dep.TxHash)

	processed, err := s.ledger.IsProcessed(ctx, dep.Chain, dep.TxHash)
	if err != nil {
		unlock()
		s.logger.Warn("ledger check failed",
			"chain", dep.Chain, "tx_hash", dep.TxHash, "error", err)
		return
	}
	if processed {
		unlock()
		reportMu.Lock()
		report.Cycle.DepositsSkipped++
		reportMu.Unlock()
		return
	}

	if opts.DryRun {
		unlock()
		reportMu.Lock()
		report.DryRunDeposits = append(report.DryRunDeposits, dep)
		reportMu.Unlock()
		return
	}

	outcome, err := s.credits.Credit(ctx, dep.UserID, dep)
	unlock()

	switch outcome {
	case credit.OutcomeCredited:
		reportMu.Lock()
		report.Cycle.DepositsCredited++
		reportMu.Unlock()
	case credit.OutcomeSkipped:
		reportMu.Lock()
		report.Cycle.DepositsSkipped++
		reportMu.Unlock()
		return
	default:
		s.logger.Warn("credit failed",
			"user_id", dep.UserID, "chain", dep.Chain, "tx_hash", dep.TxHash, "error", err)
		return
	}

	// Commission only after the deposit is durably credited and marked.
	if s.comms != nil {
		res := s.comms.Pay(ctx, dep.UserID, dep)
		if res.Paid {
			reportMu.Lock()
			report.Cycle.CommissionsPaid++
			reportMu.Unlock()
		}
	}
}
