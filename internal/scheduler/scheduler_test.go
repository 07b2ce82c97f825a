package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kodax/deposit-reconciler/internal/alert"
	"github.com/kodax/deposit-reconciler/internal/chain"
	"github.com/kodax/deposit-reconciler/internal/commission"
	"github.com/kodax/deposit-reconciler/internal/credit"
	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/kodax/deposit-reconciler/internal/retry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ethAddr = "0x1111111111111111111111111111111111111111"
	bscAddr = "0x2222222222222222222222222222222222222222"
)

type fakeUsers struct {
	users []model.User
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	for i := range f.users {
		if f.users[i].ID == id {
			return &f.users[i], nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) ListWithWallets(context.Context) ([]model.User, error) {
	return f.users, nil
}

func (f *fakeUsers) GetBalance(context.Context, string, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeUsers) SetBalance(context.Context, string, string, decimal.Decimal) error {
	return nil
}

func (f *fakeUsers) Increment(context.Context, string, string, decimal.Decimal) error {
	return nil
}

type fakeAdapter struct {
	chain model.Chain
	txs   []model.RawTransaction
	err   error

	// blockCh, when set, holds every fetch until the channel is closed.
	blockCh chan struct{}

	mu      sync.Mutex
	fetches int
}

func (f *fakeAdapter) Chain() model.Chain { return f.chain }

func (f *fakeAdapter) FetchTransactions(ctx context.Context, _ string) ([]model.RawTransaction, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.blockCh != nil {
		select {
		case <-f.blockCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.txs, f.err
}

// ruleClassifier treats any transaction sent straight to the target address
// as a native deposit.
type ruleClassifier struct{}

func (ruleClassifier) Classify(_ context.Context, raw model.RawTransaction, target string) *model.Deposit {
	if raw.To != target {
		return nil
	}
	amount, err := decimal.NewFromString(raw.Value)
	if err != nil || !amount.IsPositive() {
		return nil
	}
	return &model.Deposit{
		Chain:    raw.Chain,
		TxHash:   raw.Hash,
		ToAddress: target,
		Token:    raw.Chain.NativeSymbol(),
		Amount:   amount,
	}
}

type fakeLedger struct {
	mu        sync.Mutex
	processed map[string]bool
}

func newFakeLedger(keys ...string) *fakeLedger {
	l := &fakeLedger{processed: map[string]bool{}}
	for _, k := range keys {
		l.processed[k] = true
	}
	return l
}

func (f *fakeLedger) IsProcessed(_ context.Context, chain model.Chain, txHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[model.LedgerKey(chain, txHash)], nil
}

func (f *fakeLedger) Lock(model.Chain, string) func() { return func() {} }

type fakeCrediter struct {
	mu       sync.Mutex
	credited []model.Deposit
	outcome  credit.Outcome
	err      error
}

func (f *fakeCrediter) Credit(_ context.Context, _ string, dep model.Deposit) (credit.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credited = append(f.credited, dep)
	if f.outcome == "" {
		return credit.OutcomeCredited, f.err
	}
	return f.outcome, f.err
}

type fakePayer struct {
	mu   sync.Mutex
	paid []model.Deposit
}

func (f *fakePayer) Pay(_ context.Context, _ string, dep model.Deposit) commission.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid = append(f.paid, dep)
	return commission.Result{Paid: true, Amount: dep.Amount.Mul(decimal.RequireFromString("0.1"))}
}

type fakeCycles struct {
	mu    sync.Mutex
	saved []model.ScanCycle
}

func (f *fakeCycles) Save(_ context.Context, c *model.ScanCycle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *c)
	return nil
}

func (f *fakeCycles) ListRecent(context.Context, int) ([]model.ScanCycle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved, nil
}

type captureAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (c *captureAlerter) Send(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureAlerter) byType(t alert.AlertType) []alert.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []alert.Alert
	for _, a := range c.alerts {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

func nativeTx(chain model.Chain, hash, to, value string) model.RawTransaction {
	return model.RawTransaction{Chain: chain, Hash: hash, To: to, Value: value}
}

type fixture struct {
	sched   *Scheduler
	users   *fakeUsers
	credits *fakeCrediter
	payer   *fakePayer
	cycles  *fakeCycles
	alerter *captureAlerter
	ledger  *fakeLedger
}

func buildScheduler(t *testing.T, adapters map[model.Chain]chain.Adapter, led *fakeLedger) *fixture {
	t.Helper()
	f := &fixture{
		users: &fakeUsers{users: []model.User{{
			ID: "user-1",
			Wallets: model.WalletAddressSet{
				model.ChainEthereum: ethAddr,
				model.ChainBSC:      bscAddr,
			},
		}}},
		credits: &fakeCrediter{},
		payer:   &fakePayer{},
		cycles:  &fakeCycles{},
		alerter: &captureAlerter{},
		ledger:  led,
	}
	f.sched = New(
		Config{FetchTimeout: time.Second, Workers: 4},
		f.users, adapters, ruleClassifier{}, f.ledger, f.credits, f.payer,
		f.cycles, f.alerter, slog.Default(),
	)
	return f
}

func TestScanAll_CreditsAndPaysCommission(t *testing.T) {
	t.Parallel()

	adapters := map[model.Chain]chain.Adapter{
		model.ChainEthereum: &fakeAdapter{chain: model.ChainEthereum, txs: []model.RawTransaction{
			nativeTx(model.ChainEthereum, "0xdep", ethAddr, "2.5"),
			nativeTx(model.ChainEthereum, "0xout", "0x9999999999999999999999999999999999999999", "1"),
		}},
		model.ChainBSC: &fakeAdapter{chain: model.ChainBSC, txs: []model.RawTransaction{
			nativeTx(model.ChainBSC, "0xbnb", bscAddr, "3"),
		}},
	}
	f := buildScheduler(t, adapters, newFakeLedger())

	report, err := f.sched.ScanAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Cycle.UsersScanned)
	assert.Equal(t, 3, report.Cycle.TxSeen)
	assert.Equal(t, 2, report.Cycle.DepositsFound)
	assert.Equal(t, 2, report.Cycle.DepositsCredited)
	assert.Equal(t, 2, report.Cycle.CommissionsPaid)
	assert.Empty(t, report.Cycle.ChainErrors)
	assert.Len(t, f.credits.credited, 2)
	assert.Len(t, f.payer.paid, 2)
	assert.Len(t, f.cycles.saved, 1, "cycle outcome must be persisted")
}

func TestScanAll_OverlappingCycleRejected(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	adapters := map[model.Chain]chain.Adapter{
		model.ChainEthereum: &fakeAdapter{chain: model.ChainEthereum, blockCh: block},
	}
	f := buildScheduler(t, adapters, newFakeLedger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.sched.ScanAll(context.Background(), Options{})
	}()

	// Wait until the first cycle is inside the fetch.
	require.Eventually(t, func() bool {
		f.sched.mu.Lock()
		defer f.sched.mu.Unlock()
		return f.sched.scanning
	}, time.Second, 5*time.Millisecond)

	_, err := f.sched.ScanAll(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(block)
	<-done

	// After the first cycle finishes a new one is accepted.
	_, err = f.sched.ScanAll(context.Background(), Options{})
	assert.NoError(t, err)
}

func TestScanAll_PartialChainFailureIsolated(t *testing.T) {
	t.Parallel()

	adapters := map[model.Chain]chain.Adapter{
		model.ChainEthereum: &fakeAdapter{chain: model.ChainEthereum, err: errors.New("connection refused")},
		model.ChainBSC: &fakeAdapter{chain: model.ChainBSC, txs: []model.RawTransaction{
			nativeTx(model.ChainBSC, "0xbnb", bscAddr, "3"),
		}},
	}
	f := buildScheduler(t, adapters, newFakeLedger())

	report, err := f.sched.ScanAll(context.Background(), Options{})
	require.NoError(t, err, "one failed chain must not abort the cycle")

	require.Len(t, report.Cycle.ChainErrors, 1)
	assert.Equal(t, model.ChainEthereum, report.Cycle.ChainErrors[0].Chain)
	assert.Equal(t, 1, report.Cycle.DepositsCredited, "healthy chain still credits")

	// Transient upstream noise must not page anyone.
	assert.Empty(t, f.alerter.byType(alert.AlertTypeChainDown))
}

func TestScanAll_TerminalFetchErrorAlerts(t *testing.T) {
	t.Parallel()

	adapters := map[model.Chain]chain.Adapter{
		model.ChainEthereum: &fakeAdapter{
			chain: model.ChainEthereum,
			err:   retry.Terminal(errors.New("invalid api key")),
		},
	}
	f := buildScheduler(t, adapters, newFakeLedger())

	_, err := f.sched.ScanAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, f.alerter.byType(alert.AlertTypeChainDown))
}

func TestScanAll_SkipsProcessedDeposits(t *testing.T) {
	t.Parallel()

	adapters := map[model.Chain]chain.Adapter{
		model.ChainEthereum: &fakeAdapter{chain: model.ChainEthereum, txs: []model.RawTransaction{
			nativeTx(model.ChainEthereum, "0xdep", ethAddr, "2.5"),
		}},
	}
	led := newFakeLedger(model.LedgerKey(model.ChainEthereum, "0xdep"))
	f := buildScheduler(t, adapters, led)

	report, err := f.sched.ScanAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Cycle.DepositsFound)
	assert.Equal(t, 1, report.Cycle.DepositsSkipped)
	assert.Zero(t, report.Cycle.DepositsCredited)
	assert.Empty(t, f.credits.credited)
	assert.Empty(t, f.payer.paid)
}

func TestScanAll_DryRunCollectsWithoutCrediting(t *testing.T) {
	t.Parallel()

	adapters := map[model.Chain]chain.Adapter{
		model.ChainEthereum: &fakeAdapter{chain: model.ChainEthereum, txs: []model.RawTransaction{
			nativeTx(model.ChainEthereum, "0xdep", ethAddr, "2.5"),
		}},
	}
	f := buildScheduler(t, adapters, newFakeLedger())

	report, err := f.sched.ScanAll(context.Background(), Options{DryRun: true})
	require.NoError(t, err)

	require.Len(t, report.DryRunDeposits, 1)
	assert.Equal(t, "0xdep", report.DryRunDeposits[0].TxHash)
	assert.True(t, report.Cycle.DryRun)
	assert.Empty(t, f.credits.credited, "dry run must not move money")
	assert.Empty(t, f.payer.paid)
}

func TestScanUser_UnknownUser(t *testing.T) {
	t.Parallel()

	f := buildScheduler(t, map[model.Chain]chain.Adapter{}, newFakeLedger())

	_, err := f.sched.ScanUser(context.Background(), "ghost", Options{})
	require.Error(t, err)
}

func TestScanUser_ScansOnlyThatUser(t *testing.T) {
	t.Parallel()

	eth := &fakeAdapter{chain: model.ChainEthereum, txs: []model.RawTransaction{
		nativeTx(model.ChainEthereum, "0xdep", ethAddr, "1"),
	}}
	adapters := map[model.Chain]chain.Adapter{model.ChainEthereum: eth}
	f := buildScheduler(t, adapters, newFakeLedger())
	f.users.users = append(f.users.users, model.User{
		ID:      "user-2",
		Wallets: model.WalletAddressSet{model.ChainEthereum: "0x3333333333333333333333333333333333333333"},
	})

	report, err := f.sched.ScanUser(context.Background(), "user-1", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Cycle.UsersScanned)
	assert.Equal(t, model.ScanTriggerManual, report.Cycle.Trigger)
	eth.mu.Lock()
	assert.Equal(t, 1, eth.fetches)
	eth.mu.Unlock()
}

func TestScanAll_CreditFailureDoesNotPayCommission(t *testing.T) {
	t.Parallel()

	adapters := map[model.Chain]chain.Adapter{
		model.ChainEthereum: &fakeAdapter{chain: model.ChainEthereum, txs: []model.RawTransaction{
			nativeTx(model.ChainEthereum, "0xdep", ethAddr, "2.5"),
		}},
	}
	f := buildScheduler(t, adapters, newFakeLedger())
	f.credits.outcome = credit.OutcomeFailed
	f.credits.err = errors.New("db down")

	report, err := f.sched.ScanAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.Zero(t, report.Cycle.DepositsCredited)
	assert.Empty(t, f.payer.paid, "commission must never run for an uncredited deposit")
}
