package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultly/vaultly/internal/account"
	"github.com/vaultly/vaultly/internal/chain"
	"github.com/vaultly/vaultly/internal/ledger"
	"github.com/vaultly/vaultly/internal/limits"
	"github.com/vaultly/vaultly/internal/logging"
	"github.com/vaultly/vaultly/internal/notification"
	"github.com/vaultly/vaultly/pkg/retrier"
)

const (
	testWallet       = "0x1111111111111111111111111111111111111111"
	testCounterparty = "0x3333333333333333333333333333333333333333"
)

type capturingNotifier struct {
	messages []notification.Message
}

func (n *capturingNotifier) Send(_ context.Context, msg notification.Message) error {
	n.messages = append(n.messages, msg)
	return nil
}

type fixture struct {
	orch     *Orchestrator
	sim      *chain.Simulator
	rec      ledger.Reconciler
	notifier *capturingNotifier
	acctID   string
}

func testPolicy() limits.Policy {
	return limits.Policy{
		Rules: map[ledger.OperationKind]limits.Rule{
			ledger.KindDeposit:  {Min: 1, Max: 100_000_000_000, DailyCap: 100_000_000_000},
			ledger.KindWithdraw: {Min: 1, Max: 50_000_000_000, DailyCap: 50_000_000_000},
			ledger.KindSend:     {Min: 1, Max: 25_000_000_000, DailyCap: 25_000_000_000},
		},
		KycThresholdAmount: 1_000_000_000,
	}
}

func newFixture(t *testing.T, kyc account.KycStatus) *fixture {
	t.Helper()
	accounts := account.NewMemoryRepository()
	acct := account.Account{
		ID:                uuid.NewString(),
		OwnerID:           uuid.NewString(),
		WalletAddress:     testWallet,
		ControllerAddress: "0x2222222222222222222222222222222222222222",
		KycStatus:         kyc,
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, accounts.Create(context.Background(), acct))

	sim := chain.NewSimulator()
	rec := ledger.NewInMemory(logging.Discard())
	notifier := &capturingNotifier{}
	retry := retrier.New(retrier.WithMaxAttempts(3), retrier.WithInitialInterval(time.Millisecond))
	orch := NewOrchestrator(accounts, rec, sim, testPolicy(), retry, 5*time.Second, notifier, logging.Discard())

	return &fixture{orch: orch, sim: sim, rec: rec, notifier: notifier, acctID: acct.ID}
}

func TestSubmitDepositConfirms(t *testing.T) {
	f := newFixture(t, account.KycApproved)
	f.sim.SeedWallet(testWallet, 1_000_000)

	entry, err := f.orch.Submit(context.Background(), f.acctID,
		ledger.TransferIntent{Kind: ledger.KindDeposit, Amount: 1_000_000})
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusConfirmed, entry.Status)
	assert.NotEmpty(t, entry.ExternalTxRef)

	wallet, _ := f.sim.WalletBalance(context.Background(), testWallet)
	pool, _ := f.sim.PoolBalance(context.Background(), testWallet)
	assert.Equal(t, int64(0), wallet)
	assert.Equal(t, int64(1_000_000), pool)

	total, err := f.rec.TotalDeposited(context.Background(), f.acctID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), total)

	require.Len(t, f.notifier.messages, 1)
	assert.Equal(t, notification.KindTransferSettled, f.notifier.messages[0].Kind)
}

func TestSubmitDepositInsufficientWalletFails(t *testing.T) {
	f := newFixture(t, account.KycApproved)
	f.sim.SeedWallet(testWallet, 500_000)

	entry, err := f.orch.Submit(context.Background(), f.acctID,
		ledger.TransferIntent{Kind: ledger.KindDeposit, Amount: 1_000_000})
	assert.ErrorIs(t, err, ErrExternalCallFailed)
	assert.Equal(t, ledger.StatusFailed, entry.Status)

	// The wallet itself is the source of truth; nothing was consumed.
	wallet, _ := f.sim.WalletBalance(context.Background(), testWallet)
	assert.Equal(t, int64(500_000), wallet)

	total, _ := f.rec.TotalDeposited(context.Background(), f.acctID)
	assert.Equal(t, int64(0), total)
}

func TestSubmitWithdrawConfirms(t *testing.T) {
	f := newFixture(t, account.KycApproved)
	f.sim.SeedWallet(testWallet, 2_000_000)

	deposit, err := f.orch.Submit(context.Background(), f.acctID,
		ledger.TransferIntent{Kind: ledger.KindDeposit, Amount: 2_000_000})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusConfirmed, deposit.Status)

	entry, err := f.orch.Submit(context.Background(), f.acctID,
		ledger.TransferIntent{Kind: ledger.KindWithdraw, Amount: 2_000_000, CounterpartyAddress: testCounterparty})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConfirmed, entry.Status)

	wallet, _ := f.sim.WalletBalance(context.Background(), testWallet)
	pool, _ := f.sim.PoolBalance(context.Background(), testWallet)
	assert.Equal(t, int64(0), wallet)
	assert.Equal(t, int64(0), pool)

	// Confirmed deposit then confirmed withdraw net the total back to zero.
	total, _ := f.rec.TotalDeposited(context.Background(), f.acctID)
	assert.Equal(t, int64(0), total)
}

func TestSubmitWithdrawFailsSafeIntoWallet(t *testing.T) {
	f := newFixture(t, account.KycApproved)
	f.sim.SeedPool(testWallet, 2_000_000)
	f.sim.TransferErr = chain.Rejected(errors.New("execution reverted"))

	entry, err := f.orch.Submit(context.Background(), f.acctID,
		ledger.TransferIntent{Kind: ledger.KindWithdraw, Amount: 2_000_000, CounterpartyAddress: testCounterparty})
	assert.ErrorIs(t, err, ErrExternalCallFailed)
	assert.Equal(t, ledger.StatusFailed, entry.Status)

	// The redeem settled, so the funds are sitting in the user's own wallet.
	wallet, _ := f.sim.WalletBalance(context.Background(), testWallet)
	pool, _ := f.sim.PoolBalance(context.Background(), testWallet)
	assert.Equal(t, int64(2_000_000), wallet)
	assert.Equal(t, int64(0), pool)

	// A failed withdraw must not move the deposited total.
	total, _ := f.rec.TotalDeposited(context.Background(), f.acctID)
	assert.Equal(t, int64(0), total)

	require.Len(t, f.notifier.messages, 1)
	assert.Equal(t, notification.KindTransferFailed, f.notifier.messages[0].Kind)
}

func TestSubmitSendConfirms(t *testing.T) {
	f := newFixture(t, account.KycApproved)
	f.sim.SeedWallet(testWallet, 750_000)

	entry, err := f.orch.Submit(context.Background(), f.acctID,
		ledger.TransferIntent{Kind: ledger.KindSend, Amount: 250_000, CounterpartyAddress: testCounterparty})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConfirmed, entry.Status)

	wallet, _ := f.sim.WalletBalance(context.Background(), testWallet)
	assert.Equal(t, int64(500_000), wallet)
}

func TestSubmitRetriesTransientFailures(t *testing.T) {
	f := newFixture(t, account.KycApproved)
	f.sim.SeedWallet(testWallet, 1_000_000)
	f.sim.SupplyFailures = 2 // two timeouts, then success

	entry, err := f.orch.Submit(context.Background(), f.acctID,
		ledger.TransferIntent{Kind: ledger.KindDeposit, Amount: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConfirmed, entry.Status)
}

func TestSubmitDoesNotRetryRejections(t *testing.T) {
	f := newFixture(t, account.KycApproved)
	f.sim.SeedWallet(testWallet, 1_000_000)
	f.sim.SeedPool(testWallet, 1_000_000)
	f.sim.RedeemErr = chain.Rejected(errors.New("execution reverted"))
	f.sim.RedeemFailures = 5 // would absorb retries if the rejection were retried

	start := time.Now()
	entry, err := f.orch.Submit(context.Background(), f.acctID,
		ledger.TransferIntent{Kind: ledger.KindWithdraw, Amount: 1_000_000, CounterpartyAddress: testCounterparty})
	assert.ErrorIs(t, err, ErrExternalCallFailed)
	assert.Equal(t, ledger.StatusFailed, entry.Status)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSubmitDeniedCreatesNoEntry(t *testing.T) {
	f := newFixture(t, account.KycPending)

	// KYC threshold: $1,000 at 6 decimals; a pending status cannot withdraw above it.
	_, err := f.orch.Submit(context.Background(), f.acctID,
		ledger.TransferIntent{Kind: ledger.KindWithdraw, Amount: 1_500_000_000, CounterpartyAddress: testCounterparty})

	var denial limits.DenialError
	require.True(t, errors.As(err, &denial))
	assert.Equal(t, limits.ReasonKycRequired, denial.Reason)

	total, _ := f.rec.DailyTotal(context.Background(), f.acctID, ledger.KindWithdraw, time.Now().UTC().Add(-24*time.Hour))
	assert.Equal(t, int64(0), total, "a denied intent must leave no ledger record")
}

func TestSubmitDailyCapCountsPriorConfirmedSends(t *testing.T) {
	f := newFixture(t, account.KycApproved)
	f.sim.SeedWallet(testWallet, 30_000_000_000)

	prior, err := f.rec.RecordPending(context.Background(), f.acctID,
		ledger.TransferIntent{Kind: ledger.KindSend, Amount: 24_999_000_000, CounterpartyAddress: testCounterparty})
	require.NoError(t, err)
	require.NoError(t, f.rec.Finalize(context.Background(), prior.ID, ledger.StatusConfirmed, "0xprior", ""))

	_, err = f.orch.Submit(context.Background(), f.acctID,
		ledger.TransferIntent{Kind: ledger.KindSend, Amount: 2_000_000, CounterpartyAddress: testCounterparty})

	var denial limits.DenialError
	require.True(t, errors.As(err, &denial))
	assert.Equal(t, limits.ReasonDailyCapExceeded, denial.Reason)
}

func TestSubmitDuplicateClientRefReturnsExistingEntry(t *testing.T) {
	f := newFixture(t, account.KycApproved)
	f.sim.SeedWallet(testWallet, 2_000_000)

	intent := ledger.TransferIntent{Kind: ledger.KindSend, Amount: 1_000_000, CounterpartyAddress: testCounterparty, ClientRef: "idem-1"}
	first, err := f.orch.Submit(context.Background(), f.acctID, intent)
	require.NoError(t, err)

	dup, err := f.orch.Submit(context.Background(), f.acctID, intent)
	assert.ErrorIs(t, err, ledger.ErrDuplicateIntent)
	assert.Equal(t, first.ID, dup.ID)

	// The duplicate never reached the chain.
	wallet, _ := f.sim.WalletBalance(context.Background(), testWallet)
	assert.Equal(t, int64(1_000_000), wallet)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, account.KycApproved)

	cases := []struct {
		name   string
		intent ledger.TransferIntent
	}{
		{"unknown kind", ledger.TransferIntent{Kind: "swap", Amount: 100}},
		{"zero amount", ledger.TransferIntent{Kind: ledger.KindDeposit, Amount: 0}},
		{"negative amount", ledger.TransferIntent{Kind: ledger.KindSend, Amount: -5, CounterpartyAddress: testCounterparty}},
		{"send without counterparty", ledger.TransferIntent{Kind: ledger.KindSend, Amount: 100}},
		{"withdraw with bad counterparty", ledger.TransferIntent{Kind: ledger.KindWithdraw, Amount: 100, CounterpartyAddress: "not-an-address"}},
		{"deposit with counterparty", ledger.TransferIntent{Kind: ledger.KindDeposit, Amount: 100, CounterpartyAddress: testCounterparty}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.orch.Submit(context.Background(), f.acctID, tc.intent)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSubmitEvictsIdleAccountLocks(t *testing.T) {
	f := newFixture(t, account.KycApproved)
	f.sim.SeedWallet(testWallet, 10_000_000)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.Submit(context.Background(), f.acctID,
				ledger.TransferIntent{Kind: ledger.KindDeposit, Amount: 1_000_000})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Serialization held: every deposit saw sufficient funds.
	pool, _ := f.sim.PoolBalance(context.Background(), testWallet)
	assert.Equal(t, int64(5_000_000), pool)

	f.orch.mu.Lock()
	defer f.orch.mu.Unlock()
	assert.Empty(t, f.orch.locks, "idle account locks must be evicted")
}

func TestStatus(t *testing.T) {
	f := newFixture(t, account.KycApproved)
	f.sim.SeedWallet(testWallet, 1_000_000)

	entry, err := f.orch.Submit(context.Background(), f.acctID,
		ledger.TransferIntent{Kind: ledger.KindDeposit, Amount: 1_000_000})
	require.NoError(t, err)

	got, err := f.orch.Status(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, ledger.StatusConfirmed, got.Status)

	_, err = f.orch.Status(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}
