package balance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultly/vaultly/internal/account"
	"github.com/vaultly/vaultly/internal/chain"
	"github.com/vaultly/vaultly/internal/ledger"
	"github.com/vaultly/vaultly/internal/logging"
)

const testWallet = "0x1111111111111111111111111111111111111111"

func newFixture(t *testing.T) (*Aggregator, *chain.Simulator, ledger.Reconciler, string) {
	t.Helper()
	accounts := account.NewMemoryRepository()
	acct := account.Account{
		ID:                uuid.NewString(),
		OwnerID:           uuid.NewString(),
		WalletAddress:     testWallet,
		ControllerAddress: "0x2222222222222222222222222222222222222222",
		KycStatus:         account.KycApproved,
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, accounts.Create(context.Background(), acct))

	sim := chain.NewSimulator()
	rec := ledger.NewInMemory(logging.Discard())
	return NewAggregator(accounts, sim, sim, rec), sim, rec, acct.ID
}

func TestSnapshotTotalsAreExact(t *testing.T) {
	agg, sim, rec, acctID := newFixture(t)
	sim.SeedWallet(testWallet, 250_000)
	sim.SeedPool(testWallet, 1_000_000)
	ledger.SeedTotalDeposited(rec, acctID, 1_200_000)

	snap, err := agg.Snapshot(context.Background(), acctID)
	require.NoError(t, err)

	assert.Equal(t, int64(250_000), snap.WalletAmount)
	assert.Equal(t, int64(1_000_000), snap.PoolAmount)
	assert.Equal(t, snap.WalletAmount+snap.PoolAmount, snap.TotalAmount)
	assert.Equal(t, int64(1_200_000), snap.TotalDeposited)
	// pool − (deposited − wallet) = 1,000,000 − (1,200,000 − 250,000)
	assert.Equal(t, int64(50_000), snap.YieldEarned)
	assert.Equal(t, int64(50_000), snap.YieldEarnedRaw)
}

func TestSnapshotFreshDepositHasZeroYield(t *testing.T) {
	agg, sim, rec, acctID := newFixture(t)
	// A confirmed $1.00 deposit moved the full wallet balance into the pool.
	sim.SeedWallet(testWallet, 0)
	sim.SeedPool(testWallet, 1_000_000)
	ledger.SeedTotalDeposited(rec, acctID, 1_000_000)

	snap, err := agg.Snapshot(context.Background(), acctID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), snap.TotalDeposited)
	assert.Equal(t, int64(0), snap.YieldEarned)
	assert.Equal(t, int64(1_000_000), snap.TotalAmount)
}

func TestSnapshotClampsNegativeYieldForDisplay(t *testing.T) {
	agg, sim, rec, acctID := newFixture(t)
	sim.SeedWallet(testWallet, 0)
	sim.SeedPool(testWallet, 999_999) // rounding on the pool side
	ledger.SeedTotalDeposited(rec, acctID, 1_000_000)

	snap, err := agg.Snapshot(context.Background(), acctID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.YieldEarned)
	assert.Equal(t, int64(-1), snap.YieldEarnedRaw)
}

func TestSnapshotIsIdempotentWithoutConfirmations(t *testing.T) {
	agg, sim, rec, acctID := newFixture(t)
	sim.SeedWallet(testWallet, 100)
	sim.SeedPool(testWallet, 200)
	ledger.SeedTotalDeposited(rec, acctID, 300)

	first, err := agg.Snapshot(context.Background(), acctID)
	require.NoError(t, err)
	second, err := agg.Snapshot(context.Background(), acctID)
	require.NoError(t, err)

	first.AsOf, second.AsOf = time.Time{}, time.Time{}
	assert.Equal(t, first, second)
}

func TestSnapshotFailsClosedOnPartialReads(t *testing.T) {
	t.Run("wallet read fails", func(t *testing.T) {
		agg, sim, _, acctID := newFixture(t)
		sim.WalletErr = errors.New("rpc unreachable")
		_, err := agg.Snapshot(context.Background(), acctID)
		assert.ErrorIs(t, err, ErrLedgerUnreachable)
	})

	t.Run("pool read fails", func(t *testing.T) {
		agg, sim, _, acctID := newFixture(t)
		sim.PoolErr = errors.New("rpc unreachable")
		_, err := agg.Snapshot(context.Background(), acctID)
		assert.ErrorIs(t, err, ErrLedgerUnreachable)
	})
}

func TestSnapshotUnknownAccount(t *testing.T) {
	agg, _, _, _ := newFixture(t)
	_, err := agg.Snapshot(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, account.ErrNotFound)
}
