package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vaultly/vaultly/internal/account"
	"github.com/vaultly/vaultly/internal/chain"
	"github.com/vaultly/vaultly/internal/ledger"
)

// ErrLedgerUnreachable indicates one of the underlying reads failed. No
// partial snapshot is ever returned; a financial total must not silently omit
// a component.
var ErrLedgerUnreachable = errors.New("ledger unreachable")

// Snapshot is the merged view of the wallet and pool ledgers. It is derived
// on every read and never stored durably.
type Snapshot struct {
	AccountID      string
	WalletAmount   int64
	PoolAmount     int64
	TotalAmount    int64
	TotalDeposited int64
	// YieldEarned is clamped to zero for display. YieldEarnedRaw keeps the
	// unclamped value, which can dip below zero transiently from rounding.
	YieldEarned    int64
	YieldEarnedRaw int64
	AsOf           time.Time
}

// Aggregator merges the custody wallet balance and the lending-pool position
// into one snapshot. Read-only; it never mutates any ledger.
type Aggregator struct {
	accounts account.Repository
	wallet   chain.WalletReader
	pool     chain.PoolReader
	ledger   ledger.Reconciler
}

// NewAggregator builds a balance aggregator.
func NewAggregator(accounts account.Repository, wallet chain.WalletReader, pool chain.PoolReader, rec ledger.Reconciler) *Aggregator {
	return &Aggregator{accounts: accounts, wallet: wallet, pool: pool, ledger: rec}
}

// Snapshot reads the wallet and pool balances concurrently and derives the
// merged view. Either read failing fails the whole call.
func (a *Aggregator) Snapshot(ctx context.Context, accountID string) (Snapshot, error) {
	acct, err := a.accounts.Get(ctx, accountID)
	if err != nil {
		return Snapshot{}, err
	}

	var walletAmount, poolAmount int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		walletAmount, err = a.wallet.WalletBalance(gctx, acct.WalletAddress)
		if err != nil {
			return fmt.Errorf("wallet read: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		poolAmount, err = a.pool.PoolBalance(gctx, acct.WalletAddress)
		if err != nil {
			return fmt.Errorf("pool read: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, errors.Join(ErrLedgerUnreachable, err)
	}

	totalDeposited, err := a.ledger.TotalDeposited(ctx, accountID)
	if err != nil {
		return Snapshot{}, errors.Join(ErrLedgerUnreachable, fmt.Errorf("deposited total read: %w", err))
	}

	rawYield := poolAmount - (totalDeposited - walletAmount)
	yield := rawYield
	if yield < 0 {
		yield = 0
	}

	return Snapshot{
		AccountID:      accountID,
		WalletAmount:   walletAmount,
		PoolAmount:     poolAmount,
		TotalAmount:    walletAmount + poolAmount,
		TotalDeposited: totalDeposited,
		YieldEarned:    yield,
		YieldEarnedRaw: rawYield,
		AsOf:           time.Now().UTC(),
	}, nil
}
