package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// ErrRejected marks a call the chain refused for logical reasons (reverted
// execution, insufficient on-chain balance). Rejections are never retried.
var ErrRejected = errors.New("rejected by chain")

// Rejected wraps err so that IsRejected reports true for it.
func Rejected(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRejected, err)
}

// IsRejected reports whether err represents a logical rejection rather than a
// transient network failure.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}

// TxStatus describes the observed state of a submitted transaction.
type TxStatus string

const (
	// TxPending means no receipt exists yet.
	TxPending TxStatus = "pending"
	// TxConfirmed means the transaction executed successfully.
	TxConfirmed TxStatus = "confirmed"
	// TxFailed means the transaction was mined but reverted.
	TxFailed TxStatus = "failed"
)

// WalletReader reads the custody wallet's liquid stablecoin balance.
type WalletReader interface {
	WalletBalance(ctx context.Context, address string) (int64, error)
}

// PoolReader reads the lending-pool position and its native interest rate.
type PoolReader interface {
	PoolBalance(ctx context.Context, address string) (int64, error)
	// NativeRate returns the pool's current liquidity rate in ray (1e27) scale.
	NativeRate(ctx context.Context) (*big.Int, error)
}

// Submitter performs the irreversible ledger mutations. Each call may fail
// synchronously (rejected) or return a reference that never confirms.
type Submitter interface {
	SupplyToPool(ctx context.Context, wallet string, amount int64) (string, error)
	RedeemFromPool(ctx context.Context, wallet string, amount int64) (string, error)
	Transfer(ctx context.Context, wallet, to string, amount int64) (string, error)
	ConfirmationStatus(ctx context.Context, txRef string) (TxStatus, error)
}

// Client bundles every chain interaction the service needs.
type Client interface {
	WalletReader
	PoolReader
	Submitter
}
