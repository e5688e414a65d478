package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultly/vaultly/internal/account"
	"github.com/vaultly/vaultly/internal/chain"
	"github.com/vaultly/vaultly/internal/ledger"
	"github.com/vaultly/vaultly/internal/limits"
	"github.com/vaultly/vaultly/internal/notification"
	"github.com/vaultly/vaultly/pkg/retrier"
)

var (
	// ErrValidation indicates a malformed intent, rejected before any record
	// is created.
	ErrValidation = errors.New("invalid transfer intent")

	// ErrExternalCallFailed indicates an external step failed during
	// orchestration. The entry has already been finalized as failed; callers
	// get the entry id so status can be polled.
	ErrExternalCallFailed = errors.New("external call failed")
)

const dailyWindow = 24 * time.Hour

// Orchestrator sequences the external calls for deposit, withdraw, and send
// operations. It is the only component that mutates external ledger state.
// All writes for a single account are serialized behind a per-account lock.
type Orchestrator struct {
	accounts    account.Repository
	ledger      ledger.Reconciler
	chain       chain.Client
	policy      limits.Policy
	retry       *retrier.Retrier
	notifier    notification.Notifier
	logger      *slog.Logger
	callTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*accountLock
}

// accountLock is reference-counted so idle entries can be evicted from the
// lock map once no submission holds or awaits them.
type accountLock struct {
	mu   sync.Mutex
	refs int
}

// NewOrchestrator builds a transaction orchestrator. callTimeout bounds each
// individual chain call; zero disables the bound.
func NewOrchestrator(accounts account.Repository, rec ledger.Reconciler, client chain.Client,
	policy limits.Policy, retry *retrier.Retrier, callTimeout time.Duration,
	notifier notification.Notifier, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		accounts:    accounts,
		ledger:      rec,
		chain:       client,
		policy:      policy,
		retry:       retry,
		notifier:    notifier,
		logger:      logger,
		callTimeout: callTimeout,
		locks:       make(map[string]*accountLock),
	}
}

func (o *Orchestrator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.callTimeout)
}

// lockAccount serializes writes for one account and returns the unlock
// function. The last releaser removes the lock from the map.
func (o *Orchestrator) lockAccount(accountID string) func() {
	o.mu.Lock()
	lock, ok := o.locks[accountID]
	if !ok {
		lock = &accountLock{}
		o.locks[accountID] = lock
	}
	lock.refs++
	o.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		o.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(o.locks, accountID)
		}
		o.mu.Unlock()
	}
}

// Submit validates, authorizes, records, and executes a transfer intent.
// Failures before RecordPending return with no side effect; failures after
// always leave the entry in a terminal state.
func (o *Orchestrator) Submit(ctx context.Context, accountID string, intent ledger.TransferIntent) (ledger.Entry, error) {
	if err := validateIntent(intent); err != nil {
		return ledger.Entry{}, err
	}

	unlock := o.lockAccount(accountID)
	defer unlock()

	acct, err := o.accounts.Get(ctx, accountID)
	if err != nil {
		return ledger.Entry{}, err
	}

	dailyTotal, err := o.ledger.DailyTotal(ctx, accountID, intent.Kind, time.Now().UTC().Add(-dailyWindow))
	if err != nil {
		return ledger.Entry{}, err
	}

	if err := limits.Authorize(intent, o.policy, acct.KycStatus, dailyTotal); err != nil {
		return ledger.Entry{}, err
	}

	entry, err := o.ledger.RecordPending(ctx, accountID, intent)
	if errors.Is(err, ledger.ErrDuplicateIntent) {
		return entry, err
	}
	if err != nil {
		return ledger.Entry{}, err
	}

	txRef, execErr := o.execute(ctx, acct, entry)
	if execErr != nil {
		o.finalize(ctx, &entry, ledger.StatusFailed, txRef, execErr.Error())
		o.notify(ctx, acct, entry)
		return entry, fmt.Errorf("%w: %s", ErrExternalCallFailed, execErr)
	}

	o.finalize(ctx, &entry, ledger.StatusConfirmed, txRef, "")
	o.notify(ctx, acct, entry)
	return entry, nil
}

// Status returns the ledger entry for a previously accepted intent.
func (o *Orchestrator) Status(ctx context.Context, entryID string) (ledger.Entry, error) {
	return o.ledger.Entry(ctx, entryID)
}

// execute runs the external steps for the entry's kind and returns the tx
// reference of the completing step.
func (o *Orchestrator) execute(ctx context.Context, acct account.Account, entry ledger.Entry) (string, error) {
	switch entry.Kind {
	case ledger.KindDeposit:
		return o.deposit(ctx, acct, entry)
	case ledger.KindWithdraw:
		return o.withdraw(ctx, acct, entry)
	case ledger.KindSend:
		return o.send(ctx, acct, entry)
	}
	return "", fmt.Errorf("unsupported operation kind %q", entry.Kind)
}

// deposit supplies wallet funds into the pool. The wallet balance itself is
// the source of truth: a failed supply leaves it untouched and needs no
// compensating ledger action.
func (o *Orchestrator) deposit(ctx context.Context, acct account.Account, entry ledger.Entry) (string, error) {
	readCtx, cancel := o.callCtx(ctx)
	defer cancel()
	available, err := o.chain.WalletBalance(readCtx, acct.WalletAddress)
	if err != nil {
		return "", fmt.Errorf("wallet balance check: %w", err)
	}
	if available < entry.Amount {
		return "", fmt.Errorf("insufficient wallet balance: have %d, need %d", available, entry.Amount)
	}

	return o.submitStep(ctx, entry.ID, ledger.StepSupply, func(ctx context.Context) (string, error) {
		return o.chain.SupplyToPool(ctx, acct.WalletAddress, entry.Amount)
	})
}

// withdraw redeems from the pool first, then transfers out of the wallet.
// The order is load-bearing: redeeming first guarantees wallet liquidity, and
// a failed transfer strands funds in the user's own wallet rather than losing
// custody of them.
func (o *Orchestrator) withdraw(ctx context.Context, acct account.Account, entry ledger.Entry) (string, error) {
	redeemRef, err := o.submitStep(ctx, entry.ID, ledger.StepRedeem, func(ctx context.Context) (string, error) {
		return o.chain.RedeemFromPool(ctx, acct.WalletAddress, entry.Amount)
	})
	if err != nil {
		return "", fmt.Errorf("redeem: %w", err)
	}

	transferRef, err := o.submitStep(ctx, entry.ID, ledger.StepTransfer, func(ctx context.Context) (string, error) {
		return o.chain.Transfer(ctx, acct.WalletAddress, entry.CounterpartyAddress, entry.Amount)
	})
	if err != nil {
		// Redeemed funds stay visible in the wallet and recoverable by a
		// fresh intent.
		o.logger.Warn("withdraw transfer failed after redeem, funds remain in wallet",
			"entry_id", entry.ID, "redeem_ref", redeemRef, "error", err)
		return redeemRef, fmt.Errorf("transfer after redeem: %w", err)
	}
	return transferRef, nil
}

func (o *Orchestrator) send(ctx context.Context, acct account.Account, entry ledger.Entry) (string, error) {
	return o.submitStep(ctx, entry.ID, ledger.StepTransfer, func(ctx context.Context) (string, error) {
		return o.chain.Transfer(ctx, acct.WalletAddress, entry.CounterpartyAddress, entry.Amount)
	})
}

// submitStep runs one external call under the retry policy: transient
// failures back off and retry, logical rejections abort immediately. The
// returned reference is attached to the entry before the step is considered
// done so an interrupted operation can be swept later.
func (o *Orchestrator) submitStep(ctx context.Context, entryID string, step ledger.Step, fn func(ctx context.Context) (string, error)) (string, error) {
	ref, err := retrier.DoWithData(o.retry, ctx, func(ctx context.Context) (string, error) {
		callCtx, cancel := o.callCtx(ctx)
		defer cancel()
		ref, err := fn(callCtx)
		if err != nil && chain.IsRejected(err) {
			return "", retrier.Permanent(err)
		}
		return ref, err
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", step, err)
	}

	if err := o.ledger.AttachExternalRef(ctx, entryID, step, ref); err != nil {
		o.logger.Warn("attach external ref failed", "entry_id", entryID, "step", step, "tx_ref", ref, "error", err)
	}
	return ref, nil
}

func (o *Orchestrator) finalize(ctx context.Context, entry *ledger.Entry, status ledger.Status, txRef, detail string) {
	if err := o.ledger.Finalize(ctx, entry.ID, status, txRef, detail); err != nil {
		o.logger.Error("finalize entry", "entry_id", entry.ID, "status", status, "error", err)
		return
	}
	now := time.Now().UTC()
	entry.Status = status
	if txRef != "" {
		entry.ExternalTxRef = txRef
	}
	entry.FailureDetail = detail
	entry.FinalizedAt = &now
}

func (o *Orchestrator) notify(ctx context.Context, acct account.Account, entry ledger.Entry) {
	if o.notifier == nil {
		return
	}
	kind := notification.KindTransferSettled
	body := fmt.Sprintf("Your %s of %d settled", entry.Kind, entry.Amount)
	if entry.Status == ledger.StatusFailed {
		kind = notification.KindTransferFailed
		body = fmt.Sprintf("Your %s of %d failed", entry.Kind, entry.Amount)
	}
	_ = o.notifier.Send(ctx, notification.Message{Kind: kind, Destination: acct.OwnerID, Body: body})
}

func validateIntent(intent ledger.TransferIntent) error {
	if !intent.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, intent.Kind)
	}
	if intent.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	switch intent.Kind {
	case ledger.KindWithdraw, ledger.KindSend:
		if !common.IsHexAddress(intent.CounterpartyAddress) {
			return fmt.Errorf("%w: counterparty address is required", ErrValidation)
		}
	case ledger.KindDeposit:
		if intent.CounterpartyAddress != "" {
			return fmt.Errorf("%w: deposit takes no counterparty", ErrValidation)
		}
	}
	return nil
}
