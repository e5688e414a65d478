package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEntryNotFound indicates no entry exists for the given identifier.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrDuplicateIntent indicates the client reference was already recorded
	// and the existing entry should be treated as the idempotent result.
	ErrDuplicateIntent = errors.New("duplicate transfer intent")
)

// OperationKind enumerates the supported transfer operations.
type OperationKind string

const (
	KindDeposit  OperationKind = "deposit"
	KindWithdraw OperationKind = "withdraw"
	KindSend     OperationKind = "send"
)

// Valid reports whether the kind is one of the supported operations.
func (k OperationKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdraw, KindSend:
		return true
	}
	return false
}

// Step identifies which external submission of an operation a transaction
// reference belongs to. A withdraw submits two transactions (redeem, then
// transfer); the other kinds submit one.
type Step string

const (
	StepSupply   Step = "supply"
	StepRedeem   Step = "redeem"
	StepTransfer Step = "transfer"
)

// FinalStep returns the step whose confirmation settles an operation of this
// kind. A confirmed receipt for any earlier step proves only partial progress.
func (k OperationKind) FinalStep() Step {
	if k == KindDeposit {
		return StepSupply
	}
	return StepTransfer
}

// Status is the lifecycle state of a ledger entry. Entries are created
// pending and transition exactly once to confirmed or failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// TransferIntent is the unit of work submitted to the orchestrator.
// Immutable once accepted.
type TransferIntent struct {
	Kind                OperationKind
	Amount              int64
	CounterpartyAddress string
	ClientRef           string
	RequestedAt         time.Time
}

// Entry is the durable record of one transfer intent and its outcome.
type Entry struct {
	ID                  string
	AccountID           string
	Kind                OperationKind
	Amount              int64
	CounterpartyAddress string
	ClientRef           string
	ExternalTxRef       string
	ExternalTxStep      Step
	Status              Status
	FailureDetail       string
	CreatedAt           time.Time
	FinalizedAt         *time.Time
}

// Reconciler owns every write to the transfer ledger. RecordPending must
// succeed before any external call is attempted so no operation can occur
// without a prior auditable record.
type Reconciler interface {
	// RecordPending creates a pending entry for the intent. If the account
	// already has an entry for the intent's client reference, the existing
	// entry is returned together with ErrDuplicateIntent.
	RecordPending(ctx context.Context, accountID string, intent TransferIntent) (Entry, error)

	// AttachExternalRef records the chain reference of one submission step for
	// an in-flight entry so an interrupted operation can later be resolved
	// from external state. Later steps overwrite earlier ones; the stored step
	// tells the sweeper whether a confirmed receipt settles the whole
	// operation or proves only partial progress.
	AttachExternalRef(ctx context.Context, entryID string, step Step, txRef string) error

	// Finalize transitions the entry to a terminal status exactly once. A
	// repeat call for an already-final entry is a no-op logged as a warning.
	// The running deposited total moves only here: up on a confirmed deposit,
	// down on a confirmed withdraw.
	Finalize(ctx context.Context, entryID string, status Status, txRef, detail string) error

	// Entry fetches a single entry by id.
	Entry(ctx context.Context, entryID string) (Entry, error)

	// TotalDeposited returns the settled running deposit counter for the
	// account. Pending entries never contribute.
	TotalDeposited(ctx context.Context, accountID string) (int64, error)

	// DailyTotal sums non-failed amounts of the given kind recorded since the
	// cutoff, feeding the rolling daily cap check.
	DailyTotal(ctx context.Context, accountID string, kind OperationKind, since time.Time) (int64, error)

	// PendingBefore lists entries still pending that were created before the
	// cutoff, oldest first, for the background sweeper.
	PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Entry, error)
}
