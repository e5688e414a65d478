package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryReconciler struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	entries map[string]Entry
	byRef   map[string]string // accountID+clientRef -> entryID
	totals  map[string]int64
}

// NewInMemory creates a concurrency-safe in-memory reconciler useful for
// unit tests.
func NewInMemory(logger *slog.Logger) Reconciler {
	return &inMemoryReconciler{
		logger:  logger,
		entries: make(map[string]Entry),
		byRef:   make(map[string]string),
		totals:  make(map[string]int64),
	}
}

func refKey(accountID, clientRef string) string {
	return accountID + ":" + clientRef
}

func (r *inMemoryReconciler) RecordPending(_ context.Context, accountID string, intent TransferIntent) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if intent.ClientRef != "" {
		if id, exists := r.byRef[refKey(accountID, intent.ClientRef)]; exists {
			return r.entries[id], ErrDuplicateIntent
		}
	}

	entry := Entry{
		ID:                  uuid.New().String(),
		AccountID:           accountID,
		Kind:                intent.Kind,
		Amount:              intent.Amount,
		CounterpartyAddress: intent.CounterpartyAddress,
		ClientRef:           intent.ClientRef,
		Status:              StatusPending,
		CreatedAt:           time.Now().UTC(),
	}
	r.entries[entry.ID] = entry
	if intent.ClientRef != "" {
		r.byRef[refKey(accountID, intent.ClientRef)] = entry.ID
	}
	return entry, nil
}

func (r *inMemoryReconciler) AttachExternalRef(_ context.Context, entryID string, step Step, txRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[entryID]
	if !ok || entry.Status != StatusPending {
		return ErrEntryNotFound
	}
	entry.ExternalTxRef = txRef
	entry.ExternalTxStep = step
	r.entries[entryID] = entry
	return nil
}

func (r *inMemoryReconciler) Finalize(_ context.Context, entryID string, status Status, txRef, detail string) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	if entry.Status.Terminal() {
		r.logger.Warn("ignoring repeat finalize for terminal entry",
			"entry_id", entryID, "status", entry.Status, "requested", status)
		return nil
	}

	now := time.Now().UTC()
	entry.Status = status
	if txRef != "" {
		entry.ExternalTxRef = txRef
	}
	entry.FailureDetail = detail
	entry.FinalizedAt = &now
	r.entries[entryID] = entry

	if status == StatusConfirmed {
		switch entry.Kind {
		case KindDeposit:
			r.totals[entry.AccountID] += entry.Amount
		case KindWithdraw:
			r.totals[entry.AccountID] -= entry.Amount
		}
	}
	return nil
}

func (r *inMemoryReconciler) Entry(_ context.Context, entryID string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[entryID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return entry, nil
}

func (r *inMemoryReconciler) TotalDeposited(_ context.Context, accountID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totals[accountID], nil
}

func (r *inMemoryReconciler) DailyTotal(_ context.Context, accountID string, kind OperationKind, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, entry := range r.entries {
		if entry.AccountID != accountID || entry.Kind != kind {
			continue
		}
		if entry.Status == StatusFailed || entry.CreatedAt.Before(since) {
			continue
		}
		total += entry.Amount
	}
	return total, nil
}

func (r *inMemoryReconciler) PendingBefore(_ context.Context, cutoff time.Time, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var entries []Entry
	for _, entry := range r.entries {
		if entry.Status == StatusPending && entry.CreatedAt.Before(cutoff) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
