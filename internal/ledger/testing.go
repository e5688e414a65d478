package ledger

import "time"

// SeedTotalDeposited is a test helper that sets the running deposited total
// when using the in-memory reconciler.
func SeedTotalDeposited(r Reconciler, accountID string, total int64) {
	if mem, ok := r.(*inMemoryReconciler); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.totals[accountID] = total
	}
}

// BackdateEntry is a test helper that rewrites an entry's creation time when
// using the in-memory reconciler, so sweeper and daily-cap windows can be
// exercised without sleeping.
func BackdateEntry(r Reconciler, entryID string, createdAt time.Time) {
	if mem, ok := r.(*inMemoryReconciler); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if entry, ok := mem.entries[entryID]; ok {
			entry.CreatedAt = createdAt
			mem.entries[entryID] = entry
		}
	}
}
