package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vaultly/vaultly/internal/chain"
	"github.com/vaultly/vaultly/internal/ledger"
)

// Sweeper forces resolution of entries left pending past the configured
// horizon, typically after a crash or an external call that timed out. It
// re-queries external state instead of guessing: a recorded submission is
// judged by its receipt, an entry with no submission is failed outright.
type Sweeper struct {
	ledger    ledger.Reconciler
	chain     chain.Submitter
	interval  time.Duration
	horizon   time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewSweeper builds a pending-entry sweeper.
func NewSweeper(rec ledger.Reconciler, submitter chain.Submitter, interval, horizon time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		ledger:    rec,
		chain:     submitter,
		interval:  interval,
		horizon:   horizon,
		batchSize: 100,
		logger:    logger,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.interval, "horizon", s.horizon)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep resolves one batch of overdue pending entries.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.horizon)
	entries, err := s.ledger.PendingBefore(ctx, cutoff, s.batchSize)
	if err != nil {
		s.logger.Error("sweeper list pending", "error", err)
		return
	}

	for _, entry := range entries {
		s.resolve(ctx, entry)
	}
}

func (s *Sweeper) resolve(ctx context.Context, entry ledger.Entry) {
	if entry.ExternalTxRef == "" {
		// Nothing was ever submitted, so nothing external can settle it.
		if err := s.ledger.Finalize(ctx, entry.ID, ledger.StatusFailed, "", "no submission recorded before horizon"); err != nil {
			s.logger.Error("sweeper finalize", "entry_id", entry.ID, "error", err)
			return
		}
		s.logger.Warn("swept unsubmitted entry to failed", "entry_id", entry.ID, "kind", entry.Kind)
		return
	}

	status, err := s.chain.ConfirmationStatus(ctx, entry.ExternalTxRef)
	if err != nil {
		s.logger.Error("sweeper receipt lookup", "entry_id", entry.ID, "tx_ref", entry.ExternalTxRef, "error", err)
		return
	}

	switch status {
	case chain.TxConfirmed:
		// Only the final step's receipt settles the operation. A confirmed
		// earlier step (a withdraw's redeem) means the payout was never
		// submitted; the funds sit in the custody wallet and the entry fails
		// so they stay recoverable by a fresh intent.
		if entry.ExternalTxStep != entry.Kind.FinalStep() {
			detail := fmt.Sprintf("%s step settled but %s was never submitted; funds remain in wallet",
				entry.ExternalTxStep, entry.Kind.FinalStep())
			if err := s.ledger.Finalize(ctx, entry.ID, ledger.StatusFailed, entry.ExternalTxRef, detail); err != nil {
				s.logger.Error("sweeper finalize", "entry_id", entry.ID, "error", err)
				return
			}
			s.logger.Warn("swept partially executed entry to failed",
				"entry_id", entry.ID, "kind", entry.Kind, "step", entry.ExternalTxStep, "tx_ref", entry.ExternalTxRef)
			return
		}
		if err := s.ledger.Finalize(ctx, entry.ID, ledger.StatusConfirmed, entry.ExternalTxRef, ""); err != nil {
			s.logger.Error("sweeper finalize", "entry_id", entry.ID, "error", err)
			return
		}
		s.logger.Info("swept entry to confirmed", "entry_id", entry.ID, "tx_ref", entry.ExternalTxRef)
	case chain.TxFailed:
		if err := s.ledger.Finalize(ctx, entry.ID, ledger.StatusFailed, entry.ExternalTxRef, "execution reverted"); err != nil {
			s.logger.Error("sweeper finalize", "entry_id", entry.ID, "error", err)
			return
		}
		s.logger.Warn("swept entry to failed", "entry_id", entry.ID, "tx_ref", entry.ExternalTxRef)
	case chain.TxPending:
		// Still in flight on the chain side; leave it for the next pass.
	}
}
