package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresReconciler persists ledger entries and the running deposited total
// in PostgreSQL.
type PostgresReconciler struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresReconciler constructs a Postgres-backed reconciler.
func NewPostgresReconciler(db *pgxpool.Pool, logger *slog.Logger) *PostgresReconciler {
	return &PostgresReconciler{db: db, logger: logger}
}

const entryColumns = `id, account_id, kind, amount, counterparty_address, client_ref, external_tx_ref, external_tx_step, status, failure_detail, created_at, finalized_at`

// RecordPending inserts a pending entry, deduplicating on the client ref.
func (r *PostgresReconciler) RecordPending(ctx context.Context, accountID string, intent TransferIntent) (Entry, error) {
	acctID, err := uuid.Parse(accountID)
	if err != nil {
		return Entry{}, fmt.Errorf("account id: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if intent.ClientRef != "" {
		row := tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM transfer_entries
            WHERE account_id = $1 AND client_ref = $2`, acctID, intent.ClientRef)
		existing, err := scanEntry(row)
		if err == nil {
			return existing, ErrDuplicateIntent
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, err
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

	if _, err := tx.Exec(ctx, `INSERT INTO transfer_entries
        (id, account_id, kind, amount, counterparty_address, client_ref, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.MustParse(entry.ID), acctID, string(entry.Kind), entry.Amount,
		entry.CounterpartyAddress, entry.ClientRef, string(entry.Status), entry.CreatedAt); err != nil {
		return Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// AttachExternalRef stores the chain reference of one submission step for an
// in-flight entry.
func (r *PostgresReconciler) AttachExternalRef(ctx context.Context, entryID string, step Step, txRef string) error {
	id, err := uuid.Parse(entryID)
	if err != nil {
		return ErrEntryNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE transfer_entries SET external_tx_ref = $2, external_tx_step = $3
        WHERE id = $1 AND status = $4`, id, txRef, string(step), string(StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Finalize performs the exactly-once terminal transition and moves the
// running deposited total for confirmed deposits and withdrawals.
func (r *PostgresReconciler) Finalize(ctx context.Context, entryID string, status Status, txRef, detail string) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %q", status)
	}
	id, err := uuid.Parse(entryID)
	if err != nil {
		return ErrEntryNotFound
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM transfer_entries
        WHERE id = $1 FOR UPDATE`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrEntryNotFound
		}
		return err
	}

	if entry.Status.Terminal() {
		r.logger.Warn("ignoring repeat finalize for terminal entry",
			"entry_id", entryID, "status", entry.Status, "requested", status)
		return nil
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE transfer_entries
        SET status = $2, external_tx_ref = COALESCE(NULLIF($3, ''), external_tx_ref),
            failure_detail = $4, finalized_at = $5
        WHERE id = $1`, id, string(status), txRef, detail, now); err != nil {
		return err
	}

	if status == StatusConfirmed {
		var delta int64
		switch entry.Kind {
		case KindDeposit:
			delta = entry.Amount
		case KindWithdraw:
			delta = -entry.Amount
		}
		if delta != 0 {
			if _, err := tx.Exec(ctx, `INSERT INTO account_totals (account_id, total_deposited)
                VALUES ($1, $2)
                ON CONFLICT (account_id) DO UPDATE
                SET total_deposited = account_totals.total_deposited + $2`,
				uuid.MustParse(entry.AccountID), delta); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

// Entry fetches a single entry by id.
func (r *PostgresReconciler) Entry(ctx context.Context, entryID string) (Entry, error) {
	id, err := uuid.Parse(entryID)
	if err != nil {
		return Entry{}, ErrEntryNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM transfer_entries WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	return entry, nil
}

// TotalDeposited returns the settled running deposit counter.
func (r *PostgresReconciler) TotalDeposited(ctx context.Context, accountID string) (int64, error) {
	acctID, err := uuid.Parse(accountID)
	if err != nil {
		return 0, fmt.Errorf("account id: %w", err)
	}
	var total int64
	err = r.db.QueryRow(ctx, `SELECT total_deposited FROM account_totals WHERE account_id = $1`, acctID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return total, nil
}

// DailyTotal sums non-failed amounts of the given kind since the cutoff.
func (r *PostgresReconciler) DailyTotal(ctx context.Context, accountID string, kind OperationKind, since time.Time) (int64, error) {
	acctID, err := uuid.Parse(accountID)
	if err != nil {
		return 0, fmt.Errorf("account id: %w", err)
	}
	var total int64
	err = r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM transfer_entries
        WHERE account_id = $1 AND kind = $2 AND status <> $3 AND created_at >= $4`,
		acctID, string(kind), string(StatusFailed), since.UTC()).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// PendingBefore lists pending entries created before the cutoff, oldest first.
func (r *PostgresReconciler) PendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM transfer_entries
        WHERE status = $1 AND created_at < $2
        ORDER BY created_at ASC LIMIT $3`, string(StatusPending), cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var id, acctID uuid.UUID
	var kind, status string
	var counterparty, clientRef, txRef, txStep, detail *string
	var createdAt time.Time
	var finalizedAt *time.Time

	if err := row.Scan(&id, &acctID, &kind, &e.Amount, &counterparty, &clientRef,
		&txRef, &txStep, &status, &detail, &createdAt, &finalizedAt); err != nil {
		return Entry{}, err
	}

	e.ID = id.String()
	e.AccountID = acctID.String()
	e.Kind = OperationKind(kind)
	e.Status = Status(status)
	if counterparty != nil {
		e.CounterpartyAddress = *counterparty
	}
	if clientRef != nil {
		e.ClientRef = *clientRef
	}
	if txRef != nil {
		e.ExternalTxRef = *txRef
	}
	if txStep != nil {
		e.ExternalTxStep = Step(*txStep)
	}
	if detail != nil {
		e.FailureDetail = *detail
	}
	e.CreatedAt = createdAt.UTC()
	if finalizedAt != nil {
		t := finalizedAt.UTC()
		e.FinalizedAt = &t
	}
	return e, nil
}
