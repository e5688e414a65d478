package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no account exists for the given identifier.
var ErrNotFound = errors.New("account not found")

// Repository persists account records.
type Repository interface {
	Create(ctx context.Context, acct Account) error
	Get(ctx context.Context, id string) (Account, error)
	UpdateKycStatus(ctx context.Context, id string, status KycStatus) error
}

// PostgresRepository stores accounts in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an account record.
func (r *PostgresRepository) Create(ctx context.Context, acct Account) error {
	id, err := uuid.Parse(acct.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(acct.OwnerID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO accounts (id, owner_id, wallet_address, controller_address, kyc_status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		id, ownerID, acct.WalletAddress, acct.ControllerAddress, string(acct.KycStatus), acct.CreatedAt.UTC())
	return err
}

// Get fetches an account by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Account, error) {
	acctID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, owner_id, wallet_address, controller_address, kyc_status, created_at
        FROM accounts WHERE id = $1`, acctID)

	var acct Account
	var idVal, ownerID uuid.UUID
	var status string
	var createdAt time.Time
	if err := row.Scan(&idVal, &ownerID, &acct.WalletAddress, &acct.ControllerAddress, &status, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	acct.ID = idVal.String()
	acct.OwnerID = ownerID.String()
	acct.KycStatus = KycStatus(status)
	acct.CreatedAt = createdAt.UTC()
	return acct, nil
}

// UpdateKycStatus records the latest provider verdict for the account.
func (r *PostgresRepository) UpdateKycStatus(ctx context.Context, id string, status KycStatus) error {
	acctID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET kyc_status = $2 WHERE id = $1`, acctID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
