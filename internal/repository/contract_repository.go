package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-engine/internal/models"
)

const contractSelect = `SELECT user_id, signed, signed_at, signed_by_admin, admin_signed_at, expires_at, auto_renewal, cancelled_at, cancellation_reason, cancelled_by, renewal_count, last_renewal_at, log_id, updated_at FROM contracts`

// ContractRepository persists contract status and signing snapshots.
type ContractRepository struct {
	db *sqlx.DB
}

// NewContractRepository constructs the repository.
func NewContractRepository(db *sqlx.DB) *ContractRepository {
	return &ContractRepository{db: db}
}

// BeginTxx starts a transaction for multi-row contract writes.
func (r *ContractRepository) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, opts)
}

func (r *ContractRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByUser returns the contract of a user or sql.ErrNoRows.
func (r *ContractRepository) FindByUser(ctx context.Context, userID string) (*models.ContractStatus, error) {
	query := contractSelect + ` WHERE user_id = $1`
	var status models.ContractStatus
	if err := r.db.GetContext(ctx, &status, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find contract: %w", err)
	}
	return &status, nil
}

// Save writes status guarded by the updated_at value it was read with. A nil
// expected inserts a new record. ErrNotApplied means a concurrent write won.
func (r *ContractRepository) Save(ctx context.Context, exec sqlx.ExtContext, status *models.ContractStatus, expected *time.Time) error {
	status.UpdatedAt = time.Now().UTC()

	if expected == nil {
		const insert = `INSERT INTO contracts (user_id, signed, signed_at, signed_by_admin, admin_signed_at, expires_at, auto_renewal, cancelled_at, cancellation_reason, cancelled_by, renewal_count, last_renewal_at, log_id, updated_at)
			VALUES (:user_id, :signed, :signed_at, :signed_by_admin, :admin_signed_at, :expires_at, :auto_renewal, :cancelled_at, :cancellation_reason, :cancelled_by, :renewal_count, :last_renewal_at, :log_id, :updated_at)
			ON CONFLICT (user_id) DO NOTHING`
		res, err := sqlx.NamedExecContext(ctx, r.exec(exec), insert, status)
		if err != nil {
			return fmt.Errorf("insert contract: %w", err)
		}
		return requireOneRow(res, "insert contract")
	}

	const update = `UPDATE contracts SET signed = $2, signed_at = $3, signed_by_admin = $4, admin_signed_at = $5, expires_at = $6,
		auto_renewal = $7, cancelled_at = $8, cancellation_reason = $9, cancelled_by = $10, renewal_count = $11,
		last_renewal_at = $12, log_id = $13, updated_at = $14
		WHERE user_id = $1 AND updated_at = $15`
	res, err := r.exec(exec).ExecContext(ctx, update,
		status.UserID, status.Signed, status.SignedAt, status.SignedByAdmin, status.AdminSignedAt, status.ExpiresAt,
		status.AutoRenewal, status.CancelledAt, status.CancellationReason, status.CancelledBy, status.RenewalCount,
		status.LastRenewalAt, status.LogID, status.UpdatedAt, *expected,
	)
	if err != nil {
		return fmt.Errorf("update contract: %w", err)
	}
	return requireOneRow(res, "update contract")
}

// InsertLog stores the immutable signing snapshot.
func (r *ContractRepository) InsertLog(ctx context.Context, exec sqlx.ExtContext, log *models.ContractLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	const query = `INSERT INTO contract_logs (id, user_id, full_name, tax_id, birth_date, address, signing_ip, signing_browser, signed_at, checksum)
		VALUES (:id, :user_id, :full_name, :tax_id, :birth_date, :address, :signing_ip, :signing_browser, :signed_at, :checksum)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, log); err != nil {
		return fmt.Errorf("insert contract log: %w", err)
	}
	return nil
}
