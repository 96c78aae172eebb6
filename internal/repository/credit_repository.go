package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-engine/internal/models"
)

var creditColumns = []interface{}{
	"id", "student_id", "type", "amount", "expires_at", "used_at", "reason", "action", "class_id", "performed_by", "performed_at",
}

const creditSelect = `SELECT id, student_id, type, amount, expires_at, used_at, reason, action, class_id, performed_by, performed_at FROM credit_transactions`

// CreditRepository persists the credit ledger.
type CreditRepository struct {
	db *sqlx.DB
}

// NewCreditRepository constructs the repository.
func NewCreditRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Insert appends a ledger row.
func (r *CreditRepository) Insert(ctx context.Context, exec sqlx.ExtContext, tx *models.CreditTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.PerformedAt.IsZero() {
		tx.PerformedAt = time.Now().UTC()
	}
	const query = `INSERT INTO credit_transactions (id, student_id, type, amount, expires_at, used_at, reason, action, class_id, performed_by, performed_at)
		VALUES (:id, :student_id, :type, :amount, :expires_at, :used_at, :reason, :action, :class_id, :performed_by, :performed_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, tx); err != nil {
		return fmt.Errorf("insert credit transaction: %w", err)
	}
	return nil
}

// FindByID returns a ledger row of a student or sql.ErrNoRows.
func (r *CreditRepository) FindByID(ctx context.Context, studentID, id string) (*models.CreditTransaction, error) {
	query := creditSelect + ` WHERE id = $1 AND student_id = $2`
	var tx models.CreditTransaction
	if err := r.db.GetContext(ctx, &tx, query, id, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find credit transaction: %w", err)
	}
	return &tx, nil
}

// ListByStudent returns the ledger of a student, newest first.
func (r *CreditRepository) ListByStudent(ctx context.Context, studentID string, filter models.CreditHistoryFilter) ([]models.CreditTransaction, error) {
	where := []exp.Expression{goqu.C("student_id").Eq(studentID)}
	if filter.Type != nil {
		where = append(where, goqu.C("type").Eq(string(*filter.Type)))
	}
	if filter.Action != nil {
		where = append(where, goqu.C("action").Eq(string(*filter.Action)))
	}
	if filter.From != nil {
		where = append(where, goqu.C("performed_at").Gte(*filter.From))
	}
	if filter.To != nil {
		where = append(where, goqu.C("performed_at").Lt(*filter.To))
	}

	ds := goqu.Dialect(dialectPostgres).
		From("credit_transactions").
		Select(creditColumns...).
		Where(where...).
		Order(goqu.C("performed_at").Desc(), goqu.C("id").Desc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build credit history query: %w", err)
	}

	var txs []models.CreditTransaction
	if err := r.db.SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, fmt.Errorf("list credit transactions: %w", err)
	}
	return txs, nil
}

// Consume marks an unused, unexpired row as used. It returns ErrNotApplied
// when no such row exists at now.
func (r *CreditRepository) Consume(ctx context.Context, exec sqlx.ExtContext, studentID, id string, classID *string, now time.Time) error {
	const query = `UPDATE credit_transactions
		SET used_at = $3, action = 'USED', class_id = COALESCE($4, class_id)
		WHERE id = $1 AND student_id = $2 AND used_at IS NULL AND expires_at > $3`
	res, err := r.exec(exec).ExecContext(ctx, query, id, studentID, now.UTC(), classID)
	if err != nil {
		return fmt.Errorf("consume credit: %w", err)
	}
	return requireOneRow(res, "consume credit")
}

// EarliestUsable locks and returns the usable credit of the given type that
// expires first, or sql.ErrNoRows when there is none.
func (r *CreditRepository) EarliestUsable(ctx context.Context, exec sqlx.ExtContext, studentID string, creditType models.CreditType, now time.Time) (*models.CreditTransaction, error) {
	query := creditSelect + ` WHERE student_id = $1 AND type = $2 AND used_at IS NULL AND expires_at > $3
		ORDER BY expires_at ASC, performed_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED`
	var tx models.CreditTransaction
	if err := sqlx.GetContext(ctx, r.exec(exec), &tx, query, studentID, creditType, now.UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find usable credit: %w", err)
	}
	return &tx, nil
}
