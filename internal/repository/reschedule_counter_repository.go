package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// RescheduleCounterRepository tracks how many reschedules a student used per month.
type RescheduleCounterRepository struct {
	db *sqlx.DB
}

// NewRescheduleCounterRepository constructs the repository.
func NewRescheduleCounterRepository(db *sqlx.DB) *RescheduleCounterRepository {
	return &RescheduleCounterRepository{db: db}
}

// Count returns the reschedules used in period, zero when none.
func (r *RescheduleCounterRepository) Count(ctx context.Context, studentID, period string) (int, error) {
	const query = `SELECT count FROM reschedule_counters WHERE student_id = $1 AND period = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, period); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get reschedule counter: %w", err)
	}
	return count, nil
}

// Increment bumps the counter while it stays below quota. It returns
// ErrNotApplied once the quota is exhausted.
func (r *RescheduleCounterRepository) Increment(ctx context.Context, exec sqlx.ExtContext, studentID, period string, quota int) (int, error) {
	if quota <= 0 {
		return 0, ErrNotApplied
	}
	const query = `INSERT INTO reschedule_counters (student_id, period, count, updated_at) VALUES ($1, $2, 1, $4)
		ON CONFLICT (student_id, period) DO UPDATE SET count = reschedule_counters.count + 1, updated_at = EXCLUDED.updated_at
		WHERE reschedule_counters.count < $3
		RETURNING count`
	target := exec
	if target == nil {
		target = r.db
	}
	var count int
	if err := sqlx.GetContext(ctx, target, &count, query, studentID, period, quota, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotApplied
		}
		return 0, fmt.Errorf("increment reschedule counter: %w", err)
	}
	return count, nil
}
