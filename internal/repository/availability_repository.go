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

// AvailabilityRepository persists teacher weekly availability slots.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// ListByTeacher returns the slots of a teacher ordered by weekday and time.
func (r *AvailabilityRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilitySlot, error) {
	const query = `SELECT id, teacher_id, day_of_week, start_time, created_at FROM teacher_availability WHERE teacher_id = $1 ORDER BY day_of_week, start_time`
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher availability: %w", err)
	}
	return slots, nil
}

// FindByID returns a slot or sql.ErrNoRows.
func (r *AvailabilityRepository) FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	const query = `SELECT id, teacher_id, day_of_week, start_time, created_at FROM teacher_availability WHERE id = $1`
	var slot models.AvailabilitySlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find availability slot: %w", err)
	}
	return &slot, nil
}

// Replace swaps every slot of a teacher inside one transaction.
func (r *AvailabilityRepository) Replace(ctx context.Context, teacherID string, slots []models.AvailabilitySlot) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace availability: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM teacher_availability WHERE teacher_id = $1`, teacherID); err != nil {
		return fmt.Errorf("clear teacher availability: %w", err)
	}

	now := time.Now().UTC()
	const insert = `INSERT INTO teacher_availability (id, teacher_id, day_of_week, start_time, created_at) VALUES (:id, :teacher_id, :day_of_week, :start_time, :created_at)`
	for i := range slots {
		slots[i].TeacherID = teacherID
		if slots[i].ID == "" {
			slots[i].ID = uuid.NewString()
		}
		slots[i].CreatedAt = now
		if _, err = tx.NamedExecContext(ctx, insert, &slots[i]); err != nil {
			return fmt.Errorf("insert availability slot: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace availability: %w", err)
	}
	return nil
}
