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

// VacationRepository persists teacher vacations.
type VacationRepository struct {
	db *sqlx.DB
}

// NewVacationRepository constructs the repository.
func NewVacationRepository(db *sqlx.DB) *VacationRepository {
	return &VacationRepository{db: db}
}

// Create stores a vacation.
func (r *VacationRepository) Create(ctx context.Context, vacation *models.Vacation) error {
	if vacation.ID == "" {
		vacation.ID = uuid.NewString()
	}
	vacation.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO teacher_vacations (id, teacher_id, start_date, end_date, created_at) VALUES (:id, :teacher_id, :start_date, :end_date, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, vacation); err != nil {
		return fmt.Errorf("create vacation: %w", err)
	}
	return nil
}

// FindByID returns a vacation or sql.ErrNoRows.
func (r *VacationRepository) FindByID(ctx context.Context, id string) (*models.Vacation, error) {
	const query = `SELECT id, teacher_id, start_date, end_date, created_at FROM teacher_vacations WHERE id = $1`
	var vacation models.Vacation
	if err := r.db.GetContext(ctx, &vacation, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find vacation: %w", err)
	}
	return &vacation, nil
}

// ListByTeacher returns a teacher's vacations ordered by start date.
func (r *VacationRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Vacation, error) {
	const query = `SELECT id, teacher_id, start_date, end_date, created_at FROM teacher_vacations WHERE teacher_id = $1 ORDER BY start_date`
	var vacations []models.Vacation
	if err := r.db.SelectContext(ctx, &vacations, query, teacherID); err != nil {
		return nil, fmt.Errorf("list vacations: %w", err)
	}
	return vacations, nil
}

// ListOverlapping returns the vacations of a teacher touching [from, to].
func (r *VacationRepository) ListOverlapping(ctx context.Context, teacherID string, from, to time.Time) ([]models.Vacation, error) {
	const query = `SELECT id, teacher_id, start_date, end_date, created_at FROM teacher_vacations
		WHERE teacher_id = $1 AND start_date <= $3::date AND end_date >= $2::date ORDER BY start_date`
	var vacations []models.Vacation
	if err := r.db.SelectContext(ctx, &vacations, query, teacherID, from, to); err != nil {
		return nil, fmt.Errorf("list overlapping vacations: %w", err)
	}
	return vacations, nil
}

// DeleteBeforeStart removes a vacation that has not started by now.
func (r *VacationRepository) DeleteBeforeStart(ctx context.Context, id string, now time.Time) error {
	const query = `DELETE FROM teacher_vacations WHERE id = $1 AND start_date > $2::date`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("delete vacation: %w", err)
	}
	return requireOneRow(res, "delete vacation")
}
