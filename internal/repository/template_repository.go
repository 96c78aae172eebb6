package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-engine/internal/models"
)

const templateSelect = `SELECT id, student_id, day_of_week, hour, minute, teacher_id, language, created_at, updated_at FROM class_template_entries`

// TemplateRepository persists weekly schedule templates.
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository constructs the repository.
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByStudent returns a student's entries ordered by weekday and time.
func (r *TemplateRepository) ListByStudent(ctx context.Context, studentID string) ([]models.TemplateEntry, error) {
	query := templateSelect + ` WHERE student_id = $1 ORDER BY day_of_week, hour, minute`
	var entries []models.TemplateEntry
	if err := r.db.SelectContext(ctx, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("list template entries: %w", err)
	}
	return entries, nil
}

// ListByTeacherAt returns every entry a teacher holds at the given weekday and time.
func (r *TemplateRepository) ListByTeacherAt(ctx context.Context, teacherID string, day, hour, minute int) ([]models.TemplateEntry, error) {
	query := templateSelect + ` WHERE teacher_id = $1 AND day_of_week = $2 AND hour = $3 AND minute = $4`
	var entries []models.TemplateEntry
	if err := r.db.SelectContext(ctx, &entries, query, teacherID, day, hour, minute); err != nil {
		return nil, fmt.Errorf("list teacher template entries: %w", err)
	}
	return entries, nil
}

// Insert stores a single entry.
func (r *TemplateRepository) Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.TemplateEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	const query = `INSERT INTO class_template_entries (id, student_id, day_of_week, hour, minute, teacher_id, language, created_at, updated_at)
		VALUES (:id, :student_id, :day_of_week, :hour, :minute, :teacher_id, :language, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, entry); err != nil {
		return fmt.Errorf("insert template entry: %w", err)
	}
	return nil
}

// DeleteByStudent removes all entries of a student and returns their ids.
func (r *TemplateRepository) DeleteByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]string, error) {
	const query = `DELETE FROM class_template_entries WHERE student_id = $1 RETURNING id`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, studentID); err != nil {
		return nil, fmt.Errorf("delete template entries: %w", err)
	}
	return ids, nil
}
