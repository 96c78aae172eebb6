package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lesson-engine/internal/models"
)

const dialectPostgres = "postgres"

// ErrNotApplied signals that a guarded write matched no row because the
// persisted state changed since it was read.
var ErrNotApplied = errors.New("conditional write not applied")

// ErrSlotTaken signals that the teacher already holds a scheduled class
// starting at the same instant.
var ErrSlotTaken = errors.New("teacher slot already booked")

// 23505 = unique_violation
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

var classColumns = []interface{}{
	"id", "student_id", "teacher_id", "language", "scheduled_at", "status", "notes",
	"rescheduled_from", "template_entry_id", "created_at", "updated_at",
}

const classSelect = `SELECT id, student_id, teacher_id, language, scheduled_at, status, notes, rescheduled_from, template_entry_id, created_at, updated_at FROM classes`

// ClassRepository persists class instances.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a class or sql.ErrNoRows.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := classSelect + ` WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find class: %w", err)
	}
	return &class, nil
}

// List returns classes matching the filter ordered by start time.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, error) {
	where := make([]exp.Expression, 0, 5)
	if filter.StudentID != "" {
		where = append(where, goqu.C("student_id").Eq(filter.StudentID))
	}
	if filter.TeacherID != "" {
		where = append(where, goqu.C("teacher_id").Eq(filter.TeacherID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, goqu.C("status").In(statuses))
	}
	if filter.From != nil {
		where = append(where, goqu.C("scheduled_at").Gte(*filter.From))
	}
	if filter.To != nil {
		where = append(where, goqu.C("scheduled_at").Lt(*filter.To))
	}

	query, args, err := goqu.Dialect(dialectPostgres).
		From("classes").
		Select(classColumns...).
		Where(where...).
		Order(goqu.C("scheduled_at").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list classes query: %w", err)
	}

	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// Insert stores a new class.
func (r *ClassRepository) Insert(ctx context.Context, exec sqlx.ExtContext, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, student_id, teacher_id, language, scheduled_at, status, notes, rescheduled_from, template_entry_id, created_at, updated_at)
		VALUES (:id, :student_id, :teacher_id, :language, :scheduled_at, :status, :notes, :rescheduled_from, :template_entry_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, class); err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert class: %w", err)
	}
	return nil
}

// InsertGenerated stores a template occurrence unless the student already has a
// generated class at that start time, or the teacher is booked then. It
// reports whether a row was created.
func (r *ClassRepository) InsertGenerated(ctx context.Context, exec sqlx.ExtContext, class *models.Class) (bool, error) {
	if class.TemplateEntryID == nil {
		return false, fmt.Errorf("generated class requires a template entry")
	}
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, student_id, teacher_id, language, scheduled_at, status, notes, rescheduled_from, template_entry_id, created_at, updated_at)
		VALUES (:id, :student_id, :teacher_id, :language, :scheduled_at, :status, :notes, :rescheduled_from, :template_entry_id, :created_at, :updated_at)
		ON CONFLICT DO NOTHING`
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, class)
	if err != nil {
		return false, fmt.Errorf("insert generated class: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert generated class rows affected: %w", err)
	}
	return affected == 1, nil
}

// UpdateStatus moves a class from expected to next. It returns ErrNotApplied
// when the class is no longer in the expected status.
func (r *ClassRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, expected, next models.ClassStatus) error {
	const query = `UPDATE classes SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.exec(exec).ExecContext(ctx, query, id, expected, next, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update class status: %w", err)
	}
	return requireOneRow(res, "update class status")
}

// UpdateTeacher reassigns the teacher of an open future class. Clearing the
// teacher is only applied while the class is SCHEDULED.
func (r *ClassRepository) UpdateTeacher(ctx context.Context, id string, teacherID *string, now time.Time) error {
	query := `UPDATE classes SET teacher_id = $2, updated_at = $3
		WHERE id = $1 AND scheduled_at > $3 AND status IN ('SCHEDULED', 'CANCELED_TEACHER_MAKEUP')`
	if teacherID == nil {
		query = `UPDATE classes SET teacher_id = $2, updated_at = $3
		WHERE id = $1 AND scheduled_at > $3 AND status = 'SCHEDULED'`
	}
	res, err := r.db.ExecContext(ctx, query, id, teacherID, now.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("update class teacher: %w", err)
	}
	return requireOneRow(res, "update class teacher")
}

// LockTeacherSchedule serialises schedule writes for one teacher until the
// surrounding transaction ends.
func (r *ClassRepository) LockTeacherSchedule(ctx context.Context, exec sqlx.ExtContext, teacherID string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, teacherID); err != nil {
		return fmt.Errorf("lock teacher schedule: %w", err)
	}
	return nil
}

// CountTeacherOverlaps counts the teacher's SCHEDULED classes other than
// excludeID whose [scheduled_at, scheduled_at+duration) overlaps [start, start+duration).
func (r *ClassRepository) CountTeacherOverlaps(ctx context.Context, exec sqlx.ExtContext, teacherID, excludeID string, start time.Time, duration time.Duration) (int, error) {
	const query = `SELECT COUNT(*) FROM classes
		WHERE teacher_id = $1 AND status = 'SCHEDULED' AND id <> $2 AND scheduled_at > $3 AND scheduled_at < $4`
	var count int
	from, to := start.Add(-duration).UTC(), start.Add(duration).UTC()
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, teacherID, excludeID, from, to); err != nil {
		return 0, fmt.Errorf("count teacher overlaps: %w", err)
	}
	return count, nil
}

// DeleteGenerated removes future SCHEDULED classes produced from a student's
// template within the requested range and returns how many were removed.
func (r *ClassRepository) DeleteGenerated(ctx context.Context, exec sqlx.ExtContext, studentID string, req models.DeleteClassesRequest, now time.Time) (int64, error) {
	where := []exp.Expression{
		goqu.C("student_id").Eq(studentID),
		goqu.C("status").Eq(string(models.ClassScheduled)),
		goqu.C("template_entry_id").IsNotNull(),
		goqu.C("scheduled_at").Gt(now.UTC()),
	}
	switch req.Option {
	case models.DeleteAll:
	case models.DeleteFromDate:
		if req.FromDate == nil {
			return 0, fmt.Errorf("from-date option requires fromDate")
		}
		where = append(where, goqu.C("scheduled_at").Gte(req.FromDate.UTC()))
	case models.DeleteDateRange:
		if req.FromDate == nil || req.ToDate == nil {
			return 0, fmt.Errorf("date-range option requires fromDate and toDate")
		}
		where = append(where,
			goqu.C("scheduled_at").Gte(req.FromDate.UTC()),
			goqu.C("scheduled_at").Lt(req.ToDate.UTC()),
		)
	default:
		return 0, fmt.Errorf("unknown delete option %q", req.Option)
	}
	if len(req.TemplateEntries) > 0 {
		where = append(where, goqu.C("template_entry_id").In(req.TemplateEntries))
	}

	query, args, err := goqu.Dialect(dialectPostgres).
		Delete("classes").
		Where(where...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build delete classes query: %w", err)
	}

	res, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete generated classes: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete generated classes rows affected: %w", err)
	}
	return affected, nil
}

func requireOneRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return ErrNotApplied
	}
	return nil
}
