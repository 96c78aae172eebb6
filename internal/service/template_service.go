package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-engine/internal/authz"
	"github.com/noah-isme/lesson-engine/internal/models"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
)

type templateRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.TemplateEntry, error)
	ListByTeacherAt(ctx context.Context, teacherID string, day, hour, minute int) ([]models.TemplateEntry, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.TemplateEntry) error
	DeleteByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]string, error)
}

type generatedClassWriter interface {
	InsertGenerated(ctx context.Context, exec sqlx.ExtContext, class *models.Class) (bool, error)
	DeleteGenerated(ctx context.Context, exec sqlx.ExtContext, studentID string, req models.DeleteClassesRequest, now time.Time) (int64, error)
}

type slotFinder interface {
	FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error)
}

type contractGate interface {
	RequireValid(ctx context.Context, userID string) error
}

// TemplateConfig carries generation constants.
type TemplateConfig struct {
	GenerationWeeks int
	ClassDuration   time.Duration
	Location        *time.Location
}

// TemplateService manages weekly templates and expands them into classes.
type TemplateService struct {
	templates templateRepository
	classes   generatedClassWriter
	slots     slotFinder
	vacations vacationLister
	contracts contractGate
	tx        txProvider
	metrics   *MetricsService
	cfg       TemplateConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       clock
}

// NewTemplateService builds the service.
func NewTemplateService(templates templateRepository, classes generatedClassWriter, slots slotFinder, vacations vacationLister, contracts contractGate, tx txProvider, metrics *MetricsService, cfg TemplateConfig, validate *validator.Validate, logger *zap.Logger) *TemplateService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GenerationWeeks <= 0 {
		cfg.GenerationWeeks = 4
	}
	if cfg.ClassDuration <= 0 {
		cfg.ClassDuration = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &TemplateService{
		templates: templates,
		classes:   classes,
		slots:     slots,
		vacations: vacations,
		contracts: contracts,
		tx:        tx,
		metrics:   metrics,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       systemClock,
	}
}

// Get returns the weekly template of a student.
func (s *TemplateService) Get(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.Template, error) {
	if err := authz.Require(actor, authz.TemplateView, authz.Resource{StudentID: studentID}); err != nil {
		return nil, err
	}
	entries, err := s.templates.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load template")
	}
	if entries == nil {
		entries = []models.TemplateEntry{}
	}
	return &models.Template{StudentID: studentID, Days: entries}, nil
}

// Replace swaps the student's template for days. Future generated classes of
// the previous entries are removed in the same transaction.
func (s *TemplateService) Replace(ctx context.Context, studentID string, days []models.TemplateEntry, actor *models.JWTClaims) (*models.Template, error) {
	if err := authz.Require(actor, authz.TemplateManage, authz.Resource{StudentID: studentID}); err != nil {
		return nil, err
	}

	current, err := s.templates.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load template")
	}
	// An entry keeps its id while its weekday and start time stay in the template.
	existing := make(map[string]string, len(current))
	for _, entry := range current {
		existing[entryKey(entry)] = entry.ID
	}

	seen := make(map[string]struct{}, len(days))
	for i := range days {
		entry := &days[i]
		entry.ID = ""
		entry.StudentID = studentID
		entry.TeacherID = strings.TrimSpace(entry.TeacherID)
		entry.Language = strings.TrimSpace(entry.Language)
		if err := s.validator.Struct(entry); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid template entry %d", i))
		}
		key := entryKey(*entry)
		if _, dup := seen[key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate entry for day %d at %s", entry.DayOfWeek, entry.StartTime()))
		}
		seen[key] = struct{}{}
		entry.ID = existing[key]
	}

	now := s.now()
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.clear(ctx, tx, studentID, now); err != nil {
			return err
		}
		for i := range days {
			if err := s.templates.Insert(ctx, tx, &days[i]); err != nil {
				return appErrors.Internal(err, "failed to store template entry")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.Template{StudentID: studentID, Days: days}, nil
}

func entryKey(entry models.TemplateEntry) string {
	return fmt.Sprintf("%d-%s", entry.DayOfWeek, entry.StartTime())
}

// Delete removes the template and its future generated classes.
func (s *TemplateService) Delete(ctx context.Context, studentID string, actor *models.JWTClaims) (int64, error) {
	if err := authz.Require(actor, authz.TemplateManage, authz.Resource{StudentID: studentID}); err != nil {
		return 0, err
	}
	var removed int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		removed, err = s.clear(ctx, tx, studentID, s.now())
		return err
	})
	return removed, err
}

func (s *TemplateService) clear(ctx context.Context, tx *sqlx.Tx, studentID string, now time.Time) (int64, error) {
	ids, err := s.templates.DeleteByStudent(ctx, tx, studentID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to delete template")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	removed, err := s.classes.DeleteGenerated(ctx, tx, studentID, models.DeleteClassesRequest{Option: models.DeleteAll, TemplateEntries: ids}, now)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to delete generated classes")
	}
	return removed, nil
}

// Generate expands the template into classes for the configured number of
// weeks. Existing occurrences are skipped, so repeated runs create nothing new.
func (s *TemplateService) Generate(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.GenerationResult, error) {
	if err := authz.Require(actor, authz.ClassesGenerate, authz.Resource{StudentID: studentID}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	if err := s.contracts.RequireValid(ctx, studentID); err != nil {
		return nil, err
	}

	entries, err := s.templates.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load template")
	}

	now := s.now()
	local := now.In(s.cfg.Location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.cfg.Location)
	until := today.AddDate(0, 0, 7*s.cfg.GenerationWeeks)

	result := &models.GenerationResult{StudentID: studentID}
	vacationsByTeacher := make(map[string][]models.Vacation)
	for _, entry := range entries {
		vacations, ok := vacationsByTeacher[entry.TeacherID]
		if !ok {
			vacations, err = s.vacations.ListOverlapping(ctx, entry.TeacherID, today, until)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to load teacher vacations")
			}
			vacationsByTeacher[entry.TeacherID] = vacations
		}

		for _, start := range occurrences(entry, today, until, s.cfg.Location) {
			if !start.After(now) {
				continue
			}
			teacherID := entry.TeacherID
			entryID := entry.ID
			class := &models.Class{
				StudentID:       studentID,
				TeacherID:       &teacherID,
				Language:        entry.Language,
				ScheduledAt:     start.UTC(),
				Status:          models.ClassScheduled,
				TemplateEntryID: &entryID,
			}
			onLeave := onVacation(vacations, start, start.Add(s.cfg.ClassDuration))
			if onLeave {
				class.Status = models.ClassTeacherVacation
			}
			created, err := s.classes.InsertGenerated(ctx, nil, class)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to create class")
			}
			switch {
			case !created:
				result.Skipped++
			case onLeave:
				result.Created++
				result.OnLeave++
			default:
				result.Created++
			}
		}
	}

	s.metrics.RecordGeneration(*result)
	s.logger.Info("classes generated",
		zap.String("student_id", studentID),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("on_leave", result.OnLeave),
	)
	return result, nil
}

// occurrences lists the start instants of entry in [from, until).
func occurrences(entry models.TemplateEntry, from, until time.Time, loc *time.Location) []time.Time {
	var result []time.Time
	for day := from; day.Before(until); day = day.AddDate(0, 0, 1) {
		if int(day.Weekday()) != entry.DayOfWeek {
			continue
		}
		result = append(result, time.Date(day.Year(), day.Month(), day.Day(), entry.Hour, entry.Minute, 0, 0, loc))
	}
	return result
}

// DeleteClasses removes generated SCHEDULED classes in the requested range.
func (s *TemplateService) DeleteClasses(ctx context.Context, studentID string, req models.DeleteClassesRequest, actor *models.JWTClaims) (int64, error) {
	if err := authz.Require(actor, authz.TemplateManage, authz.Resource{StudentID: studentID}); err != nil {
		return 0, err
	}
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid delete payload")
	}
	switch req.Option {
	case models.DeleteFromDate:
		if req.FromDate == nil {
			return 0, appErrors.Clone(appErrors.ErrValidation, "fromDate is required")
		}
	case models.DeleteDateRange:
		if req.FromDate == nil || req.ToDate == nil {
			return 0, appErrors.Clone(appErrors.ErrValidation, "fromDate and toDate are required")
		}
		if !req.ToDate.After(*req.FromDate) {
			return 0, appErrors.Clone(appErrors.ErrValidation, "toDate must be after fromDate")
		}
	}

	removed, err := s.classes.DeleteGenerated(ctx, nil, studentID, req, s.now())
	if err != nil {
		return 0, appErrors.Internal(err, "failed to delete classes")
	}
	return removed, nil
}

// AssignSchedule books one of the teacher's availability slots into a
// student's template.
func (s *TemplateService) AssignSchedule(ctx context.Context, req models.AssignScheduleRequest, actor *models.JWTClaims) (*models.TemplateEntry, error) {
	if err := authz.Require(actor, authz.ScheduleAssign, authz.Resource{StudentID: req.StudentID, TeacherID: req.TeacherID}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	hour, minute, err := models.ParseClock(req.StartTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	slot, err := s.slots.FindByID(ctx, req.SlotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "availability slot not found")
		}
		return nil, appErrors.Internal(err, "failed to load availability slot")
	}
	slotHour, slotMinute, err := models.ParseClock(slot.StartTime)
	if err != nil {
		return nil, appErrors.Internal(err, "stored availability slot is malformed")
	}
	if slot.TeacherID != req.TeacherID || slot.DayOfWeek != req.Day || slotHour != hour || slotMinute != minute {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot does not match teacher, day and start time")
	}

	taken, err := s.templates.ListByTeacherAt(ctx, req.TeacherID, req.Day, hour, minute)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check teacher schedule")
	}
	if len(taken) > 0 {
		return nil, appErrors.Conflict(appErrors.ReasonSlotTaken, "teacher already teaches at this time")
	}

	existing, err := s.templates.ListByStudent(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load template")
	}
	for _, entry := range existing {
		if entry.DayOfWeek == req.Day && entry.Hour == hour && entry.Minute == minute {
			return nil, appErrors.Conflict(appErrors.ReasonSlotTaken, "student already has a class at this time")
		}
	}

	entry := &models.TemplateEntry{
		StudentID: req.StudentID,
		DayOfWeek: req.Day,
		Hour:      hour,
		Minute:    minute,
		TeacherID: req.TeacherID,
		Language:  strings.TrimSpace(req.Language),
	}
	if err := s.templates.Insert(ctx, nil, entry); err != nil {
		return nil, appErrors.Internal(err, "failed to store template entry")
	}
	return entry, nil
}

func (s *TemplateService) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Internal(err, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			rollback(tx, s.logger)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Internal(err, "failed to commit template")
	}
	return nil
}
