package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-engine/internal/authz"
	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/internal/repository"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
	"github.com/noah-isme/lesson-engine/pkg/export"
)

type classRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, class *models.Class) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, expected, next models.ClassStatus) error
	UpdateTeacher(ctx context.Context, id string, teacherID *string, now time.Time) error
}

type userLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type makeupCreditGranter interface {
	grantMakeupCredit(ctx context.Context, exec sqlx.ExtContext, class *models.Class, actor *models.JWTClaims) (*models.CreditTransaction, error)
}

type calendarRenderer interface {
	Render(calName string, events []export.CalendarEvent) ([]byte, error)
}

// ClassServiceConfig carries scheduling constants.
type ClassServiceConfig struct {
	ClassDuration time.Duration
	Location      *time.Location
}

// ClassService manages the lifecycle of class instances.
type ClassService struct {
	classes  classRepository
	users    userLookup
	credits  makeupCreditGranter
	tx       txProvider
	notifier notifier
	metrics  *MetricsService
	calendar calendarRenderer
	cfg      ClassServiceConfig
	logger   *zap.Logger
	now      clock
}

// NewClassService builds the service.
func NewClassService(classes classRepository, users userLookup, credits makeupCreditGranter, tx txProvider, notifier notifier, metrics *MetricsService, cfg ClassServiceConfig, logger *zap.Logger) *ClassService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ClassDuration <= 0 {
		cfg.ClassDuration = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ClassService{
		classes:  classes,
		users:    users,
		credits:  credits,
		tx:       tx,
		notifier: orNoop(notifier),
		metrics:  metrics,
		calendar: export.NewICSExporter(""),
		cfg:      cfg,
		logger:   logger,
		now:      systemClock,
	}
}

func loadClass(ctx context.Context, classes classRepository, id string) (*models.Class, error) {
	class, err := classes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}
	return class, nil
}

func classResource(class *models.Class) authz.Resource {
	return authz.Resource{StudentID: class.StudentID, TeacherID: class.AssignedTeacher()}
}

// Get returns a class visible to the actor.
func (s *ClassService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Class, error) {
	class, err := loadClass(ctx, s.classes, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(actor, authz.ClassView, classResource(class)); err != nil {
		return nil, err
	}
	return class, nil
}

// ListByStudent returns the classes of a student between from and to.
func (s *ClassService) ListByStudent(ctx context.Context, studentID string, from, to *time.Time, actor *models.JWTClaims) ([]models.Class, error) {
	if err := authz.Require(actor, authz.ClassView, authz.Resource{StudentID: studentID}); err != nil {
		return nil, err
	}
	if from != nil && to != nil && !to.After(*from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must be after from")
	}
	classes, err := s.classes.List(ctx, models.ClassFilter{StudentID: studentID, From: from, To: to})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list classes")
	}
	if classes == nil {
		classes = []models.Class{}
	}
	return classes, nil
}

// CalendarFeed renders the student's classes as an iCalendar document.
func (s *ClassService) CalendarFeed(ctx context.Context, studentID string, actor *models.JWTClaims) ([]byte, error) {
	from := s.now().AddDate(0, -1, 0)
	classes, err := s.ListByStudent(ctx, studentID, &from, nil, actor)
	if err != nil {
		return nil, err
	}

	events := make([]export.CalendarEvent, 0, len(classes))
	for _, class := range classes {
		if class.Status == models.ClassRescheduled {
			continue
		}
		events = append(events, export.CalendarEvent{
			UID:         class.ID,
			Summary:     fmt.Sprintf("%s class", class.Language),
			Description: string(class.Status),
			Start:       class.ScheduledAt,
			End:         class.ScheduledAt.Add(s.cfg.ClassDuration),
			Cancelled:   class.Status != models.ClassScheduled && class.Status != models.ClassCompleted,
			Updated:     class.UpdatedAt,
		})
	}

	body, err := s.calendar.Render("Classes", events)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render calendar")
	}
	return body, nil
}

// AssignTeacher sets or clears the teacher of an open future class.
func (s *ClassService) AssignTeacher(ctx context.Context, classID string, teacherID *string, actor *models.JWTClaims) (*models.Class, error) {
	class, err := loadClass(ctx, s.classes, classID)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(actor, authz.ClassAssignTeacher, classResource(class)); err != nil {
		return nil, err
	}
	if class.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("class is %s", class.Status))
	}
	now := s.now()
	if !class.ScheduledAt.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot assign a teacher to a past class")
	}
	if teacherID != nil && *teacherID == "" {
		teacherID = nil
	}
	if teacherID == nil && class.Status != models.ClassScheduled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher can only be cleared while the class is scheduled")
	}
	if teacherID != nil {
		teacher, err := s.users.FindByID(ctx, *teacherID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
			}
			return nil, appErrors.Internal(err, "failed to load teacher")
		}
		if teacher.Role != models.RoleTeacher || !teacher.Active {
			return nil, appErrors.Clone(appErrors.ErrValidation, "user is not an active teacher")
		}
	}

	if err := s.classes.UpdateTeacher(ctx, classID, teacherID, now); err != nil {
		if errors.Is(err, repository.ErrNotApplied) {
			return nil, appErrors.Conflict(appErrors.ReasonConcurrentUpdate, "class changed while assigning teacher")
		}
		if errors.Is(err, repository.ErrSlotTaken) {
			return nil, appErrors.Conflict(appErrors.ReasonSlotTaken, "teacher already has a class at this time")
		}
		return nil, appErrors.Internal(err, "failed to assign teacher")
	}

	previous := class.AssignedTeacher()
	class.TeacherID = teacherID
	class.UpdatedAt = now

	when := formatSlot(class.ScheduledAt, s.cfg.Location)
	if previous != "" && previous != class.AssignedTeacher() {
		s.notifier.Notify(ctx, Notification{
			Kind:    NotifyTeacherUnassigned,
			UserIDs: []string{previous},
			Subject: "Class unassigned",
			Body:    fmt.Sprintf("You are no longer teaching the %s class on %s.", class.Language, when),
		})
	}
	if class.AssignedTeacher() != "" && previous != class.AssignedTeacher() {
		s.notifier.Notify(ctx, Notification{
			Kind:    NotifyTeacherAssigned,
			UserIDs: []string{class.AssignedTeacher()},
			Subject: "New class assigned",
			Body:    fmt.Sprintf("You have been assigned the %s class on %s.", class.Language, when),
		})
	}
	s.notifier.Notify(ctx, Notification{
		Kind:    NotifyTeacherAssigned,
		UserIDs: []string{class.StudentID},
		Subject: "Your teacher changed",
		Body:    fmt.Sprintf("The teacher of your %s class on %s has changed.", class.Language, when),
	})

	return class, nil
}

// MarkStatus applies a status transition permitted by the transition table.
func (s *ClassService) MarkStatus(ctx context.Context, classID string, next models.ClassStatus, actor *models.JWTClaims) (*models.Class, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !next.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown class status")
	}
	if next == models.ClassRescheduled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "use the reschedule flow to move a class")
	}

	class, err := loadClass(ctx, s.classes, classID)
	if err != nil {
		return nil, err
	}
	if class.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("class is already %s", class.Status))
	}
	action, ok := transitionAction(class.Status, next)
	if !ok {
		return nil, appErrors.Conflict(appErrors.ReasonInvalidTransition, fmt.Sprintf("cannot move class from %s to %s", class.Status, next))
	}
	if err := authz.Require(actor, action, classResource(class)); err != nil {
		return nil, err
	}

	effect := EffectNone
	if next == models.ClassCanceledTeacherMakeup {
		effect = creditEffect(EventTeacherMakeupCancel, actor.Role)
	}

	from := class.Status
	if err := s.commitTransition(ctx, class, next, effect, actor); err != nil {
		return nil, err
	}

	class.Status = next
	class.UpdatedAt = s.now()
	s.metrics.RecordClassTransition(from, next)
	if effect == EffectGrantMakeupCredit {
		s.metrics.RecordCreditEvent(models.CreditGranted, models.CreditTeacherCancellation)
	}

	s.notifier.Notify(ctx, Notification{
		Kind:    NotifyClassStatus,
		UserIDs: []string{class.StudentID, class.AssignedTeacher()},
		Subject: "Class status updated",
		Body:    fmt.Sprintf("The %s class on %s is now %s.", class.Language, formatSlot(class.ScheduledAt, s.cfg.Location), next),
	})
	return class, nil
}

func (s *ClassService) commitTransition(ctx context.Context, class *models.Class, next models.ClassStatus, effect CreditEffect, actor *models.JWTClaims) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Internal(err, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			rollback(tx, s.logger)
		}
	}()

	if err = s.classes.UpdateStatus(ctx, tx, class.ID, class.Status, next); err != nil {
		if errors.Is(err, repository.ErrNotApplied) {
			return appErrors.Conflict(appErrors.ReasonConcurrentUpdate, "class status changed concurrently")
		}
		return appErrors.Internal(err, "failed to update class status")
	}

	if effect == EffectGrantMakeupCredit {
		if _, err = s.credits.grantMakeupCredit(ctx, tx, class, actor); err != nil {
			return appErrors.Internal(err, "failed to grant makeup credit")
		}
	}

	if err = tx.Commit(); err != nil {
		return appErrors.Internal(err, "failed to commit class status")
	}
	return nil
}

// Cancel maps the actor's role to a cancellation status and applies it.
func (s *ClassService) Cancel(ctx context.Context, classID string, actor *models.JWTClaims) (*models.Class, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	status, ok := cancelStatusFor(actor.Role)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot cancel classes")
	}
	return s.MarkStatus(ctx, classID, status, actor)
}
