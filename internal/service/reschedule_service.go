package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-engine/internal/authz"
	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/internal/repository"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
)

type availabilityLister interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilitySlot, error)
}

// rescheduleClassStore re-validates the teacher's calendar inside the
// reschedule transaction.
type rescheduleClassStore interface {
	classRepository
	LockTeacherSchedule(ctx context.Context, exec sqlx.ExtContext, teacherID string) error
	CountTeacherOverlaps(ctx context.Context, exec sqlx.ExtContext, teacherID, excludeID string, start time.Time, duration time.Duration) (int, error)
}

type vacationLister interface {
	ListOverlapping(ctx context.Context, teacherID string, from, to time.Time) ([]models.Vacation, error)
}

type rescheduleCounter interface {
	Count(ctx context.Context, studentID, period string) (int, error)
	Increment(ctx context.Context, exec sqlx.ExtContext, studentID, period string, quota int) (int, error)
}

type makeupCreditConsumer interface {
	consumeMakeupCredit(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.CreditTransaction, error)
}

// RescheduleConfig carries the reschedule constants.
type RescheduleConfig struct {
	LookaheadWeeks int
	MinLeadTime    time.Duration
	MonthlyQuota   int
	ClassDuration  time.Duration
	Location       *time.Location
}

// RescheduleService resolves and applies class reschedules.
type RescheduleService struct {
	classes      rescheduleClassStore
	availability availabilityLister
	vacations    vacationLister
	counters     rescheduleCounter
	credits      makeupCreditConsumer
	tx           txProvider
	notifier     notifier
	metrics      *MetricsService
	cfg          RescheduleConfig
	logger       *zap.Logger
	now          clock
}

// NewRescheduleService builds the service.
func NewRescheduleService(classes rescheduleClassStore, availability availabilityLister, vacations vacationLister, counters rescheduleCounter, credits makeupCreditConsumer, tx txProvider, notifier notifier, metrics *MetricsService, cfg RescheduleConfig, logger *zap.Logger) *RescheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LookaheadWeeks <= 0 {
		cfg.LookaheadWeeks = 2
	}
	if cfg.ClassDuration <= 0 {
		cfg.ClassDuration = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &RescheduleService{
		classes:      classes,
		availability: availability,
		vacations:    vacations,
		counters:     counters,
		credits:      credits,
		tx:           tx,
		notifier:     orNoop(notifier),
		metrics:      metrics,
		cfg:          cfg,
		logger:       logger,
		now:          systemClock,
	}
}

type rescheduleContext struct {
	class      *models.Class
	makeup     bool
	period     string
	remaining  int
	candidates []time.Time
}

// Options lists the slots the class can move to.
func (s *RescheduleService) Options(ctx context.Context, classID string, actor *models.JWTClaims) (*models.RescheduleOptions, error) {
	rc, err := s.resolve(ctx, classID, actor)
	if err != nil {
		return nil, err
	}
	return &models.RescheduleOptions{
		ClassID:          rc.class.ID,
		Candidates:       rc.candidates,
		NoSlotsAvailable: len(rc.candidates) == 0,
		UsesMakeupCredit: rc.makeup,
		RemainingQuota:   rc.remaining,
	}, nil
}

// Confirm moves the class to scheduledAt if it is still a candidate.
func (s *RescheduleService) Confirm(ctx context.Context, classID string, scheduledAt time.Time, actor *models.JWTClaims) (*models.RescheduleResult, error) {
	if scheduledAt.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scheduledAt is required")
	}
	rc, err := s.resolve(ctx, classID, actor)
	if err != nil {
		return nil, err
	}
	if !containsInstant(rc.candidates, scheduledAt) {
		return nil, appErrors.Conflict(appErrors.ReasonSlotTaken, "slot no longer available")
	}

	original := rc.class
	now := s.now()
	moved := &models.Class{
		StudentID:       original.StudentID,
		TeacherID:       original.TeacherID,
		Language:        original.Language,
		ScheduledAt:     scheduledAt.UTC(),
		Status:          models.ClassScheduled,
		RescheduledFrom: stringPtr(original.ID),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	event := EventNormalReschedule
	if rc.makeup {
		event = EventMakeupReschedule
	}
	effect := creditEffect(event, actor.Role)

	used, err := s.commit(ctx, original, moved, rc.period, effect)
	if err != nil {
		return nil, err
	}

	from := original.Status
	original.Status = models.ClassRescheduled
	original.UpdatedAt = now
	s.metrics.RecordClassTransition(from, models.ClassRescheduled)
	s.metrics.RecordReschedule(rc.makeup)
	if used != nil {
		s.metrics.RecordCreditEvent(models.CreditUsed, used.Type)
	}

	s.notifier.Notify(ctx, Notification{
		Kind:    NotifyClassRescheduled,
		UserIDs: []string{original.StudentID, original.AssignedTeacher()},
		Subject: "Class rescheduled",
		Body: fmt.Sprintf("The %s class on %s moved to %s.", original.Language,
			formatSlot(original.ScheduledAt, s.cfg.Location), formatSlot(moved.ScheduledAt, s.cfg.Location)),
	})

	result := &models.RescheduleResult{Original: original, Rescheduled: moved, UsesMakeupCredit: rc.makeup}
	if used != nil {
		result.UsedCreditID = stringPtr(used.ID)
	}
	return result, nil
}

func (s *RescheduleService) commit(ctx context.Context, original, moved *models.Class, period string, effect CreditEffect) (used *models.CreditTransaction, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			rollback(tx, s.logger)
		}
	}()

	teacherID := moved.AssignedTeacher()
	if err = s.classes.LockTeacherSchedule(ctx, tx, teacherID); err != nil {
		return nil, appErrors.Internal(err, "failed to lock teacher schedule")
	}
	overlaps, err := s.classes.CountTeacherOverlaps(ctx, tx, teacherID, original.ID, moved.ScheduledAt, s.cfg.ClassDuration)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check teacher schedule")
	}
	if overlaps > 0 {
		return nil, appErrors.Conflict(appErrors.ReasonSlotTaken, "slot no longer available")
	}
	if err = s.classes.Insert(ctx, tx, moved); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return nil, appErrors.Conflict(appErrors.ReasonSlotTaken, "slot no longer available")
		}
		return nil, appErrors.Internal(err, "failed to create rescheduled class")
	}
	if err = s.classes.UpdateStatus(ctx, tx, original.ID, original.Status, models.ClassRescheduled); err != nil {
		if errors.Is(err, repository.ErrNotApplied) {
			return nil, appErrors.Conflict(appErrors.ReasonConcurrentUpdate, "class status changed concurrently")
		}
		return nil, appErrors.Internal(err, "failed to update original class")
	}

	switch effect {
	case EffectConsumeMonthlyQuota:
		if _, err = s.counters.Increment(ctx, tx, original.StudentID, period, s.cfg.MonthlyQuota); err != nil {
			if errors.Is(err, repository.ErrNotApplied) {
				return nil, appErrors.Conflict(appErrors.ReasonQuotaExhausted, "monthly reschedule quota exhausted")
			}
			return nil, appErrors.Internal(err, "failed to update reschedule counter")
		}
	case EffectConsumeMakeupCredit:
		used, err = s.credits.consumeMakeupCredit(ctx, tx, original.StudentID, moved.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotApplied) {
				return nil, appErrors.Conflict(appErrors.ReasonConcurrentUpdate, "makeup credit was used concurrently")
			}
			return nil, appErrors.Internal(err, "failed to consume makeup credit")
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Internal(err, "failed to commit reschedule")
	}
	return used, nil
}

func (s *RescheduleService) resolve(ctx context.Context, classID string, actor *models.JWTClaims) (*rescheduleContext, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	class, err := loadClass(ctx, s.classes, classID)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(actor, authz.ClassReschedule, classResource(class)); err != nil {
		return nil, err
	}
	if !canReschedule(class.Status) {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("class is %s", class.Status))
	}
	teacherID := class.AssignedTeacher()
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class has no assigned teacher")
	}

	rc := &rescheduleContext{
		class:  class,
		makeup: class.Status == models.ClassCanceledTeacherMakeup,
		period: class.ScheduledAt.In(s.cfg.Location).Format("2006-01"),
	}
	if !rc.makeup {
		used, err := s.counters.Count(ctx, class.StudentID, rc.period)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load reschedule counter")
		}
		rc.remaining = s.cfg.MonthlyQuota - used
		if rc.remaining <= 0 {
			return nil, appErrors.Conflict(appErrors.ReasonQuotaExhausted, "monthly reschedule quota exhausted")
		}
	}

	rc.candidates, err = s.candidates(ctx, class, teacherID)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (s *RescheduleService) candidates(ctx context.Context, class *models.Class, teacherID string) ([]time.Time, error) {
	slots, err := s.availability.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load teacher availability")
	}

	now := s.now()
	horizon := now.AddDate(0, 0, 7*s.cfg.LookaheadWeeks)
	earliest := now.Add(s.cfg.MinLeadTime)

	vacations, err := s.vacations.ListOverlapping(ctx, teacherID, now, horizon)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load teacher vacations")
	}
	busyTo := horizon.Add(s.cfg.ClassDuration)
	busy, err := s.classes.List(ctx, models.ClassFilter{
		TeacherID: teacherID,
		Statuses:  []models.ClassStatus{models.ClassScheduled},
		From:      &now,
		To:        &busyTo,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load teacher classes")
	}

	type clockKey struct{ day, hour, minute int }
	seen := make(map[clockKey]struct{}, len(slots))
	var weekly []clockKey
	for _, slot := range slots {
		hour, minute, err := models.ParseClock(slot.StartTime)
		if err != nil {
			s.logger.Warn("skipping malformed availability slot", zap.String("slot_id", slot.ID), zap.Error(err))
			continue
		}
		key := clockKey{slot.DayOfWeek, hour, minute}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		weekly = append(weekly, key)
	}

	local := now.In(s.cfg.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.cfg.Location)
	result := []time.Time{}
	for ; day.Before(horizon); day = day.AddDate(0, 0, 1) {
		for _, key := range weekly {
			if int(day.Weekday()) != key.day {
				continue
			}
			start := time.Date(day.Year(), day.Month(), day.Day(), key.hour, key.minute, 0, 0, s.cfg.Location)
			end := start.Add(s.cfg.ClassDuration)
			if start.Before(earliest) || start.After(horizon) || start.Equal(class.ScheduledAt) {
				continue
			}
			if onVacation(vacations, start, end) || overlapsClass(busy, class.ID, start, end, s.cfg.ClassDuration) {
				continue
			}
			result = append(result, start.UTC())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

func onVacation(vacations []models.Vacation, start, end time.Time) bool {
	for _, v := range vacations {
		if v.Covers(start, end) {
			return true
		}
	}
	return false
}

func overlapsClass(classes []models.Class, skipID string, start, end time.Time, duration time.Duration) bool {
	for _, c := range classes {
		if c.ID == skipID {
			continue
		}
		if c.ScheduledAt.Before(end) && start.Before(c.ScheduledAt.Add(duration)) {
			return true
		}
	}
	return false
}

func containsInstant(values []time.Time, target time.Time) bool {
	for _, v := range values {
		if v.Equal(target) {
			return true
		}
	}
	return false
}
