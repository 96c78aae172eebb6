package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-engine/internal/authz"
	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/internal/repository"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
)

type vacationRepository interface {
	Create(ctx context.Context, vacation *models.Vacation) error
	FindByID(ctx context.Context, id string) (*models.Vacation, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Vacation, error)
	ListOverlapping(ctx context.Context, teacherID string, from, to time.Time) ([]models.Vacation, error)
	DeleteBeforeStart(ctx context.Context, id string, now time.Time) error
}

// VacationConfig holds the vacation booking rules.
type VacationConfig struct {
	MinAdvance  time.Duration
	MaxDuration time.Duration
	Location    *time.Location
}

// VacationService books and removes teacher vacations.
type VacationService struct {
	repo      vacationRepository
	cfg       VacationConfig
	validator *validator.Validate
	logger    *zap.Logger
	now       clock
}

// NewVacationService builds the service.
func NewVacationService(repo vacationRepository, cfg VacationConfig, validate *validator.Validate, logger *zap.Logger) *VacationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &VacationService{repo: repo, cfg: cfg, validator: validate, logger: logger, now: systemClock}
}

const dateLayout = "2006-01-02"

// Create books a vacation for a teacher.
func (s *VacationService) Create(ctx context.Context, req models.CreateVacationRequest, actor *models.JWTClaims) (*models.Vacation, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req.TeacherID = strings.TrimSpace(req.TeacherID)
	if req.TeacherID == "" && actor.Role == models.RoleTeacher {
		req.TeacherID = actor.UserID
	}
	if req.TeacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacherId is required")
	}
	if err := authz.Require(actor, authz.VacationManage, authz.Resource{TeacherID: req.TeacherID}); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid vacation payload")
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "startDate must be YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endDate must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endDate must not be before startDate")
	}

	local := s.now().In(s.cfg.Location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	if start.Sub(today) < s.cfg.MinAdvance {
		return nil, appErrors.Clone(appErrors.ErrValidation, "vacations must be booked further in advance")
	}
	if s.cfg.MaxDuration > 0 && end.AddDate(0, 0, 1).Sub(start) > s.cfg.MaxDuration {
		return nil, appErrors.Clone(appErrors.ErrValidation, "vacation is longer than allowed")
	}

	overlapping, err := s.repo.ListOverlapping(ctx, req.TeacherID, start, end)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check existing vacations")
	}
	if len(overlapping) > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "vacation overlaps an existing one")
	}

	vacation := &models.Vacation{TeacherID: req.TeacherID, StartDate: start, EndDate: end}
	if err := s.repo.Create(ctx, vacation); err != nil {
		return nil, appErrors.Internal(err, "failed to create vacation")
	}
	s.logger.Info("vacation booked",
		zap.String("teacher_id", vacation.TeacherID),
		zap.String("start", req.StartDate),
		zap.String("end", req.EndDate),
	)
	return vacation, nil
}

// List returns the vacations of a teacher.
func (s *VacationService) List(ctx context.Context, teacherID string, actor *models.JWTClaims) ([]models.Vacation, error) {
	if actor != nil && teacherID == "" && actor.Role == models.RoleTeacher {
		teacherID = actor.UserID
	}
	if err := authz.Require(actor, authz.VacationView, authz.Resource{TeacherID: teacherID}); err != nil {
		return nil, err
	}
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacherId is required")
	}
	vacations, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list vacations")
	}
	if vacations == nil {
		vacations = []models.Vacation{}
	}
	return vacations, nil
}

// Delete removes a vacation that has not started yet.
func (s *VacationService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	vacation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "vacation not found")
		}
		return appErrors.Internal(err, "failed to load vacation")
	}
	if err := authz.Require(actor, authz.VacationManage, authz.Resource{TeacherID: vacation.TeacherID}); err != nil {
		return err
	}
	if err := s.repo.DeleteBeforeStart(ctx, id, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotApplied) {
			return appErrors.Clone(appErrors.ErrConflict, "vacation has already started")
		}
		return appErrors.Internal(err, "failed to delete vacation")
	}
	return nil
}
