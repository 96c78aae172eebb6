package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lesson-engine/internal/authz"
	"github.com/noah-isme/lesson-engine/internal/models"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
)

type availabilityRepository interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.AvailabilitySlot, error)
	Replace(ctx context.Context, teacherID string, slots []models.AvailabilitySlot) error
}

// AvailabilityService manages teacher weekly availability with read-through caching.
type AvailabilityService struct {
	repo   availabilityRepository
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewAvailabilityService builds the service. cache may be nil.
func NewAvailabilityService(repo availabilityRepository, cache *CacheService, ttl time.Duration, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// ListAvailability returns the weekly slots of a teacher.
func (s *AvailabilityService) ListAvailability(ctx context.Context, teacherID string, actor *models.JWTClaims) ([]models.AvailabilitySlot, error) {
	if err := authz.Require(actor, authz.AvailabilityView, authz.Resource{TeacherID: teacherID}); err != nil {
		return nil, err
	}

	return readThrough(ctx, s.cache, AvailabilityKey(teacherID), s.ttl, func(ctx context.Context) ([]models.AvailabilitySlot, error) {
		slots, err := s.repo.ListByTeacher(ctx, teacherID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load availability")
		}
		if slots == nil {
			slots = []models.AvailabilitySlot{}
		}
		return slots, nil
	})
}

// ReplaceAvailability swaps every slot of a teacher.
func (s *AvailabilityService) ReplaceAvailability(ctx context.Context, teacherID string, slots []models.AvailabilitySlot, actor *models.JWTClaims) ([]models.AvailabilitySlot, error) {
	if err := authz.Require(actor, authz.AvailabilityEdit, authz.Resource{TeacherID: teacherID}); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(slots))
	normalized := make([]models.AvailabilitySlot, 0, len(slots))
	for _, slot := range slots {
		if slot.DayOfWeek < 0 || slot.DayOfWeek > 6 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "day must be between 0 and 6")
		}
		hour, minute, err := models.ParseClock(slot.StartTime)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		start := fmt.Sprintf("%02d:%02d", hour, minute)
		key := fmt.Sprintf("%d-%s", slot.DayOfWeek, start)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, models.AvailabilitySlot{TeacherID: teacherID, DayOfWeek: slot.DayOfWeek, StartTime: start})
	}
	sort.Slice(normalized, func(i, j int) bool {
		if normalized[i].DayOfWeek != normalized[j].DayOfWeek {
			return normalized[i].DayOfWeek < normalized[j].DayOfWeek
		}
		return normalized[i].StartTime < normalized[j].StartTime
	})

	if err := s.repo.Replace(ctx, teacherID, normalized); err != nil {
		return nil, appErrors.Internal(err, "failed to save availability")
	}
	if err := s.cache.Invalidate(ctx, AvailabilityKey(teacherID)); err != nil {
		s.logger.Warn("stale availability cache", zap.String("teacher_id", teacherID), zap.Error(err))
	}
	return normalized, nil
}
