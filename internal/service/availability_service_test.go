package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-engine/internal/models"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
)

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

func TestAvailabilityServiceCachesReads(t *testing.T) {
	repo := &availabilityStub{slots: map[string][]models.AvailabilitySlot{
		"teacher-1": {{ID: "slot-1", TeacherID: "teacher-1", DayOfWeek: 1, StartTime: "10:00"}},
	}}
	cache := NewCacheService(newMemoryCache(), NewMetricsService(), time.Minute, nil)
	svc := NewAvailabilityService(repo, cache, time.Minute, nil)
	ctx := context.Background()

	first, err := svc.ListAvailability(ctx, "teacher-1", teacherActor("teacher-1"))
	require.NoError(t, err)
	second, err := svc.ListAvailability(ctx, "teacher-1", adminActor())
	require.NoError(t, err)
	assert.Equal(t, first[0].StartTime, second[0].StartTime)
	assert.Equal(t, 1, repo.lists)

	_, err = svc.ReplaceAvailability(ctx, "teacher-1", []models.AvailabilitySlot{{DayOfWeek: 2, StartTime: "9:05"}}, teacherActor("teacher-1"))
	require.NoError(t, err)

	third, err := svc.ListAvailability(ctx, "teacher-1", adminActor())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.lists)
	require.Len(t, third, 1)
	assert.Equal(t, "09:05", third[0].StartTime)
}

func TestAvailabilityServiceReplaceNormalizes(t *testing.T) {
	repo := &availabilityStub{}
	svc := NewAvailabilityService(repo, nil, time.Minute, nil)

	slots, err := svc.ReplaceAvailability(context.Background(), "teacher-1", []models.AvailabilitySlot{
		{DayOfWeek: 3, StartTime: "15:00"},
		{DayOfWeek: 1, StartTime: "10:00"},
		{DayOfWeek: 3, StartTime: "15:00"},
	}, adminActor())
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, 1, slots[0].DayOfWeek)
	assert.Equal(t, "teacher-1", slots[1].TeacherID)

	_, err = svc.ReplaceAvailability(context.Background(), "teacher-1", []models.AvailabilitySlot{{DayOfWeek: 9, StartTime: "10:00"}}, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.ReplaceAvailability(context.Background(), "teacher-1", []models.AvailabilitySlot{{DayOfWeek: 1, StartTime: "25:00"}}, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.ReplaceAvailability(context.Background(), "teacher-1", nil, managerActor())
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.ListAvailability(context.Background(), "teacher-1", teacherActor("teacher-2"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Equal(t, 1, repo.replaced)
}
