package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-engine/internal/models"
)

type availabilityServiceMock struct {
	slots     []models.AvailabilitySlot
	err       error
	lastSlots []models.AvailabilitySlot
}

func (m *availabilityServiceMock) ListAvailability(ctx context.Context, teacherID string, actor *models.JWTClaims) ([]models.AvailabilitySlot, error) {
	return m.slots, m.err
}

func (m *availabilityServiceMock) ReplaceAvailability(ctx context.Context, teacherID string, slots []models.AvailabilitySlot, actor *models.JWTClaims) ([]models.AvailabilitySlot, error) {
	m.lastSlots = slots
	return slots, m.err
}

func TestAvailabilityHandlerReplaceStampsTeacher(t *testing.T) {
	svc := &availabilityServiceMock{}
	h := NewAvailabilityHandler(svc)

	c, w := newGinContext(http.MethodPut, "/admin/teacher-availability/t1", []byte(`{"slots":[{"day":1,"startTime":"9:00"},{"day":3,"startTime":"14:30"}]}`))
	c.Params = gin.Params{{Key: "teacherId", Value: "t1"}}
	withUser(c, "t1", models.RoleTeacher)

	h.Replace(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.lastSlots, 2)
	for _, slot := range svc.lastSlots {
		assert.Equal(t, "t1", slot.TeacherID)
	}
	assert.Equal(t, "14:30", svc.lastSlots[1].StartTime)
}

func TestAvailabilityHandlerReplaceRejectsMalformedJSON(t *testing.T) {
	svc := &availabilityServiceMock{}
	h := NewAvailabilityHandler(svc)

	c, w := newGinContext(http.MethodPut, "/admin/teacher-availability/t1", []byte(`{"slots":`))
	c.Params = gin.Params{{Key: "teacherId", Value: "t1"}}

	h.Replace(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.lastSlots)
}
