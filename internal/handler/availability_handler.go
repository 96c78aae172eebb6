package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-engine/internal/dto"
	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/pkg/response"
)

type availabilityService interface {
	ListAvailability(ctx context.Context, teacherID string, actor *models.JWTClaims) ([]models.AvailabilitySlot, error)
	ReplaceAvailability(ctx context.Context, teacherID string, slots []models.AvailabilitySlot, actor *models.JWTClaims) ([]models.AvailabilitySlot, error)
}

// AvailabilityHandler exposes teacher weekly availability.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler builds an availability handler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// List godoc
// @Summary List a teacher's weekly availability
// @Tags Availability
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /admin/teacher-availability/{teacherId} [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	slots, err := h.service.ListAvailability(c.Request.Context(), c.Param("teacherId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Replace godoc
// @Summary Replace a teacher's weekly availability
// @Tags Availability
// @Accept json
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Param payload body dto.ReplaceAvailabilityRequest true "Availability payload"
// @Success 200 {object} response.Envelope
// @Router /admin/teacher-availability/{teacherId} [put]
func (h *AvailabilityHandler) Replace(c *gin.Context) {
	var req dto.ReplaceAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid availability payload"))
		return
	}
	teacherID := c.Param("teacherId")
	slots, err := h.service.ReplaceAvailability(c.Request.Context(), teacherID, req.ToSlots(teacherID), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}
