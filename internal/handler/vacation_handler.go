package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-engine/internal/models"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
	"github.com/noah-isme/lesson-engine/pkg/response"
)

type vacationService interface {
	Create(ctx context.Context, req models.CreateVacationRequest, actor *models.JWTClaims) (*models.Vacation, error)
	List(ctx context.Context, teacherID string, actor *models.JWTClaims) ([]models.Vacation, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

// VacationHandler exposes teacher vacations.
type VacationHandler struct {
	service vacationService
}

// NewVacationHandler builds a vacation handler.
func NewVacationHandler(service vacationService) *VacationHandler {
	return &VacationHandler{service: service}
}

// Create godoc
// @Summary Book a teacher vacation
// @Tags Vacations
// @Accept json
// @Produce json
// @Param payload body models.CreateVacationRequest true "Vacation payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /vacations [post]
func (h *VacationHandler) Create(c *gin.Context) {
	var req models.CreateVacationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid vacation payload"))
		return
	}
	vacation, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, vacation)
}

// List godoc
// @Summary List teacher vacations
// @Tags Vacations
// @Produce json
// @Param teacherId query string false "Teacher ID (defaults to caller)"
// @Success 200 {object} response.Envelope
// @Router /vacations [get]
func (h *VacationHandler) List(c *gin.Context) {
	vacations, err := h.service.List(c.Request.Context(), c.Query("teacherId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vacations, nil)
}

// Delete godoc
// @Summary Delete a vacation that has not started
// @Tags Vacations
// @Produce json
// @Param id query string true "Vacation ID"
// @Success 200 {object} response.Envelope
// @Router /vacations [delete]
func (h *VacationHandler) Delete(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "id is required"))
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"deleted": id}, nil)
}
