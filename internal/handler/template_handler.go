package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-engine/internal/dto"
	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/pkg/response"
)

type templateService interface {
	Get(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.Template, error)
	Replace(ctx context.Context, studentID string, days []models.TemplateEntry, actor *models.JWTClaims) (*models.Template, error)
	Delete(ctx context.Context, studentID string, actor *models.JWTClaims) (int64, error)
	Generate(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.GenerationResult, error)
	DeleteClasses(ctx context.Context, studentID string, req models.DeleteClassesRequest, actor *models.JWTClaims) (int64, error)
	AssignSchedule(ctx context.Context, req models.AssignScheduleRequest, actor *models.JWTClaims) (*models.TemplateEntry, error)
}

// TemplateHandler exposes weekly template management and class generation.
type TemplateHandler struct {
	service templateService
}

// NewTemplateHandler builds a template handler.
func NewTemplateHandler(service templateService) *TemplateHandler {
	return &TemplateHandler{service: service}
}

// Get godoc
// @Summary Get a student's weekly template
// @Tags Templates
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /class-templates/{studentId} [get]
func (h *TemplateHandler) Get(c *gin.Context) {
	tpl, err := h.service.Get(c.Request.Context(), c.Param("studentId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}

// Replace godoc
// @Summary Replace a student's weekly template
// @Tags Templates
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param payload body dto.ReplaceTemplateRequest true "Template payload"
// @Success 200 {object} response.Envelope
// @Router /class-templates/{studentId} [put]
func (h *TemplateHandler) Replace(c *gin.Context) {
	var req dto.ReplaceTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid template payload"))
		return
	}
	tpl, err := h.service.Replace(c.Request.Context(), c.Param("studentId"), req.Entries(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}

// Delete godoc
// @Summary Delete a student's template and its future generated classes
// @Tags Templates
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /class-templates/{studentId} [delete]
func (h *TemplateHandler) Delete(c *gin.Context) {
	removed, err := h.service.Delete(c.Request.Context(), c.Param("studentId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RemovedResponse{Removed: removed}, nil)
}

// Generate godoc
// @Summary Expand a student's template into concrete classes
// @Tags Templates
// @Accept json
// @Produce json
// @Param payload body dto.GenerateClassesRequest true "Generation payload"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /classes/generate-classes [post]
func (h *TemplateHandler) Generate(c *gin.Context) {
	var req dto.GenerateClassesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid generation payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req.StudentID, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DeleteClasses godoc
// @Summary Delete generated classes of a student by range
// @Tags Templates
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param payload body models.DeleteClassesRequest true "Range payload"
// @Success 200 {object} response.Envelope
// @Router /class-templates/{studentId}/delete-classes [post]
func (h *TemplateHandler) DeleteClasses(c *gin.Context) {
	var req models.DeleteClassesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid delete payload"))
		return
	}
	removed, err := h.service.DeleteClasses(c.Request.Context(), c.Param("studentId"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.RemovedResponse{Removed: removed}, nil)
}

// AssignSchedule godoc
// @Summary Book a teacher availability slot into a student's template
// @Tags Templates
// @Accept json
// @Produce json
// @Param payload body models.AssignScheduleRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/assign-schedule [post]
func (h *TemplateHandler) AssignSchedule(c *gin.Context) {
	var req models.AssignScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid assignment payload"))
		return
	}
	entry, err := h.service.AssignSchedule(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}
