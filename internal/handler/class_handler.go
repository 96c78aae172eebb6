package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lesson-engine/internal/dto"
	"github.com/noah-isme/lesson-engine/internal/models"
	"github.com/noah-isme/lesson-engine/pkg/response"
)

type classService interface {
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Class, error)
	ListByStudent(ctx context.Context, studentID string, from, to *time.Time, actor *models.JWTClaims) ([]models.Class, error)
	CalendarFeed(ctx context.Context, studentID string, actor *models.JWTClaims) ([]byte, error)
	AssignTeacher(ctx context.Context, classID string, teacherID *string, actor *models.JWTClaims) (*models.Class, error)
	MarkStatus(ctx context.Context, classID string, next models.ClassStatus, actor *models.JWTClaims) (*models.Class, error)
	Cancel(ctx context.Context, classID string, actor *models.JWTClaims) (*models.Class, error)
}

type rescheduleService interface {
	Options(ctx context.Context, classID string, actor *models.JWTClaims) (*models.RescheduleOptions, error)
	Confirm(ctx context.Context, classID string, scheduledAt time.Time, actor *models.JWTClaims) (*models.RescheduleResult, error)
}

// ClassHandler exposes class lifecycle and reschedule endpoints.
type ClassHandler struct {
	classes    classService
	reschedule rescheduleService
}

// NewClassHandler builds a class handler.
func NewClassHandler(classes classService, reschedule rescheduleService) *ClassHandler {
	return &ClassHandler{classes: classes, reschedule: reschedule}
}

// Get godoc
// @Summary Get a class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	class, err := h.classes.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// ListByStudent godoc
// @Summary List a student's classes
// @Tags Classes
// @Produce json
// @Param studentId path string true "Student ID"
// @Param from query string false "Lower bound (RFC3339 or YYYY-MM-DD)"
// @Param to query string false "Upper bound (RFC3339 or YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /classes/student/{studentId} [get]
func (h *ClassHandler) ListByStudent(c *gin.Context) {
	from, err := optionalTime(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := optionalTime(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	classes, err := h.classes.ListByStudent(c.Request.Context(), c.Param("studentId"), from, to, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, map[string]interface{}{"total": len(classes)})
}

// Calendar godoc
// @Summary Download a student's upcoming classes as iCalendar
// @Tags Classes
// @Produce text/calendar
// @Param studentId path string true "Student ID"
// @Success 200 {file} file
// @Router /classes/student/{studentId}/calendar.ics [get]
func (h *ClassHandler) Calendar(c *gin.Context) {
	body, err := h.classes.CalendarFeed(c.Request.Context(), c.Param("studentId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, "text/calendar; charset=utf-8", "classes.ics", body)
}

// AssignTeacher godoc
// @Summary Assign, replace or clear the teacher of a class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.AssignTeacherRequest true "Teacher payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/teacher [put]
func (h *ClassHandler) AssignTeacher(c *gin.Context) {
	var req dto.AssignTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid teacher payload"))
		return
	}
	class, err := h.classes.AssignTeacher(c.Request.Context(), c.Param("id"), req.TeacherID, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// UpdateStatus godoc
// @Summary Move a class to a new status
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.UpdateClassStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/status [put]
func (h *ClassHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateClassStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid status payload"))
		return
	}
	class, err := h.classes.MarkStatus(c.Request.Context(), c.Param("id"), req.Status, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Cancel godoc
// @Summary Cancel a class as the calling role
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/cancel [post]
func (h *ClassHandler) Cancel(c *gin.Context) {
	class, err := h.classes.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// RescheduleOptions godoc
// @Summary List the slots a class can be moved to
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/reschedule-options [get]
func (h *ClassHandler) RescheduleOptions(c *gin.Context) {
	options, err := h.reschedule.Options(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, options, nil)
}

// Reschedule godoc
// @Summary Move a class to one of its offered slots
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body dto.RescheduleRequest true "Reschedule payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/reschedule [post]
func (h *ClassHandler) Reschedule(c *gin.Context) {
	var req dto.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid reschedule payload"))
		return
	}
	result, err := h.reschedule.Confirm(c.Request.Context(), c.Param("id"), req.ScheduledAt, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
