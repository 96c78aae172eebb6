package dto

import (
	"time"

	"github.com/noah-isme/lesson-engine/internal/models"
)

// AssignTeacherRequest sets or clears the teacher of a class. A null teacherId unassigns.
type AssignTeacherRequest struct {
	TeacherID *string `json:"teacherId"`
}

// UpdateClassStatusRequest moves a class to a new lifecycle status.
type UpdateClassStatusRequest struct {
	Status models.ClassStatus `json:"status" binding:"required"`
}

// RescheduleRequest confirms one of the offered reschedule slots.
type RescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduledAt" binding:"required"`
}

// GenerateClassesRequest expands a student's template into classes.
type GenerateClassesRequest struct {
	StudentID string `json:"studentId" binding:"required"`
}
