package models

import (
	"fmt"
	"time"
)

// TemplateEntry is one weekly recurring lesson of a student.
type TemplateEntry struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"studentId"`
	DayOfWeek int       `db:"day_of_week" json:"day" validate:"min=0,max=6"`
	Hour      int       `db:"hour" json:"hour" validate:"min=0,max=23"`
	Minute    int       `db:"minute" json:"minute" validate:"min=0,max=59"`
	TeacherID string    `db:"teacher_id" json:"teacherId" validate:"required"`
	Language  string    `db:"language" json:"language" validate:"required"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// StartTime renders the entry time as HH:MM.
func (e TemplateEntry) StartTime() string {
	return fmt.Sprintf("%02d:%02d", e.Hour, e.Minute)
}

// Template groups a student's weekly entries.
type Template struct {
	StudentID string          `json:"studentId"`
	Days      []TemplateEntry `json:"days"`
}

// AssignScheduleRequest books a teacher availability slot into a student's template.
type AssignScheduleRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	TeacherID string `json:"teacherId" validate:"required"`
	SlotID    string `json:"slotId" validate:"required"`
	Language  string `json:"language" validate:"required"`
	Day       int    `json:"day" validate:"min=0,max=6"`
	StartTime string `json:"startTime" validate:"required"`
}
