package models

import "time"

// Vacation blocks a teacher for whole days, inclusive on both ends.
type Vacation struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacherId"`
	StartDate time.Time `db:"start_date" json:"startDate"`
	EndDate   time.Time `db:"end_date" json:"endDate"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Covers reports whether the interval [start, end) touches any vacation day.
func (v Vacation) Covers(start, end time.Time) bool {
	from := time.Date(v.StartDate.Year(), v.StartDate.Month(), v.StartDate.Day(), 0, 0, 0, 0, start.Location())
	until := time.Date(v.EndDate.Year(), v.EndDate.Month(), v.EndDate.Day(), 0, 0, 0, 0, start.Location()).AddDate(0, 0, 1)
	return start.Before(until) && end.After(from)
}

// CreateVacationRequest is the payload for booking a vacation.
type CreateVacationRequest struct {
	TeacherID string `json:"teacherId"`
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
}
