package models

import (
	"fmt"
	"time"
)

// AvailabilitySlot is a weekly recurring start time a teacher can take a class.
type AvailabilitySlot struct {
	ID        string    `db:"id" json:"id"`
	TeacherID string    `db:"teacher_id" json:"teacherId"`
	DayOfWeek int       `db:"day_of_week" json:"day" validate:"min=0,max=6"`
	StartTime string    `db:"start_time" json:"startTime" validate:"required"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ParseClock splits an HH:MM string.
func ParseClock(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: expected HH:MM", value)
	}
	return t.Hour(), t.Minute(), nil
}
