package models

import "time"

// ClassStatus is the lifecycle state of a class instance.
type ClassStatus string

const (
	ClassScheduled             ClassStatus = "SCHEDULED"
	ClassCompleted             ClassStatus = "COMPLETED"
	ClassNoShow                ClassStatus = "NO_SHOW"
	ClassRescheduled           ClassStatus = "RESCHEDULED"
	ClassCanceledStudent       ClassStatus = "CANCELED_STUDENT"
	ClassCanceledTeacher       ClassStatus = "CANCELED_TEACHER"
	ClassCanceledTeacherMakeup ClassStatus = "CANCELED_TEACHER_MAKEUP"
	ClassCanceledAdmin         ClassStatus = "CANCELED_ADMIN"
	ClassCanceledCredit        ClassStatus = "CANCELED_CREDIT"
	ClassTeacherVacation       ClassStatus = "TEACHER_VACATION"
	ClassOverdue               ClassStatus = "OVERDUE"
)

// ClassStatuses lists every known status.
var ClassStatuses = []ClassStatus{
	ClassScheduled,
	ClassCompleted,
	ClassNoShow,
	ClassRescheduled,
	ClassCanceledStudent,
	ClassCanceledTeacher,
	ClassCanceledTeacherMakeup,
	ClassCanceledAdmin,
	ClassCanceledCredit,
	ClassTeacherVacation,
	ClassOverdue,
}

// Valid reports whether s is a known status.
func (s ClassStatus) Valid() bool {
	for _, known := range ClassStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
// CANCELED_TEACHER_MAKEUP stays open until the student reschedules or declines.
func (s ClassStatus) IsTerminal() bool {
	return s != ClassScheduled && s != ClassCanceledTeacherMakeup
}

// Class is a single scheduled lesson.
type Class struct {
	ID              string      `db:"id" json:"id"`
	StudentID       string      `db:"student_id" json:"studentId"`
	TeacherID       *string     `db:"teacher_id" json:"teacherId"`
	Language        string      `db:"language" json:"language"`
	ScheduledAt     time.Time   `db:"scheduled_at" json:"scheduledAt"`
	Status          ClassStatus `db:"status" json:"status"`
	Notes           string      `db:"notes" json:"notes"`
	RescheduledFrom *string     `db:"rescheduled_from" json:"rescheduledFrom,omitempty"`
	TemplateEntryID *string     `db:"template_entry_id" json:"templateEntryId,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

// AssignedTeacher returns the teacher id or an empty string.
func (c *Class) AssignedTeacher() string {
	if c == nil || c.TeacherID == nil {
		return ""
	}
	return *c.TeacherID
}

// ClassFilter narrows class listings.
type ClassFilter struct {
	StudentID string
	TeacherID string
	Statuses  []ClassStatus
	From      *time.Time
	To        *time.Time
}

// DeleteClassesOption selects the range removed by a bulk delete.
type DeleteClassesOption string

const (
	DeleteAll       DeleteClassesOption = "all"
	DeleteFromDate  DeleteClassesOption = "from-date"
	DeleteDateRange DeleteClassesOption = "date-range"
)

// DeleteClassesRequest describes a bulk removal of generated classes.
type DeleteClassesRequest struct {
	Option          DeleteClassesOption `json:"option" validate:"required,oneof=all from-date date-range"`
	FromDate        *time.Time          `json:"fromDate"`
	ToDate          *time.Time          `json:"toDate"`
	TemplateEntries []string            `json:"templateEntries"`
}

// GenerationResult summarises a template expansion run.
type GenerationResult struct {
	StudentID string `json:"studentId"`
	Created   int    `json:"created"`
	Skipped   int    `json:"skipped"`
	OnLeave   int    `json:"onLeave"`
}
