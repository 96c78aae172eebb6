package dto

import "github.com/noah-isme/lesson-engine/internal/models"

// TemplateEntryInput is one weekly entry in a template replacement.
type TemplateEntryInput struct {
	Day       int    `json:"day"`
	Hour      int    `json:"hour"`
	Minute    int    `json:"minute"`
	TeacherID string `json:"teacherId"`
	Language  string `json:"language"`
}

// ReplaceTemplateRequest replaces every entry of a student's template.
type ReplaceTemplateRequest struct {
	Days []TemplateEntryInput `json:"days"`
}

// Entries converts the payload into model entries.
func (r ReplaceTemplateRequest) Entries() []models.TemplateEntry {
	entries := make([]models.TemplateEntry, 0, len(r.Days))
	for _, day := range r.Days {
		entries = append(entries, models.TemplateEntry{
			DayOfWeek: day.Day,
			Hour:      day.Hour,
			Minute:    day.Minute,
			TeacherID: day.TeacherID,
			Language:  day.Language,
		})
	}
	return entries
}

// RemovedResponse reports how many rows a bulk delete removed.
type RemovedResponse struct {
	Removed int64 `json:"removed"`
}

// AvailabilitySlotInput is one weekly availability slot.
type AvailabilitySlotInput struct {
	Day       int    `json:"day"`
	StartTime string `json:"startTime"`
}

// ReplaceAvailabilityRequest replaces a teacher's weekly availability.
type ReplaceAvailabilityRequest struct {
	Slots []AvailabilitySlotInput `json:"slots"`
}

// ToSlots converts the payload into model slots.
func (r ReplaceAvailabilityRequest) ToSlots(teacherID string) []models.AvailabilitySlot {
	slots := make([]models.AvailabilitySlot, 0, len(r.Slots))
	for _, slot := range r.Slots {
		slots = append(slots, models.AvailabilitySlot{TeacherID: teacherID, DayOfWeek: slot.Day, StartTime: slot.StartTime})
	}
	return slots
}
