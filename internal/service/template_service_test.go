package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-engine/internal/models"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
)

type templateRepoStub struct {
	mu      sync.Mutex
	seq     int
	entries []models.TemplateEntry
}

func (r *templateRepoStub) ListByStudent(ctx context.Context, studentID string) ([]models.TemplateEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.TemplateEntry
	for _, e := range r.entries {
		if e.StudentID == studentID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *templateRepoStub) ListByTeacherAt(ctx context.Context, teacherID string, day, hour, minute int) ([]models.TemplateEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []models.TemplateEntry
	for _, e := range r.entries {
		if e.TeacherID == teacherID && e.DayOfWeek == day && e.Hour == hour && e.Minute == minute {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *templateRepoStub) Insert(ctx context.Context, exec sqlx.ExtContext, entry *models.TemplateEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == "" {
		r.seq++
		entry.ID = fmt.Sprintf("entry-%d", r.seq)
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *templateRepoStub) DeleteByStudent(ctx context.Context, exec sqlx.ExtContext, studentID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.StudentID == studentID {
			ids = append(ids, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return ids, nil
}

type contractGateStub struct {
	err error
}

func (c contractGateStub) RequireValid(ctx context.Context, userID string) error {
	return c.err
}

type templateFixture struct {
	svc       *TemplateService
	templates *templateRepoStub
	classes   *classRepoStub
	vacations *vacationStub
	gate      *contractGateStub
}

func newTemplateFixture(t *testing.T, txs int) templateFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	for i := 0; i < txs; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	templates := &templateRepoStub{}
	classes := newClassRepoStub()
	vacations := &vacationStub{}
	availability := &availabilityStub{slots: map[string][]models.AvailabilitySlot{
		"teacher-1": {{ID: "slot-1", TeacherID: "teacher-1", DayOfWeek: 2, StartTime: "18:30"}},
	}}
	gate := &contractGateStub{}
	svc := NewTemplateService(templates, classes, availability, vacations, gate, tx, nil, TemplateConfig{GenerationWeeks: 2}, nil, nil)
	svc.now = fixedClock
	return templateFixture{svc: svc, templates: templates, classes: classes, vacations: vacations, gate: gate}
}

func weeklyDays() []models.TemplateEntry {
	return []models.TemplateEntry{
		{DayOfWeek: 1, Hour: 8, Minute: 0, TeacherID: "teacher-1", Language: "English"},
		{DayOfWeek: 3, Hour: 15, Minute: 0, TeacherID: "teacher-1", Language: "English"},
	}
}

func TestTemplateServiceReplaceValidates(t *testing.T) {
	f := newTemplateFixture(t, 0)

	dup := append(weeklyDays(), models.TemplateEntry{DayOfWeek: 1, Hour: 8, TeacherID: "teacher-2", Language: "Spanish"})
	_, err := f.svc.Replace(context.Background(), "student-1", dup, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	badHour := []models.TemplateEntry{{DayOfWeek: 1, Hour: 24, TeacherID: "teacher-1", Language: "English"}}
	_, err = f.svc.Replace(context.Background(), "student-1", badHour, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	noTeacher := []models.TemplateEntry{{DayOfWeek: 7, Hour: 8, Language: "English"}}
	_, err = f.svc.Replace(context.Background(), "student-1", noTeacher, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Replace(context.Background(), "student-1", weeklyDays(), studentActor("student-1"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestTemplateServiceGenerateIsIdempotent(t *testing.T) {
	f := newTemplateFixture(t, 1)
	ctx := context.Background()

	template, err := f.svc.Replace(ctx, "student-1", weeklyDays(), adminActor())
	require.NoError(t, err)
	require.Len(t, template.Days, 2)

	// Monday 08:00 on the first day has already passed at 09:00.
	first, err := f.svc.Generate(ctx, "student-1", adminActor())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Created)
	assert.Equal(t, 0, first.Skipped)

	second, err := f.svc.Generate(ctx, "student-1", adminActor())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 3, second.Skipped)

	classes, err := f.classes.List(ctx, models.ClassFilter{StudentID: "student-1"})
	require.NoError(t, err)
	require.Len(t, classes, 3)
	assert.Equal(t, time.Date(2024, time.March, 6, 15, 0, 0, 0, time.UTC), classes[0].ScheduledAt)
	for _, class := range classes {
		assert.Equal(t, models.ClassScheduled, class.Status)
		assert.NotNil(t, class.TemplateEntryID)
		assert.True(t, class.ScheduledAt.After(fixedNow))
	}
}

func TestTemplateServiceGenerateMarksVacationDays(t *testing.T) {
	f := newTemplateFixture(t, 1)
	ctx := context.Background()
	_, err := f.svc.Replace(ctx, "student-1", weeklyDays(), adminActor())
	require.NoError(t, err)
	f.vacations.vacations = []models.Vacation{{
		ID:        "vacation-1",
		TeacherID: "teacher-1",
		StartDate: time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC),
	}}

	result, err := f.svc.Generate(ctx, "student-1", adminActor())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 1, result.OnLeave)

	onLeave, err := f.classes.List(ctx, models.ClassFilter{StudentID: "student-1", Statuses: []models.ClassStatus{models.ClassTeacherVacation}})
	require.NoError(t, err)
	require.Len(t, onLeave, 1)
	assert.Equal(t, time.Date(2024, time.March, 11, 8, 0, 0, 0, time.UTC), onLeave[0].ScheduledAt)
}

func TestTemplateServiceGenerateRequiresContract(t *testing.T) {
	f := newTemplateFixture(t, 0)
	f.gate.err = appErrors.Clone(appErrors.ErrPreconditionFailed, "student has no valid contract")

	_, err := f.svc.Generate(context.Background(), "student-1", adminActor())
	assert.ErrorIs(t, err, appErrors.ErrPreconditionFailed)

	_, err = f.svc.Generate(context.Background(), "student-1", teacherActor("teacher-1"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestTemplateServiceReplaceDropsOldGeneratedClasses(t *testing.T) {
	f := newTemplateFixture(t, 3)
	ctx := context.Background()
	_, err := f.svc.Replace(ctx, "student-1", weeklyDays(), adminActor())
	require.NoError(t, err)
	_, err = f.svc.Generate(ctx, "student-1", adminActor())
	require.NoError(t, err)

	replacement := []models.TemplateEntry{{DayOfWeek: 5, Hour: 10, TeacherID: "teacher-1", Language: "English"}}
	_, err = f.svc.Replace(ctx, "student-1", replacement, adminActor())
	require.NoError(t, err)

	classes, err := f.classes.List(ctx, models.ClassFilter{StudentID: "student-1"})
	require.NoError(t, err)
	assert.Empty(t, classes)

	removed, err := f.svc.Delete(ctx, "student-1", adminActor())
	require.NoError(t, err)
	assert.Zero(t, removed)
	template, err := f.svc.Get(ctx, "student-1", studentActor("student-1"))
	require.NoError(t, err)
	assert.Empty(t, template.Days)
}

func TestTemplateServiceDeleteClassesByRange(t *testing.T) {
	f := newTemplateFixture(t, 1)
	ctx := context.Background()
	_, err := f.svc.Replace(ctx, "student-1", weeklyDays(), adminActor())
	require.NoError(t, err)
	_, err = f.svc.Generate(ctx, "student-1", adminActor())
	require.NoError(t, err)

	from := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.March, 12, 0, 0, 0, 0, time.UTC)
	removed, err := f.svc.DeleteClasses(ctx, "student-1", models.DeleteClassesRequest{Option: models.DeleteDateRange, FromDate: &from, ToDate: &to}, adminActor())
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	_, err = f.svc.DeleteClasses(ctx, "student-1", models.DeleteClassesRequest{Option: models.DeleteDateRange, FromDate: &to, ToDate: &from}, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.DeleteClasses(ctx, "student-1", models.DeleteClassesRequest{Option: models.DeleteFromDate}, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.DeleteClasses(ctx, "student-1", models.DeleteClassesRequest{Option: "everything"}, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	removed, err = f.svc.DeleteClasses(ctx, "student-1", models.DeleteClassesRequest{Option: models.DeleteAll}, adminActor())
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)
}

func TestTemplateServiceAssignSchedule(t *testing.T) {
	f := newTemplateFixture(t, 0)
	ctx := context.Background()
	req := models.AssignScheduleRequest{StudentID: "student-1", TeacherID: "teacher-1", SlotID: "slot-1", Language: "French", Day: 2, StartTime: "18:30"}

	entry, err := f.svc.AssignSchedule(ctx, req, adminActor())
	require.NoError(t, err)
	assert.Equal(t, 18, entry.Hour)
	assert.Equal(t, 30, entry.Minute)
	assert.Equal(t, "student-1", entry.StudentID)

	other := req
	other.StudentID = "student-2"
	_, err = f.svc.AssignSchedule(ctx, other, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	mismatch := req
	mismatch.Day = 3
	_, err = f.svc.AssignSchedule(ctx, mismatch, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	missing := req
	missing.SlotID = "slot-x"
	_, err = f.svc.AssignSchedule(ctx, missing, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestTemplateServiceReplaceKeepsSettledOccurrences(t *testing.T) {
	f := newTemplateFixture(t, 2)
	ctx := context.Background()
	monday := time.Date(2024, time.March, 11, 8, 0, 0, 0, time.UTC)

	first, err := f.svc.Replace(ctx, "student-1", weeklyDays(), adminActor())
	require.NoError(t, err)
	generated, err := f.svc.Generate(ctx, "student-1", adminActor())
	require.NoError(t, err)
	require.Equal(t, 3, generated.Created)

	atMonday, err := f.classes.List(ctx, models.ClassFilter{StudentID: "student-1", From: &monday})
	require.NoError(t, err)
	require.NotEmpty(t, atMonday)
	require.Equal(t, monday, atMonday[0].ScheduledAt)
	require.NoError(t, f.classes.UpdateStatus(ctx, nil, atMonday[0].ID, models.ClassScheduled, models.ClassCanceledStudent))

	second, err := f.svc.Replace(ctx, "student-1", weeklyDays(), adminActor())
	require.NoError(t, err)
	for i := range second.Days {
		assert.Equal(t, first.Days[i].ID, second.Days[i].ID)
	}

	regenerated, err := f.svc.Generate(ctx, "student-1", adminActor())
	require.NoError(t, err)
	assert.Equal(t, 2, regenerated.Created)
	assert.Equal(t, 1, regenerated.Skipped)

	classes, err := f.classes.List(ctx, models.ClassFilter{StudentID: "student-1"})
	require.NoError(t, err)
	require.Len(t, classes, 3)
	var onMonday []models.Class
	for _, class := range classes {
		if class.ScheduledAt.Equal(monday) {
			onMonday = append(onMonday, class)
		}
	}
	require.Len(t, onMonday, 1)
	assert.Equal(t, models.ClassCanceledStudent, onMonday[0].Status)
}

func TestTemplateServiceGenerateSkipsSlotHeldByOtherEntry(t *testing.T) {
	f := newTemplateFixture(t, 1)
	ctx := context.Background()
	_, err := f.svc.Replace(ctx, "student-1", weeklyDays(), adminActor())
	require.NoError(t, err)

	stale := "entry-removed"
	teacher := "teacher-1"
	require.NoError(t, f.classes.Insert(ctx, nil, &models.Class{
		ID:              "class-stale",
		StudentID:       "student-1",
		TeacherID:       &teacher,
		Language:        "English",
		ScheduledAt:     time.Date(2024, time.March, 6, 15, 0, 0, 0, time.UTC),
		Status:          models.ClassCanceledStudent,
		TemplateEntryID: &stale,
	}))

	result, err := f.svc.Generate(ctx, "student-1", adminActor())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Skipped)
}

func TestTemplateServiceGenerateFlagsLateClassRunningIntoVacation(t *testing.T) {
	f := newTemplateFixture(t, 1)
	ctx := context.Background()
	late := []models.TemplateEntry{{DayOfWeek: 0, Hour: 23, Minute: 30, TeacherID: "teacher-1", Language: "English"}}
	_, err := f.svc.Replace(ctx, "student-1", late, adminActor())
	require.NoError(t, err)
	f.vacations.vacations = []models.Vacation{{
		ID:        "vacation-1",
		TeacherID: "teacher-1",
		StartDate: time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC),
	}}

	result, err := f.svc.Generate(ctx, "student-1", adminActor())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.OnLeave)

	onLeave, err := f.classes.List(ctx, models.ClassFilter{StudentID: "student-1", Statuses: []models.ClassStatus{models.ClassTeacherVacation}})
	require.NoError(t, err)
	require.Len(t, onLeave, 1)
	assert.Equal(t, time.Date(2024, time.March, 10, 23, 30, 0, 0, time.UTC), onLeave[0].ScheduledAt)
}
