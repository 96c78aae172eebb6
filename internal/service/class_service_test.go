package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-engine/internal/models"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
)

type classFixture struct {
	svc      *ClassService
	classes  *classRepoStub
	credits  *creditRepoStub
	notifier *notifierStub
}

func newClassFixture(t *testing.T, classes ...models.Class) classFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 4; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	repo := newClassRepoStub(classes...)
	credits := &creditRepoStub{}
	notifier := &notifierStub{}
	creditSvc := newCreditServiceFixture(credits, notifier)
	users := userStub{users: map[string]models.User{
		"teacher-1": {ID: "teacher-1", Role: models.RoleTeacher, Active: true},
		"teacher-2": {ID: "teacher-2", Role: models.RoleTeacher, Active: true},
		"student-1": {ID: "student-1", Role: models.RoleStudent, Active: true},
	}}
	svc := NewClassService(repo, users, creditSvc, tx, notifier, nil, ClassServiceConfig{ClassDuration: time.Hour}, nil)
	svc.now = fixedClock
	return classFixture{svc: svc, classes: repo, credits: credits, notifier: notifier}
}

func scheduledClass(id string, at time.Time) models.Class {
	teacher := "teacher-1"
	return models.Class{ID: id, StudentID: "student-1", TeacherID: &teacher, Language: "English", ScheduledAt: at, Status: models.ClassScheduled}
}

func TestClassServiceMarkStatusCompletedByAssignedTeacher(t *testing.T) {
	f := newClassFixture(t, scheduledClass("class-1", fixedNow.Add(-time.Hour)))

	class, err := f.svc.MarkStatus(context.Background(), "class-1", models.ClassCompleted, teacherActor("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, models.ClassCompleted, class.Status)
	assert.Equal(t, models.ClassCompleted, f.classes.get("class-1").Status)
	assert.Equal(t, []string{NotifyClassStatus}, f.notifier.kinds())
}

func TestClassServiceMarkStatusRoleGates(t *testing.T) {
	f := newClassFixture(t, scheduledClass("class-1", fixedNow.Add(time.Hour)))

	_, err := f.svc.MarkStatus(context.Background(), "class-1", models.ClassCompleted, teacherActor("teacher-2"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.MarkStatus(context.Background(), "class-1", models.ClassCompleted, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.MarkStatus(context.Background(), "class-1", models.ClassOverdue, teacherActor("teacher-1"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.MarkStatus(context.Background(), "class-1", models.ClassCanceledStudent, studentActor("student-2"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.MarkStatus(context.Background(), "class-1", models.ClassRescheduled, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.MarkStatus(context.Background(), "class-1", models.ClassStatus("LOST"), adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	assert.Equal(t, models.ClassScheduled, f.classes.get("class-1").Status)
}

func TestClassServiceTerminalStatusIsFinal(t *testing.T) {
	f := newClassFixture(t, scheduledClass("class-1", fixedNow.Add(time.Hour)))

	_, err := f.svc.MarkStatus(context.Background(), "class-1", models.ClassCanceledAdmin, adminActor())
	require.NoError(t, err)

	for _, next := range models.ClassStatuses {
		if next == models.ClassRescheduled {
			continue
		}
		_, err := f.svc.MarkStatus(context.Background(), "class-1", next, adminActor())
		require.Error(t, err, next)
		assert.ErrorIs(t, err, appErrors.ErrConflict)
	}
	assert.Equal(t, models.ClassCanceledAdmin, f.classes.get("class-1").Status)
}

func TestClassServiceMakeupCancelGrantsCredit(t *testing.T) {
	f := newClassFixture(t, scheduledClass("class-1", fixedNow.Add(48*time.Hour)))

	class, err := f.svc.MarkStatus(context.Background(), "class-1", models.ClassCanceledTeacherMakeup, teacherActor("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, models.ClassCanceledTeacherMakeup, class.Status)

	require.Len(t, f.credits.txs, 1)
	credit := f.credits.txs[0]
	assert.Equal(t, models.CreditTeacherCancellation, credit.Type)
	assert.Equal(t, "student-1", credit.StudentID)
	assert.Equal(t, fixedNow.Add(30*24*time.Hour), credit.ExpiresAt)

	// the student may still decline the makeup offer
	_, err = f.svc.MarkStatus(context.Background(), "class-1", models.ClassCanceledStudent, studentActor("student-1"))
	require.NoError(t, err)
	assert.Equal(t, models.ClassCanceledStudent, f.classes.get("class-1").Status)
}

func TestClassServiceCancelMapsRole(t *testing.T) {
	f := newClassFixture(t,
		scheduledClass("class-1", fixedNow.Add(time.Hour)),
		scheduledClass("class-2", fixedNow.Add(2*time.Hour)),
		scheduledClass("class-3", fixedNow.Add(3*time.Hour)),
	)

	class, err := f.svc.Cancel(context.Background(), "class-1", studentActor("student-1"))
	require.NoError(t, err)
	assert.Equal(t, models.ClassCanceledStudent, class.Status)

	class, err = f.svc.Cancel(context.Background(), "class-2", teacherActor("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, models.ClassCanceledTeacher, class.Status)

	class, err = f.svc.Cancel(context.Background(), "class-3", managerActor())
	require.NoError(t, err)
	assert.Equal(t, models.ClassCanceledAdmin, class.Status)

	_, err = f.svc.Cancel(context.Background(), "class-1", nil)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestClassServiceAssignTeacher(t *testing.T) {
	f := newClassFixture(t, scheduledClass("class-1", fixedNow.Add(time.Hour)))
	teacher := "teacher-2"

	class, err := f.svc.AssignTeacher(context.Background(), "class-1", &teacher, adminActor())
	require.NoError(t, err)
	assert.Equal(t, "teacher-2", class.AssignedTeacher())
	assert.Equal(t, "teacher-2", f.classes.get("class-1").AssignedTeacher())
	assert.ElementsMatch(t, []string{NotifyTeacherUnassigned, NotifyTeacherAssigned, NotifyTeacherAssigned}, f.notifier.kinds())

	class, err = f.svc.AssignTeacher(context.Background(), "class-1", nil, adminActor())
	require.NoError(t, err)
	assert.Nil(t, class.TeacherID)
}

func TestClassServiceAssignTeacherRules(t *testing.T) {
	makeup := scheduledClass("class-makeup", fixedNow.Add(time.Hour))
	makeup.Status = models.ClassCanceledTeacherMakeup
	f := newClassFixture(t,
		scheduledClass("class-past", fixedNow.Add(-time.Hour)),
		scheduledClass("class-future", fixedNow.Add(time.Hour)),
		makeup,
	)
	teacher := "teacher-2"
	student := "student-1"

	_, err := f.svc.AssignTeacher(context.Background(), "class-past", &teacher, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.AssignTeacher(context.Background(), "class-future", &teacher, teacherActor("teacher-1"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.AssignTeacher(context.Background(), "class-future", &student, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.AssignTeacher(context.Background(), "class-makeup", nil, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.AssignTeacher(context.Background(), "missing", &teacher, adminActor())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestClassServiceAssignTeacherLastWriteWins(t *testing.T) {
	f := newClassFixture(t, scheduledClass("class-1", fixedNow.Add(time.Hour)))
	first, second := "teacher-1", "teacher-2"

	_, err := f.svc.AssignTeacher(context.Background(), "class-1", &first, adminActor())
	require.NoError(t, err)
	_, err = f.svc.AssignTeacher(context.Background(), "class-1", &second, managerActor())
	require.NoError(t, err)

	assert.Equal(t, "teacher-2", f.classes.get("class-1").AssignedTeacher())
}

func TestClassServiceListAndCalendar(t *testing.T) {
	moved := scheduledClass("class-old", fixedNow.Add(24*time.Hour))
	moved.Status = models.ClassRescheduled
	f := newClassFixture(t, scheduledClass("class-1", fixedNow.Add(time.Hour)), moved)

	classes, err := f.svc.ListByStudent(context.Background(), "student-1", nil, nil, studentActor("student-1"))
	require.NoError(t, err)
	assert.Len(t, classes, 2)

	_, err = f.svc.ListByStudent(context.Background(), "student-1", nil, nil, studentActor("student-2"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	body, err := f.svc.CalendarFeed(context.Background(), "student-1", studentActor("student-1"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")
	assert.Contains(t, string(body), "class-1")
	assert.NotContains(t, string(body), "class-old")
}

func TestClassServiceCancelOnMakeupOffer(t *testing.T) {
	makeup := scheduledClass("class-makeup", fixedNow.Add(48*time.Hour))
	makeup.Status = models.ClassCanceledTeacherMakeup
	f := newClassFixture(t, makeup)

	_, err := f.svc.Cancel(context.Background(), "class-makeup", adminActor())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Equal(t, models.ClassCanceledTeacherMakeup, f.classes.get("class-makeup").Status)

	_, err = f.svc.Cancel(context.Background(), "class-makeup", teacherActor("teacher-1"))
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	class, err := f.svc.Cancel(context.Background(), "class-makeup", studentActor("student-1"))
	require.NoError(t, err)
	assert.Equal(t, models.ClassCanceledStudent, class.Status)
	assert.Equal(t, models.ClassCanceledStudent, f.classes.get("class-makeup").Status)
	assert.Empty(t, f.credits.txs)
	assert.Equal(t, []string{NotifyClassStatus}, f.notifier.kinds())
}
