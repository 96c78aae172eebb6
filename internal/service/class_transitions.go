package service

import (
	"github.com/noah-isme/lesson-engine/internal/authz"
	"github.com/noah-isme/lesson-engine/internal/models"
)

// classTransitions lists the status changes MarkStatus may apply and the
// capability each one requires. RESCHEDULED is reached only through a reschedule.
var classTransitions = map[models.ClassStatus]map[models.ClassStatus]authz.Action{
	models.ClassScheduled: {
		models.ClassCompleted:             authz.ClassMarkAttendance,
		models.ClassNoShow:                authz.ClassMarkAttendance,
		models.ClassCanceledStudent:       authz.ClassCancelAsStudent,
		models.ClassCanceledTeacher:       authz.ClassCancelAsTeacher,
		models.ClassCanceledTeacherMakeup: authz.ClassCancelAsTeacher,
		models.ClassCanceledAdmin:         authz.ClassCancelAdministratively,
		models.ClassCanceledCredit:        authz.ClassCancelAdministratively,
		models.ClassTeacherVacation:       authz.ClassCancelAdministratively,
		models.ClassOverdue:               authz.ClassCancelAdministratively,
	},
	models.ClassCanceledTeacherMakeup: {
		models.ClassCanceledStudent: authz.ClassCancelAsStudent,
	},
}

func transitionAction(from, to models.ClassStatus) (authz.Action, bool) {
	action, ok := classTransitions[from][to]
	return action, ok
}

func canReschedule(status models.ClassStatus) bool {
	return status == models.ClassScheduled || status == models.ClassCanceledTeacherMakeup
}

// cancelStatusFor picks the cancellation variant for the actor's role.
func cancelStatusFor(role models.UserRole) (models.ClassStatus, bool) {
	switch role {
	case models.RoleStudent:
		return models.ClassCanceledStudent, true
	case models.RoleTeacher:
		return models.ClassCanceledTeacher, true
	case models.RoleAdmin, models.RoleManager:
		return models.ClassCanceledAdmin, true
	}
	return "", false
}
