// Package authz holds the single capability predicate used by every service.
package authz

import (
	"github.com/noah-isme/lesson-engine/internal/models"
	appErrors "github.com/noah-isme/lesson-engine/pkg/errors"
)

// Action names a capability checked against an actor and a resource.
type Action string

const (
	ClassView                   Action = "class:view"
	ClassAssignTeacher          Action = "class:assign-teacher"
	ClassMarkAttendance         Action = "class:mark-attendance"
	ClassCancelAsTeacher        Action = "class:cancel-teacher"
	ClassCancelAsStudent        Action = "class:cancel-student"
	ClassCancelAdministratively Action = "class:cancel-admin"
	ClassReschedule             Action = "class:reschedule"

	TemplateView     Action = "template:view"
	TemplateManage   Action = "template:manage"
	ClassesGenerate  Action = "classes:generate"
	ScheduleAssign   Action = "schedule:assign"
	AvailabilityView Action = "availability:view"
	AvailabilityEdit Action = "availability:edit"

	CreditView    Action = "credit:view"
	CreditGrant   Action = "credit:grant"
	CreditConsume Action = "credit:consume"

	ContractView      Action = "contract:view"
	ContractSign      Action = "contract:sign"
	ContractAdminSign Action = "contract:admin-sign"
	ContractCancel    Action = "contract:cancel"
	ContractOverride  Action = "contract:cancel-override"
	ContractRenew     Action = "contract:renew"

	VacationView   Action = "vacation:view"
	VacationManage Action = "vacation:manage"
)

// Resource identifies the owners of the data an action touches. Empty fields
// mean the resource has no owner of that kind.
type Resource struct {
	StudentID string
	TeacherID string
}

// grant lists who may perform an action: any of the roles, or the owning
// student/teacher of the resource.
type grant struct {
	roles      []models.UserRole
	ownStudent bool
	ownTeacher bool
}

var (
	staff = []models.UserRole{models.RoleAdmin, models.RoleManager}
	admin = []models.UserRole{models.RoleAdmin}
)

var policy = map[Action]grant{
	ClassView:                   {roles: staff, ownStudent: true, ownTeacher: true},
	ClassAssignTeacher:          {roles: staff},
	ClassMarkAttendance:         {ownTeacher: true},
	ClassCancelAsTeacher:        {roles: staff, ownTeacher: true},
	ClassCancelAsStudent:        {roles: staff, ownStudent: true},
	ClassCancelAdministratively: {roles: staff},
	ClassReschedule:             {roles: staff, ownStudent: true},

	TemplateView:     {roles: staff, ownStudent: true},
	TemplateManage:   {roles: staff},
	ClassesGenerate:  {roles: staff},
	ScheduleAssign:   {roles: staff},
	AvailabilityView: {roles: staff, ownTeacher: true},
	AvailabilityEdit: {roles: admin, ownTeacher: true},

	CreditView:    {roles: staff, ownStudent: true},
	CreditGrant:   {roles: staff},
	CreditConsume: {roles: staff},

	ContractView:      {roles: staff, ownStudent: true},
	ContractSign:      {ownStudent: true},
	ContractAdminSign: {roles: admin},
	ContractCancel:    {roles: staff, ownStudent: true},
	ContractOverride:  {roles: staff},
	ContractRenew:     {roles: staff, ownStudent: true},

	VacationView:   {roles: staff, ownTeacher: true},
	VacationManage: {roles: admin, ownTeacher: true},
}

// Can reports whether actor may perform action on res. Unknown actions are denied.
func Can(actor *models.JWTClaims, action Action, res Resource) bool {
	if actor == nil || actor.UserID == "" {
		return false
	}
	g, ok := policy[action]
	if !ok {
		return false
	}
	for _, role := range g.roles {
		if actor.Role == role {
			return true
		}
	}
	if g.ownStudent && actor.Role == models.RoleStudent && res.StudentID != "" && res.StudentID == actor.UserID {
		return true
	}
	if g.ownTeacher && actor.Role == models.RoleTeacher && res.TeacherID != "" && res.TeacherID == actor.UserID {
		return true
	}
	return false
}

// Require returns an unauthorized error for a missing actor and forbidden when
// Can denies the action.
func Require(actor *models.JWTClaims, action Action, res Resource) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !Can(actor, action, res) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to "+string(action))
	}
	return nil
}
