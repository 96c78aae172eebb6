package service

import (
	"time"

	"github.com/noah-isme/lesson-engine/internal/models"
)

// CreditEvent is a lifecycle event that may touch the credit ledger.
type CreditEvent string

const (
	EventTeacherMakeupCancel CreditEvent = "teacher-makeup-cancel"
	EventMakeupReschedule    CreditEvent = "makeup-reschedule"
	EventNormalReschedule    CreditEvent = "normal-reschedule"
)

// CreditEffect is what the ledger does in response to an event.
type CreditEffect int

const (
	EffectNone CreditEffect = iota
	EffectGrantMakeupCredit
	EffectConsumeMakeupCredit
	EffectConsumeMonthlyQuota
)

// creditRules maps (event, role) to the ledger effect. A missing pair has no effect.
var creditRules = map[CreditEvent]map[models.UserRole]CreditEffect{
	EventTeacherMakeupCancel: {
		models.RoleTeacher: EffectGrantMakeupCredit,
		models.RoleAdmin:   EffectGrantMakeupCredit,
		models.RoleManager: EffectGrantMakeupCredit,
	},
	EventMakeupReschedule: {
		models.RoleStudent: EffectConsumeMakeupCredit,
		models.RoleAdmin:   EffectConsumeMakeupCredit,
		models.RoleManager: EffectConsumeMakeupCredit,
	},
	EventNormalReschedule: {
		models.RoleStudent: EffectConsumeMonthlyQuota,
		models.RoleAdmin:   EffectConsumeMonthlyQuota,
		models.RoleManager: EffectConsumeMonthlyQuota,
	},
}

func creditEffect(event CreditEvent, role models.UserRole) CreditEffect {
	if byRole, ok := creditRules[event]; ok {
		return byRole[role]
	}
	return EffectNone
}

// computeBalance aggregates the ledger at now. Expiry is evaluated lazily so
// nothing is ever written to mark a credit as expired.
func computeBalance(studentID string, txs []models.CreditTransaction, now time.Time) models.CreditBalance {
	balance := models.CreditBalance{StudentID: studentID}
	for _, tx := range txs {
		if tx.Amount <= 0 {
			continue
		}
		switch {
		case tx.UsedAt != nil:
			balance.UsedCredits += tx.Amount
		case !now.Before(tx.ExpiresAt):
			balance.ExpiredCredits += tx.Amount
		default:
			balance.TotalCredits += tx.Amount
			switch tx.Type {
			case models.CreditBonus:
				balance.BonusCredits += tx.Amount
			case models.CreditLateStudents:
				balance.LateStudentCredits += tx.Amount
			case models.CreditTeacherCancellation:
				balance.TeacherCancellationCredits += tx.Amount
			}
		}
	}
	return balance
}
